// Package camera exposes a camera attached to this host, so snapshot jobs can
// download frames from it over HTTP like from any network camera.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	TypeNone = "none"
	TypeUSB  = "usb"
	TypeRPI  = "rpi"

	streamInterval = 2 * time.Second
)

type Camera interface {
	Snapshot(ctx context.Context) ([]byte, error)
	Stream(ctx context.Context) (chan []byte, error)
}

type Config struct {
	Type     string
	Device   string
	Rotation int
}

// New returns the configured camera, or nil when no local camera is used.
func New(log *slog.Logger, cfg *Config) (Camera, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Type {
	case "", TypeNone:
		return nil, nil
	case TypeUSB:
		return NewUSBCamera(log, cfg)
	case TypeRPI:
		return NewRPICamera(log, cfg)
	default:
		return nil, fmt.Errorf("unknown camera type %q", cfg.Type)
	}
}

// pollStream emits a fresh snapshot every streamInterval until ctx is done.
func pollStream(ctx context.Context, log *slog.Logger, snapshot func(ctx context.Context) ([]byte, error)) chan []byte {
	stream := make(chan []byte, 10)

	go func() {
		after := time.After(0)
		for {
			select {
			case <-ctx.Done():
				close(stream)
				return
			case <-after:
			}
			after = time.After(streamInterval)

			image, err := snapshot(ctx)
			if err != nil {
				log.Warn("fail to get stream frame", "err", err)
				continue
			}
			select {
			case stream <- image:
			default:
				log.Warn("buffer overflow")
				// just in case. to not block channel
			}
		}
	}()

	return stream
}
