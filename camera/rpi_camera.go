package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

const (
	RpiCamBinary = "rpicam-still"
)

// rpicam can be run only from one place at a time
var rpicamSem = make(chan struct{}, 1)

type rpiCamera struct {
	log    *slog.Logger
	cfg    *Config
	binary string

	tmpDir string
}

func NewRPICamera(log *slog.Logger, cfg *Config) (Camera, error) {
	tmpDir, err := os.MkdirTemp("", "prusalapse")
	if err != nil {
		return nil, fmt.Errorf("fail to create tmp dir: %w", err)
	}

	return &rpiCamera{
		log:    log.With("svc", "camera"),
		cfg:    cfg,
		binary: RpiCamBinary,
		tmpDir: tmpDir,
	}, nil
}

func (c *rpiCamera) Snapshot(ctx context.Context) ([]byte, error) {
	name, err := c.takeShot(ctx)
	if err != nil {
		return nil, fmt.Errorf("fail to take shot: %w", err)
	}
	defer os.Remove(name)

	shot, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("fail to read shot: %w", err)
	}
	return shot, nil
}

func (c *rpiCamera) Stream(ctx context.Context) (chan []byte, error) {
	return pollStream(ctx, c.log, c.Snapshot), nil
}

func cameraOpts(rotation int) []string {
	return []string{
		"--encoding", "jpg",
		"--rotation", strconv.Itoa(rotation),
		"-n", // no preview
	}
}

// runs CLI command to take shot from camera and returns path to it
// rpicam-still --encoding jpg --rotation 180 -n --immediate -o <name>
func (c *rpiCamera) takeShot(ctx context.Context) (string, error) {
	name := filepath.Join(c.tmpDir, fmt.Sprintf("%d.jpg", time.Now().UnixMicro()))
	args := append(cameraOpts(c.cfg.Rotation),
		"--immediate",
		"-o", name,
	)

	// wait for a running shot (stream or another request) instead of failing
	select {
	case rpicamSem <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("wait for camera: %w", ctx.Err())
	}
	defer func() { <-rpicamSem }()

	c.log.DebugContext(ctx, "rpicam-still args", "args", args)
	cmd := exec.CommandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	c.log.DebugContext(ctx, "rpicam-still output", "output", string(output))
	if err != nil {
		return "", fmt.Errorf("fail to run rpicam-still: %w", err)
	}

	return name, nil
}
