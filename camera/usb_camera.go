package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sort"
	"sync"

	"github.com/blackjack/webcam"
)

const (
	V4L2_PIX_FMT_PJPG = 0x47504A50
	V4L2_PIX_FMT_YUYV = 0x56595559

	defaultDevice = "/dev/video0"
)

var supportedFormats = map[webcam.PixelFormat]bool{
	V4L2_PIX_FMT_PJPG: false,
	V4L2_PIX_FMT_YUYV: true,
}

type usbcamera struct {
	log *slog.Logger

	cam         *webcam.Webcam
	imageWidth  int
	imageHeight int

	sync.RWMutex
	frame []byte
}

func NewUSBCamera(log *slog.Logger, cfg *Config) (Camera, error) {
	device := cfg.Device
	if device == "" {
		device = defaultDevice
	}

	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("fail to open camera: %w", err)
	}
	formatDesc := cam.GetSupportedFormats()
	log.Debug("Supported formats", "formats", formatDesc)

	var format webcam.PixelFormat
	for f, desc := range formatDesc {
		if supportedFormats[f] {
			log.Debug("Picked format", "format", desc)
			format = f
			break
		}
	}

	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("found no supported formats")
	}

	sizes := FrameSizes(cam.GetSupportedFrameSizes(format))
	if len(sizes) == 0 {
		cam.Close()
		return nil, fmt.Errorf("found no frame sizes")
	}
	sort.Sort(sizes)

	size := sizes[len(sizes)-1]
	log.Debug("Picked size", "size", size)

	f, w, h, err := cam.SetImageFormat(format, size.MaxWidth, size.MaxHeight)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("fail to set image format: %w", err)
	}

	log.Info("Set image format", "device", device, "format", f, "width", w, "height", h)

	err = cam.StartStreaming()
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("fail to start streaming: %w", err)
	}

	svc := &usbcamera{
		log:         log.With("svc", "camera"),
		cam:         cam,
		imageWidth:  int(w),
		imageHeight: int(h),
	}

	go svc.handleCamera()

	return svc, nil
}

func (c *usbcamera) Snapshot(ctx context.Context) ([]byte, error) {
	c.RWMutex.RLock()
	frame := c.frame
	c.RWMutex.RUnlock()

	if frame == nil {
		return nil, errors.New("frame not yet available")
	}

	return encodeYUYV(frame, c.imageWidth, c.imageHeight)
}

func (c *usbcamera) Stream(ctx context.Context) (chan []byte, error) {
	return pollStream(ctx, c.log, c.Snapshot), nil
}

func (c *usbcamera) handleCamera() {
	for {
		err := c.cam.WaitForFrame(5)
		if err != nil {
			c.log.Warn("fail to wait for frame", "err", err)
			continue
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			c.log.Warn("fail to read frame", "err", err)
			continue
		}
		if len(frame) == 0 {
			continue
		}

		// ReadFrame reuses its buffer
		c.RWMutex.Lock()
		c.frame = append(c.frame[:0], frame...)
		c.RWMutex.Unlock()
	}
}

// encodeYUYV converts a packed YUYV 4:2:2 frame to jpeg.
func encodeYUYV(frame []byte, width, height int) ([]byte, error) {
	if len(frame) < width*height*2 {
		return nil, fmt.Errorf("short frame: %d bytes for %dx%d", len(frame), width, height)
	}

	yuyv := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for i := range yuyv.Cb {
		ii := i * 4
		yuyv.Y[i*2] = frame[ii]
		yuyv.Y[i*2+1] = frame[ii+2]
		yuyv.Cb[i] = frame[ii+1]
		yuyv.Cr[i] = frame[ii+3]
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, yuyv, nil); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

type FrameSizes []webcam.FrameSize

func (slice FrameSizes) Len() int {
	return len(slice)
}

// For sorting purposes
func (slice FrameSizes) Less(i, j int) bool {
	ls := slice[i].MaxWidth * slice[i].MaxHeight
	rs := slice[j].MaxWidth * slice[j].MaxHeight
	return ls < rs
}

// For sorting purposes
func (slice FrameSizes) Swap(i, j int) {
	slice[i], slice[j] = slice[j], slice[i]
}
