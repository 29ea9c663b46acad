package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/tuzkov/prusaLapse/camera"
	"github.com/tuzkov/prusaLapse/logging"
	prusalinkclient "github.com/tuzkov/prusaLapse/prusaLinkClient"
	"github.com/tuzkov/prusaLapse/snapshot"
	"github.com/tuzkov/prusaLapse/timelapse"
)

const (
	PrusaConnectSnapshotEndpoint = "https://connect.prusa3d.com/c/snapshot"
)

var ErrNoCamera = errors.New("no local camera configured")

type Service interface {
	ForceSnap(ctx context.Context) error
	Status(ctx context.Context) (*timelapse.Status, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	Stream(ctx context.Context) (Stream, error)
}

type Snapshot []byte

type Stream chan []byte

type service struct {
	log        *slog.Logger
	camera     camera.Camera
	linkClient prusalinkclient.Client
	timelapse  *timelapse.Service

	cfg             *Config
	sendInterval    time.Duration
	connectEndpoint string
	httpClient      *http.Client

	sync.Mutex
	lastFrame string
	lastSent  string
}

type Config struct {
	prusalinkclient.PrinterConfig
	TimelapseConfig timelapse.Config
	CameraConfig    camera.Config
	Logging         logging.ProfileConfig

	Enabled                bool
	PrusaCameraToken       string
	PrusaCameraFingerprint string
}

// NewService wires the printer client, local camera and timelapse together.
// Background loops stop when ctx is done.
func NewService(ctx context.Context, log *slog.Logger, cfg *Config) (Service, error) {
	if log == nil {
		log = slog.Default()
	}

	linkClient, err := prusalinkclient.NewClient(log, &cfg.PrinterConfig)
	if err != nil {
		return nil, fmt.Errorf("fail to create link client: %w", err)
	}

	cam, err := camera.New(log, &cfg.CameraConfig)
	if err != nil {
		return nil, fmt.Errorf("fail to create camera service: %w", err)
	}

	svc := &service{
		log:        log.With("svc", "service"),
		camera:     cam,
		linkClient: linkClient,

		cfg:             cfg,
		sendInterval:    30 * time.Second,
		connectEndpoint: PrusaConnectSnapshotEndpoint,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
	}

	cfg.TimelapseConfig.OnFrame = svc.frameSaved
	profile := logging.NewProfile(log.With("svc", "snapshot"), cfg.Logging)
	svc.timelapse = timelapse.New(log, linkClient, &cfg.TimelapseConfig, snapshot.ProcessLock(), profile)

	if cfg.TimelapseConfig.Enabled {
		svc.log.Info("Timelapse enabled")
		go svc.timelapse.Run(ctx)
	} else {
		svc.log.Info("Timelapse disabled")
	}

	if cfg.Enabled {
		svc.log.Info("PrusaConnect enabled")
		go svc.prusaConnectSender(ctx)
	} else {
		svc.log.Info("PrusaConnect disabled")
	}
	return svc, nil
}

func (svc *service) ForceSnap(ctx context.Context) error {
	return svc.timelapse.ForceSnap(ctx)
}

func (svc *service) Status(ctx context.Context) (*timelapse.Status, error) {
	st := svc.timelapse.Status()
	return &st, nil
}

func (svc *service) Snapshot(ctx context.Context) (Snapshot, error) {
	if svc.camera == nil {
		return nil, ErrNoCamera
	}
	return svc.camera.Snapshot(ctx)
}

func (svc *service) Stream(ctx context.Context) (Stream, error) {
	if svc.camera == nil {
		return nil, ErrNoCamera
	}
	return svc.camera.Stream(ctx)
}

func (svc *service) frameSaved(path string) {
	svc.Mutex.Lock()
	svc.lastFrame = path
	svc.Mutex.Unlock()
}

func (svc *service) prusaConnectSender(ctx context.Context) {
	after := time.After(time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		case <-after:
		}
		after = time.After(svc.sendInterval)

		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		job, err := svc.linkClient.JobStatus(reqCtx)
		cancel()
		if err != nil {
			svc.log.Error("get printer status", "err", err)
			continue
		}
		if !job.Online {
			svc.log.Debug("Printer offline")
			continue
		}

		sent, err := svc.sendSnapshot(ctx)
		if err != nil {
			svc.log.Error("send snapshot", "err", err)
			continue
		}
		if sent {
			svc.log.Debug("snapshot sent")
		}
	}
}

// sendSnapshot uploads the latest timelapse frame if it was not sent yet.
func (svc *service) sendSnapshot(ctx context.Context) (bool, error) {
	svc.Mutex.Lock()
	frame, lastSent := svc.lastFrame, svc.lastSent
	svc.Mutex.Unlock()

	if frame == "" || frame == lastSent {
		return false, nil
	}

	data, err := os.ReadFile(frame)
	if err != nil {
		return false, fmt.Errorf("fail to read frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, svc.connectEndpoint, bytes.NewBuffer(data))
	if err != nil {
		return false, fmt.Errorf("fail to create request: %w", err)
	}

	req.Header.Add("Token", svc.cfg.PrusaCameraToken)
	req.Header.Add("Fingerprint", svc.cfg.PrusaCameraFingerprint)
	req.Header.Set("Content-Type", "image/jpg")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fail to send request: %w", err)
	}
	defer resp.Body.Close()

	var body []byte
	if resp.StatusCode != http.StatusNoContent {
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			svc.log.Debug("Fail to read body", "err", err)
		}
	}

	svc.log.Debug("Cam resp", "status", resp.StatusCode, "body", string(body))
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("prusa connect responded with status %d", resp.StatusCode)
	}

	svc.Mutex.Lock()
	svc.lastSent = frame
	svc.Mutex.Unlock()
	return true, nil
}
