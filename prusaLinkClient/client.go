package prusalinkclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/icholy/digest"
)

const (
	StatusIdle      = "IDLE"
	StatusBusy      = "BUSY"
	StatusPrinting  = "PRINTING"
	StatusPaused    = "PAUSED"
	StatusFinished  = "FINISHED"
	StatusStopped   = "STOPPED"
	StatusError     = "ERROR"
	StatusAttention = "ATTENTION"
	StatusReady     = "READY"

	jobCacheTTL = 10 * time.Second
)

type Client interface {
	// JobStatus describes the current print job. Cached for a few seconds.
	JobStatus(ctx context.Context) (*Status, error)
	// PrinterStatus returns the printer state and current head position. Never cached.
	PrinterStatus(ctx context.Context) (*PrinterStatus, error)
}

type Status struct {
	Online   bool
	JobID    int
	FileName string
	State    string
	Progress float64
}

type PrinterStatus struct {
	Online   bool
	State    string
	JobID    int
	Progress float64

	// HasPosition is false when the printer did not report axis_x/axis_y.
	HasPosition bool
	X, Y, Z     float64
}

type PrinterConfig struct {
	Address  string
	Username string
	ApiKey   string
}

type client struct {
	log    *slog.Logger
	config *PrinterConfig

	baseURL    string
	httpClient *http.Client

	sync.Mutex
	cachedStatus *Status
	cachedTime   time.Time
}

func NewClient(log *slog.Logger, config *PrinterConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("config is nil")
	}
	if config.Address == "" {
		return nil, errors.New("config address is empty")
	}
	if log == nil {
		log = slog.Default()
	}

	cli := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &digest.Transport{
			Username: config.Username,
			Password: config.ApiKey,
		},
	}

	baseURL := strings.TrimSuffix(config.Address, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &client{
		log:        log.With("svc", "prusaLinkClient"),
		config:     config,
		baseURL:    baseURL,
		httpClient: cli,
	}, nil
}

func (c *client) JobStatus(ctx context.Context) (*Status, error) {
	if st, ok := c.jobStatusFromCache(); ok {
		c.log.Debug("Returning from cache")
		return st, nil
	}

	st, err := c.jobStatus(ctx)
	if err != nil {
		return nil, err
	}

	c.jobStatusToCache(st)
	return st, nil
}

// get performs a GET against PrusaLink. online is false when the printer did
// not answer in time.
func (c *client) get(ctx context.Context, path string) (code int, data []byte, online bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, false, fmt.Errorf("fail to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// printer offline (or misconfigured)
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("fail to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, false, fmt.Errorf("fail to read resp body: %w", err)
	}

	c.log.Debug("Resp", "path", path, "code", resp.StatusCode, "body", string(data))
	return resp.StatusCode, data, true, nil
}

func (c *client) jobStatus(ctx context.Context) (*Status, error) {
	c.log.Debug("Job status request started")

	code, data, online, err := c.get(ctx, "/api/v1/job")
	if err != nil {
		return nil, err
	}
	if !online {
		return &Status{Online: false}, nil
	}

	switch code {
	case http.StatusOK:
		return parseJobResponse(data)
	// nothing in progress
	case http.StatusNoContent:
		return &Status{
			Online: true,
			State:  StatusFinished,
		}, nil
	default:
		return nil, fmt.Errorf("response status code %d", code)
	}
}

func (c *client) PrinterStatus(ctx context.Context) (*PrinterStatus, error) {
	code, data, online, err := c.get(ctx, "/api/v1/status")
	if err != nil {
		return nil, err
	}
	if !online {
		return &PrinterStatus{Online: false}, nil
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("response status code %d", code)
	}
	return parseStatusResponse(data)
}

func (c *client) jobStatusToCache(status *Status) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()

	st := *status
	c.cachedStatus = &st
	c.cachedTime = time.Now()
}

func (c *client) jobStatusFromCache() (*Status, bool) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()

	if c.cachedStatus == nil || time.Since(c.cachedTime) > jobCacheTTL {
		c.cachedStatus = nil
		return nil, false
	}

	st := *c.cachedStatus
	return &st, true
}

type jobResponse struct {
	ID       int     `json:"id,omitempty"`
	State    string  `json:"state,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	File     struct {
		Name        string `json:"name,omitempty"`
		DisplayName string `json:"display_name,omitempty"`
		Path        string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

func parseJobResponse(body []byte) (*Status, error) {
	var resp jobResponse
	err := json.Unmarshal(body, &resp)
	if err != nil {
		return nil, err
	}

	name := resp.File.DisplayName
	if name == "" {
		name = resp.File.Name
	}

	return &Status{
		Online:   true,
		JobID:    resp.ID,
		FileName: name,
		State:    resp.State,
		Progress: resp.Progress,
	}, nil
}

type statusResponse struct {
	Printer struct {
		State string   `json:"state"`
		AxisX *float64 `json:"axis_x"`
		AxisY *float64 `json:"axis_y"`
		AxisZ *float64 `json:"axis_z"`
	} `json:"printer"`
	Job *struct {
		ID       int     `json:"id"`
		Progress float64 `json:"progress"`
	} `json:"job,omitempty"`
}

func parseStatusResponse(body []byte) (*PrinterStatus, error) {
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	st := &PrinterStatus{
		Online: true,
		State:  resp.Printer.State,
	}
	if resp.Printer.AxisX != nil && resp.Printer.AxisY != nil {
		st.HasPosition = true
		st.X = *resp.Printer.AxisX
		st.Y = *resp.Printer.AxisY
	}
	if resp.Printer.AxisZ != nil {
		st.Z = *resp.Printer.AxisZ
	}
	if resp.Job != nil {
		st.JobID = resp.Job.ID
		st.Progress = resp.Job.Progress
	}
	return st, nil
}
