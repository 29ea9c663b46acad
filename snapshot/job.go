package snapshot

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/icholy/digest"
)

const (
	AuthBasic  = "basic"
	AuthDigest = "digest"

	DefaultTimeout = 5 * time.Second

	chunkSize = 1024
)

// Logger receives the messages a job emits while downloading.
type Logger interface {
	LogSnapshotDownload(msg string, args ...any)
	LogSnapshotSave(msg string, args ...any)
	LogWarning(msg string, args ...any)
	LogError(msg string, args ...any)
}

// CameraConfig is the connection to the camera snapshot endpoint.
type CameraConfig struct {
	Address         string `validate:"required"`
	RequestTemplate string
	Username        string
	Password        string
	IgnoreSSLError  bool
	AuthType        string `validate:"omitempty,oneof=basic digest"`
}

// Callbacks are all optional. Exactly one of OnSuccess and OnFail runs,
// then OnComplete.
type Callbacks struct {
	OnSuccess  func(info *Info)
	OnFail     func(err error)
	OnComplete func()
}

// Result is the outcome of a single job.
type Result struct {
	Info *Info
	Err  error
}

func (r Result) OK() bool {
	return r.Err == nil
}

type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera responded with status %d", e.StatusCode)
}

var errAlreadyStarted = errors.New("job already started")

type JobConfig struct {
	Info      *Info
	URL       string
	Camera    CameraConfig
	Timeout   time.Duration
	Callbacks Callbacks
	Number    int

	// Lock defaults to ProcessLock().
	Lock   *Lock
	Logger Logger
}

// Job downloads one snapshot. It runs at most once and never retries.
type Job struct {
	id      string
	info    *Info
	url     string
	camera  CameraConfig
	timeout time.Duration
	number  int
	cb      Callbacks

	lock       *Lock
	logger     Logger
	httpClient *http.Client

	once sync.Once
	done chan Result
}

func NewJob(cfg JobConfig) *Job {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Lock == nil {
		cfg.Lock = ProcessLock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slogLogger{}
	}

	return &Job{
		id:      cfg.Info.ID(),
		info:    cfg.Info,
		url:     cfg.URL,
		camera:  cfg.Camera,
		timeout: cfg.Timeout,
		number:  cfg.Number,
		cb:      cfg.Callbacks,

		lock:       cfg.Lock,
		logger:     cfg.Logger,
		httpClient: newHTTPClient(cfg.Camera, cfg.Timeout),

		done: make(chan Result, 1),
	}
}

func newHTTPClient(camera CameraConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: camera.IgnoreSSLError,
		},
	}

	var rt http.RoundTripper = transport
	if camera.AuthType == AuthDigest && camera.Username != "" {
		rt = &digest.Transport{
			Username:  camera.Username,
			Password:  camera.Password,
			Transport: transport,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

func (j *Job) ID() string { return j.id }
func (j *Job) Info() *Info { return j.info }
func (j *Job) Timeout() time.Duration { return j.timeout }
func (j *Job) Done() <-chan Result { return j.done }

// Process starts the download in the background and returns immediately.
// Calling it more than once has no effect.
func (j *Job) Process() {
	started := false
	j.once.Do(func() {
		started = true
		go j.run()
	})
	if !started {
		j.logger.LogWarning("snapshot job process called twice", "job", j.id, "err", errAlreadyStarted)
	}
}

func (j *Job) run() {
	var res Result
	j.lock.do(func() {
		res = j.download()
	})

	if res.OK() {
		j.notify("success", func() {
			if j.cb.OnSuccess != nil {
				j.cb.OnSuccess(j.info)
			}
		})
	} else {
		j.notify("fail", func() {
			if j.cb.OnFail != nil {
				j.cb.OnFail(res.Err)
			}
		})
	}
	j.notify("complete", func() {
		if j.cb.OnComplete != nil {
			j.cb.OnComplete()
		}
	})

	j.done <- res
	close(j.done)
}

func (j *Job) download() Result {
	path := j.info.FullPath()
	res := Result{Info: j.info}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		j.logger.LogError("fail to create snapshot request", "job", j.id, "url", j.url, "err", err)
		res.Err = fmt.Errorf("fail to create request: %w", err)
		return res
	}

	if j.camera.Username != "" {
		j.logger.LogSnapshotDownload("authenticating and downloading snapshot", "job", j.id, "number", j.number, "url", j.url, "path", path)
		if j.camera.AuthType != AuthDigest {
			req.SetBasicAuth(j.camera.Username, j.camera.Password)
		}
	} else {
		j.logger.LogSnapshotDownload("downloading snapshot", "job", j.id, "number", j.number, "url", j.url, "path", path)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		j.logger.LogError("snapshot download failed", "job", j.id, "url", j.url, "err", err)
		res.Err = fmt.Errorf("fail to download snapshot: %w", err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		j.logger.LogWarning("snapshot failed", "job", j.id, "url", j.url, "status", resp.StatusCode)
		res.Err = &StatusError{StatusCode: resp.StatusCode}
		return res
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		j.logger.LogWarning("fail to create snapshot directory", "job", j.id, "dir", dir, "err", err)
		res.Err = fmt.Errorf("fail to create directory: %w", err)
		return res
	}

	if err := j.writeFile(path, resp.Body); err != nil {
		j.logger.LogError("fail to save snapshot", "job", j.id, "path", path, "err", err)
		res.Err = err
		return res
	}

	j.logger.LogSnapshotSave("snapshot saved to disk", "job", j.id, "path", path)
	return res
}

// writeFile streams body into path. A partially written file is removed.
func (j *Job) writeFile(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fail to create file: %w", err)
	}

	_, err = io.CopyBuffer(f, body, make([]byte, chunkSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil {
			j.logger.LogWarning("fail to remove partial snapshot", "job", j.id, "path", path, "err", rerr)
		}
		return fmt.Errorf("fail to write file: %w", err)
	}
	return nil
}

func (j *Job) notify(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.LogError("snapshot callback panicked", "job", j.id, "callback", name, "panic", r)
		}
	}()
	fn()
}
