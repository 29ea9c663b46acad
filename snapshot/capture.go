package snapshot

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tuzkov/prusaLapse/templates"
)

var validate = validator.New()

type Config struct {
	Camera CameraConfig

	OutputFilename  string        `validate:"required"`
	OutputDirectory string        `validate:"required"`
	OutputFormat    string        `validate:"required,alphanum"`
	Delay           time.Duration `validate:"gt=0"`
	DataDir         string
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid snapshot config: %w", err)
	}
	return nil
}

// Capturer starts snapshot jobs for a single print.
type Capturer struct {
	cfg            Config
	printStartTime time.Time
	lock           *Lock
	logger         Logger
}

func NewCapturer(cfg Config, printStartTime time.Time, lock *Lock, logger Logger) (*Capturer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lock == nil {
		lock = ProcessLock()
	}

	return &Capturer{
		cfg:            cfg,
		printStartTime: printStartTime,
		lock:           lock,
		logger:         logger,
	}, nil
}

func (c *Capturer) PrintStartTime() time.Time {
	return c.printStartTime
}

// Snap starts a download of one snapshot and returns without waiting for it.
// The outcome is reported through cb and the returned job's Done channel.
// Only template errors are returned.
func (c *Capturer) Snap(printerFileName string, snapshotNumber int, cb Callbacks) (*Job, error) {
	dir, err := templates.Directory(c.cfg.OutputDirectory, c.cfg.DataDir, printerFileName, c.printStartTime, c.cfg.OutputFormat)
	if err != nil {
		return nil, fmt.Errorf("fail to resolve snapshot directory: %w", err)
	}

	info := NewInfo(c.cfg.OutputFilename, printerFileName, c.printStartTime, c.cfg.OutputFormat, dir)
	url := templates.RequestURL(c.cfg.Camera.Address, c.cfg.Camera.RequestTemplate, "")

	job := NewJob(JobConfig{
		Info:      info,
		URL:       url,
		Camera:    c.cfg.Camera,
		Timeout:   2 * c.cfg.Delay,
		Callbacks: cb,
		Number:    snapshotNumber,
		Lock:      c.lock,
		Logger:    c.logger,
	})
	job.Process()

	return job, nil
}
