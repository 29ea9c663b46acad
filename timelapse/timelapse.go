package timelapse

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tuzkov/prusaLapse/position"
	prusalinkclient "github.com/tuzkov/prusaLapse/prusaLinkClient"
	"github.com/tuzkov/prusaLapse/snapshot"
)

var ErrNoSession = errors.New("no timelapse in progress")

type Config struct {
	Enabled bool
	// Interval is the minimum time between two snapshot attempts.
	Interval time.Duration
	// PollInterval is how often the printer is asked for its state and position.
	PollInterval time.Duration

	Restrictions position.RestrictionSet
	Snapshot     snapshot.Config

	// OnFrame is called with the path of every saved frame.
	OnFrame func(path string)
}

type Status struct {
	Running   bool      `json:"running"`
	JobID     int       `json:"jobId,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	StartTime time.Time `json:"startTime,omitzero"`
	Frames    int       `json:"frames"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	LastFrame string    `json:"lastFrame,omitempty"`
}

type Service struct {
	log       *slog.Logger
	prusalink prusalinkclient.Client
	config    *Config
	lock      *snapshot.Lock
	logger    snapshot.Logger
	now       func() time.Time

	sync.Mutex
	session *session
}

type session struct {
	capturer  *snapshot.Capturer
	jobID     int
	fileName  string
	startTime time.Time

	lastAttempt time.Time
	inFlight    int

	frames    int
	failed    int
	skipped   int
	lastFrame string
}

func New(log *slog.Logger, prusalink prusalinkclient.Client, config *Config, lock *snapshot.Lock, logger snapshot.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}

	return &Service{
		log:       log.With("svc", "timelapse"),
		prusalink: prusalink,
		config:    config,
		lock:      lock,
		logger:    logger,
		now:       time.Now,
	}
}

// Run polls the printer until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		s.handleTimelapse(ctx)

		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "timelapse loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) handleTimelapse(ctx context.Context) {
	status, err := s.prusalink.PrinterStatus(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "fail to get printer status", "err", err)
		return
	}

	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	if s.session == nil {
		if !status.Online {
			s.log.DebugContext(ctx, "printer is offline")
			return
		}
		if !timelapseShouldStart(status.State) {
			s.log.DebugContext(ctx, "timelapse idle", "state", status.State)
			return
		}
		s.startSession(ctx, status)
		if s.session == nil {
			return
		}
	} else if timelapseShouldStop(status.State) {
		s.finishSession(ctx)
		return
	} else if status.JobID != 0 && status.JobID != s.session.jobID {
		s.log.InfoContext(ctx, "print job changed", "from", s.session.jobID, "to", status.JobID)
		s.finishSession(ctx)
		s.startSession(ctx, status)
		if s.session == nil {
			return
		}
	}

	if !timelapseShouldBeRunning(status.State) {
		s.log.DebugContext(ctx, "timelapse waiting", "state", status.State, "online", status.Online)
		return
	}
	if status.State != prusalinkclient.StatusPrinting {
		return
	}

	sess := s.session
	if sess.inFlight > 0 || s.now().Sub(sess.lastAttempt) < s.config.Interval {
		return
	}

	if s.config.Restrictions.Len() > 0 && !status.HasPosition {
		// zones cannot be checked without a position
		sess.skipped++
		s.log.WarnContext(ctx, "printer did not report head position, frame skipped")
		return
	}
	if !position.IsInPosition(s.config.Restrictions, status.X, status.Y) {
		sess.skipped++
		s.log.DebugContext(ctx, "head outside allowed snapshot zones", "x", status.X, "y", status.Y)
		return
	}

	s.snap(ctx, sess)
}

// timelapse should start only if printer is attention or printing state
func timelapseShouldStart(state string) bool {
	return state == prusalinkclient.StatusPrinting || state == prusalinkclient.StatusAttention
}

// timelapse should continue if printer also "paused" or "busy"
func timelapseShouldBeRunning(state string) bool {
	return timelapseShouldStart(state) || state == prusalinkclient.StatusPaused || state == prusalinkclient.StatusBusy
}

func timelapseShouldStop(state string) bool {
	return state == prusalinkclient.StatusIdle ||
		state == prusalinkclient.StatusError ||
		state == prusalinkclient.StatusFinished ||
		state == prusalinkclient.StatusStopped ||
		state == prusalinkclient.StatusReady
}

// must be called with s.Mutex held
func (s *Service) startSession(ctx context.Context, status *prusalinkclient.PrinterStatus) {
	fileName := strconv.Itoa(status.JobID)
	job, err := s.prusalink.JobStatus(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "fail to get job status, using job id as name", "err", err)
	} else if job.FileName != "" && (job.JobID == 0 || job.JobID == status.JobID) {
		// job status is cached and may still describe the previous print
		fileName = job.FileName
	}

	start := s.now()
	capturer, err := snapshot.NewCapturer(s.config.Snapshot, start, s.lock, s.logger)
	if err != nil {
		s.log.ErrorContext(ctx, "fail to create capturer", "err", err)
		return
	}

	s.session = &session{
		capturer:  capturer,
		jobID:     status.JobID,
		fileName:  fileName,
		startTime: start,
	}
	s.log.InfoContext(ctx, "timelapse started", "jobID", status.JobID, "jobName", fileName)
}

// must be called with s.Mutex held
func (s *Service) finishSession(ctx context.Context) {
	sess := s.session
	s.session = nil

	s.log.InfoContext(ctx, "timelapse finished",
		"jobID", sess.jobID,
		"jobName", sess.fileName,
		"frames", sess.frames,
		"failed", sess.failed,
		"skipped", sess.skipped,
		"printTook", s.now().Sub(sess.startTime).String())
}

// must be called with s.Mutex held
func (s *Service) snap(ctx context.Context, sess *session) {
	sess.lastAttempt = s.now()
	sess.inFlight++

	_, err := sess.capturer.Snap(sess.fileName, sess.frames+1, snapshot.Callbacks{
		OnSuccess: func(info *snapshot.Info) {
			s.frameSaved(sess, info)
		},
		OnFail: func(err error) {
			s.Mutex.Lock()
			sess.failed++
			s.Mutex.Unlock()
		},
		OnComplete: func() {
			s.Mutex.Lock()
			sess.inFlight--
			s.Mutex.Unlock()
		},
	})
	if err != nil {
		sess.inFlight--
		sess.failed++
		s.log.ErrorContext(ctx, "fail to start snapshot", "err", err)
	}
}

// frameSaved moves a downloaded frame to its place in the numbered sequence.
func (s *Service) frameSaved(sess *session, info *snapshot.Info) {
	s.Mutex.Lock()
	sess.frames++
	number := sess.frames
	s.Mutex.Unlock()

	path := info.FullPath()
	seq, err := info.SequencePath(number)
	if err != nil {
		s.log.Error("fail to resolve frame name", "err", err)
	} else if err := os.Rename(path, seq); err != nil {
		s.log.Error("fail to rename frame", "from", path, "to", seq, "err", err)
	} else {
		path = seq
	}

	s.Mutex.Lock()
	sess.lastFrame = path
	s.Mutex.Unlock()

	s.log.Debug("frame saved", "number", number, "path", path)
	if s.config.OnFrame != nil {
		s.config.OnFrame(path)
	}
}

// ForceSnap captures a frame now, ignoring the interval and the position restrictions.
func (s *Service) ForceSnap(ctx context.Context) error {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	if s.session == nil {
		return ErrNoSession
	}
	s.snap(ctx, s.session)
	return nil
}

func (s *Service) Status() Status {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()

	sess := s.session
	if sess == nil {
		return Status{}
	}
	return Status{
		Running:   true,
		JobID:     sess.jobID,
		FileName:  sess.fileName,
		StartTime: sess.startTime,
		Frames:    sess.frames,
		Failed:    sess.failed,
		Skipped:   sess.skipped,
		LastFrame: sess.lastFrame,
	}
}
