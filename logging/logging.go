package logging

import (
	"log/slog"
	"strings"
)

type ProfileConfig struct {
	SnapshotDownload bool
	SnapshotSave     bool
}

// Profile routes snapshot related messages to slog. Download and save
// messages are debug categories that can be switched off independently.
type Profile struct {
	log *slog.Logger
	cfg ProfileConfig
}

func NewProfile(log *slog.Logger, cfg ProfileConfig) *Profile {
	if log == nil {
		log = slog.Default()
	}
	return &Profile{
		log: log,
		cfg: cfg,
	}
}

func (p *Profile) LogSnapshotDownload(msg string, args ...any) {
	if !p.cfg.SnapshotDownload {
		return
	}
	p.log.Debug(msg, append(args, "category", "snapshotDownload")...)
}

func (p *Profile) LogSnapshotSave(msg string, args ...any) {
	if !p.cfg.SnapshotSave {
		return
	}
	p.log.Debug(msg, append(args, "category", "snapshotSave")...)
}

func (p *Profile) LogWarning(msg string, args ...any) {
	p.log.Warn(msg, args...)
}

func (p *Profile) LogError(msg string, args ...any) {
	p.log.Error(msg, args...)
}

// SetLevel applies a textual log level. Unknown levels keep INFO.
func SetLevel(lv *slog.LevelVar, level string) {
	switch strings.ToLower(level) {
	case "debug":
		lv.Set(slog.LevelDebug)
	case "info":
		lv.Set(slog.LevelInfo)
	case "warn":
		lv.Set(slog.LevelWarn)
	case "error":
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
		slog.Warn("unknown log level, using INFO instead", "level", level)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
