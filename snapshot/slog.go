package snapshot

import "log/slog"

// slogLogger is used when a job has no Logger.
type slogLogger struct{}

func (slogLogger) LogSnapshotDownload(msg string, args ...any) { slog.Debug(msg, args...) }
func (slogLogger) LogSnapshotSave(msg string, args ...any) { slog.Debug(msg, args...) }
func (slogLogger) LogWarning(msg string, args ...any) { slog.Warn(msg, args...) }
func (slogLogger) LogError(msg string, args ...any) { slog.Error(msg, args...) }
