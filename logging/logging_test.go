package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestProfileCategories(t *testing.T) {
	log, buf := newBufferLogger()
	p := NewProfile(log, ProfileConfig{SnapshotDownload: true})

	p.LogSnapshotDownload("downloading", "url", "http://cam")
	p.LogSnapshotSave("saved", "path", "/tmp/a.jpg")

	out := buf.String()
	if !strings.Contains(out, "downloading") || !strings.Contains(out, "category=snapshotDownload") {
		t.Errorf("download message missing: %s", out)
	}
	if strings.Contains(out, "saved") {
		t.Errorf("save category is disabled but was logged: %s", out)
	}
}

func TestProfileWarningAndErrorAlwaysLogged(t *testing.T) {
	log, buf := newBufferLogger()
	p := NewProfile(log, ProfileConfig{})

	p.LogWarning("bad status", "status", 500)
	p.LogError("write failed", "err", "disk full")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=500") {
		t.Errorf("warning missing: %s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "disk full") {
		t.Errorf("error missing: %s", out)
	}
}

func TestSetLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		lv := new(slog.LevelVar)
		lv.Set(slog.LevelError)
		SetLevel(lv, in)
		if lv.Level() != want {
			t.Errorf("SetLevel(%q) = %v, want %v", in, lv.Level(), want)
		}
	}
}

func TestDiscard(t *testing.T) {
	log := Discard().With("svc", "test")
	if log.Enabled(t.Context(), slog.LevelError) {
		t.Error("discard logger reports enabled level")
	}
	log.Error("dropped", "err", "x")
}
