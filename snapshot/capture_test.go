package snapshot

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tuzkov/prusaLapse/templates"
)

func testConfig(address, dataDir string) Config {
	return Config{
		Camera: CameraConfig{
			Address:         address,
			RequestTemplate: "{camera_address}/snapshot",
		},
		OutputFilename:  templates.DefaultFilename,
		OutputDirectory: templates.DefaultDirectory,
		OutputFormat:    "jpg",
		Delay:           250 * time.Millisecond,
		DataDir:         dataDir,
	}
}

func TestCapturerSnap(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	printStart := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c, err := NewCapturer(testConfig(srv.URL, dataDir), printStart, NewLock(), testLogger)
	if err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	job, err := c.Snap("/usb/benchy.bgcode", 1, rec.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	if job.Timeout() != 500*time.Millisecond {
		t.Errorf("timeout = %s, want twice the delay", job.Timeout())
	}

	if res := wait(t, job); !res.OK() {
		t.Fatal(res.Err)
	}
	if gotPath != "/snapshot" {
		t.Errorf("camera request path = %q", gotPath)
	}
	if rec.sequence() != "success,complete" {
		t.Errorf("callbacks = %q", rec.sequence())
	}

	info := job.Info()
	wantDir := filepath.Join(dataDir, "snapshots", "benchy", "20250102030405")
	if filepath.Clean(info.DirectoryName()) != wantDir {
		t.Errorf("directory = %q, want %q", info.DirectoryName(), wantDir)
	}
	if info.FileName() != info.ID()+".jpg" {
		t.Errorf("file name %q is not id + extension", info.FileName())
	}
	if _, err := os.Stat(filepath.Join(wantDir, info.FileName())); err != nil {
		t.Error(err)
	}

	seq, err := info.SequencePath(3)
	if err != nil {
		t.Fatal(err)
	}
	if seq != filepath.Join(wantDir, "benchy_000003.jpg") {
		t.Errorf("sequence path = %q", seq)
	}
}

func TestCapturerUniqueFileNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	c, err := NewCapturer(testConfig(srv.URL, t.TempDir()), time.Now(), NewLock(), testLogger)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	var jobs []*Job
	for i := 0; i < 5; i++ {
		job, err := c.Snap("same.gcode", 1, Callbacks{})
		if err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		wait(t, job)
		path := job.Info().FullPath()
		if seen[path] {
			t.Fatalf("duplicate path %s", path)
		}
		seen[path] = true
	}

	entries, err := os.ReadDir(jobs[0].Info().DirectoryName())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Errorf("got %d files, want 5", len(entries))
	}
}

func TestCapturerTemplateError(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", t.TempDir())
	cfg.OutputDirectory = "{DATADIRECTORY}/{UNKNOWN}/"

	c, err := NewCapturer(cfg, time.Now(), nil, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	job, err := c.Snap("a.gcode", 1, Callbacks{})
	if err == nil || job != nil {
		t.Fatalf("expected template error, got job=%v err=%v", job, err)
	}
	if !strings.Contains(err.Error(), "UNKNOWN") {
		t.Errorf("error does not name the token: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := testConfig("http://cam", "/data")
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing camera address", func(c *Config) { c.Camera.Address = "" }},
		{"unknown auth type", func(c *Config) { c.Camera.AuthType = "ntlm" }},
		{"missing format", func(c *Config) { c.OutputFormat = "" }},
		{"format with dot", func(c *Config) { c.OutputFormat = ".jpg" }},
		{"zero delay", func(c *Config) { c.Delay = 0 }},
		{"missing directory template", func(c *Config) { c.OutputDirectory = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://cam", "/data")
			tt.mutate(&cfg)
			if _, err := NewCapturer(cfg, time.Now(), nil, nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
