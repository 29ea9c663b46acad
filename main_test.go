package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/tuzkov/prusaLapse/position"
)

const testConfig = `
dataDir: /srv/lapse
printer:
  address: 192.168.1.20
  username: maker
  apikey: secret
snapshot:
  camera:
    address: http://octocam.local/webcam/
    requestTemplate: "{camera_address}?action=snapshot"
  delay: 1500
timelapse:
  enabled: true
  interval: 30
  restrictions:
    - shape: rect
      type: required
      x: 0
      y: 0
      x2: 200
      y2: 200
    - shape: circle
      type: forbidden
      x: 100
      y: 100
      r: 15
`

func loadTestConfig(t *testing.T, cfg string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	initConfig()
	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(strings.NewReader(cfg)); err != nil {
		t.Fatal(err)
	}
}

func TestGetConfig(t *testing.T) {
	loadTestConfig(t, testConfig)

	cfg, err := getConfig()
	if err != nil {
		t.Fatal(err)
	}

	tl := cfg.TimelapseConfig
	if !tl.Enabled || tl.Interval != 30*time.Second || tl.PollInterval != 2*time.Second {
		t.Errorf("unexpected timelapse config %+v", tl)
	}
	if tl.Snapshot.Delay != 1500*time.Millisecond || tl.Snapshot.DataDir != "/srv/lapse" {
		t.Errorf("unexpected snapshot config %+v", tl.Snapshot)
	}
	if tl.Snapshot.OutputFormat != "jpg" || tl.Snapshot.Camera.Address != "http://octocam.local/webcam/" {
		t.Errorf("unexpected snapshot config %+v", tl.Snapshot)
	}
	if tl.Restrictions.Len() != 2 {
		t.Fatalf("got %d restrictions, want 2", tl.Restrictions.Len())
	}
	if !position.IsInPosition(tl.Restrictions, 20, 20) || position.IsInPosition(tl.Restrictions, 100, 105) {
		t.Error("restrictions not applied as configured")
	}
	if cfg.PrinterConfig.Address != "192.168.1.20" || cfg.Addr != ":8080" {
		t.Errorf("unexpected server config %+v", cfg)
	}
}

func TestGetConfigInvalidRestriction(t *testing.T) {
	loadTestConfig(t, `
timelapse:
  restrictions:
    - shape: triangle
      type: required
`)
	if _, err := getConfig(); err == nil {
		t.Error("expected error for unknown shape")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/maker")
	got, err := expandHome("~/timelapses/")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/home/maker/timelapses/" {
		t.Errorf("got %q", got)
	}
	if got, _ := expandHome("/abs"); got != "/abs" {
		t.Errorf("got %q", got)
	}
}
