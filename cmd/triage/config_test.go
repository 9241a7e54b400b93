package main

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	if cfg.ServerURL == "" || cfg.PollInterval != 5*time.Second || cfg.Columns != 4 {
		t.Fatalf("bad defaults: %+v", cfg)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	want := Config{
		ServerURL:    "http://cam.local:8081",
		Token:        "tok",
		ProjectID:    "proj-1",
		PollInterval: 2 * time.Second,
		Columns:      6,
		LogFile:      "/tmp/triage.log",
	}
	if err := saveConfig(path, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}
