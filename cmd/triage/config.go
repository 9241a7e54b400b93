package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the reviewer's local state: where the server lives, the token
// from the last login, and screen preferences. It lives in
// ~/.config/autocam/config.yaml unless --config points elsewhere.
type Config struct {
	ServerURL    string        `yaml:"server_url"`
	Token        string        `yaml:"token"`
	ProjectID    string        `yaml:"project_id"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Columns      int           `yaml:"columns"`
	LogFile      string        `yaml:"log_file"`
}

func defaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "autocam", "config.yaml"), nil
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		ServerURL:    "http://localhost:8081",
		PollInterval: 5 * time.Second,
		Columns:      4,
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Columns <= 0 {
		cfg.Columns = 4
	}
	return cfg, nil
}

func saveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	// the token lives here, keep it out of other users' reach
	return os.WriteFile(path, raw, 0o600)
}
