// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
	if cfg.DefaultModel != "gpt-3.5-turbo" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Storage.PollAttempts != 10 || cfg.PollDelay() != 500*time.Millisecond {
		t.Errorf("poll defaults = %d/%v", cfg.Storage.PollAttempts, cfg.PollDelay())
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_model = "llama3:8b"

[backend]
url = "http://10.0.0.5:9999"

[retry]
max_attempts = 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.DefaultModel != "llama3:8b" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.Backend.URL != "http://10.0.0.5:9999" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
	// Unset fields keep defaults
	if cfg.Anim.TargetDurationMs != 2500 {
		t.Errorf("TargetDurationMs = %d, want default", cfg.Anim.TargetDurationMs)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"default_model": "mistral", "storage": {"database_path": ":memory:", "prefs_path": "p.json", "poll_attempts": 4, "poll_delay_ms": 100}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.DefaultModel != "mistral" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.Storage.PollAttempts != 4 {
		t.Errorf("PollAttempts = %d", cfg.Storage.PollAttempts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARLEY_MODEL", "env-model")
	t.Setenv("PARLEY_MAX_ATTEMPTS", "7")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.DefaultModel != "env-model" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Retry.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero max_attempts should fail validation")
	}

	cfg = Default()
	cfg.Anim.MinChunkSize = 50
	cfg.Anim.MaxChunkSize = 10
	if err := cfg.Validate(); err == nil {
		t.Error("inverted chunk clamp should fail validation")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte(`default_model = "one"`), 0644)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()
	w.Watch()

	time.Sleep(50 * time.Millisecond)
	os.WriteFile(path, []byte(`default_model = "two"`), 0644)

	select {
	case cfg := <-reloaded:
		if cfg.DefaultModel != "two" {
			t.Errorf("reloaded DefaultModel = %q, want two", cfg.DefaultModel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload config")
	}
}
