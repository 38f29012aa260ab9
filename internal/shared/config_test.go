package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./dlx.db" {
			t.Errorf("expected database path ./dlx.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Sync.DefaultMaxItems != 50 {
			t.Errorf("expected default_max_items 50, got %d", config.Sync.DefaultMaxItems)
		}

		if config.Sync.DownloadConcurrency != 3 {
			t.Errorf("expected download_concurrency 3, got %d", config.Sync.DownloadConcurrency)
		}

		if got := config.Sync.BatchCooldown(); got != 3*time.Second {
			t.Errorf("expected 3s cooldown, got %s", got)
		}

		if config.Credentials.Provider.Token != "" {
			t.Errorf("expected empty default token, got %q", config.Credentials.Provider.Token)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[credentials.provider]
token = "secret"
base_url = "http://localhost:9090"

[sync]
download_concurrency = 2
batch_cooldown_ms = 10
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}

		if config.Credentials.Provider.Token != "secret" {
			t.Errorf("expected token secret, got %s", config.Credentials.Provider.Token)
		}

		if config.Sync.DownloadConcurrency != 2 {
			t.Errorf("expected download_concurrency 2, got %d", config.Sync.DownloadConcurrency)
		}

		if config.Sync.DefaultMaxItems != 50 {
			t.Errorf("unset keys should keep defaults, got default_max_items %d", config.Sync.DefaultMaxItems)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestRequireToken(t *testing.T) {
	config := DefaultConfig()
	if err := config.RequireToken(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}

	config.Credentials.Provider.Token = "  "
	if err := config.RequireToken(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("whitespace token should be rejected, got %v", err)
	}

	config.Credentials.Provider.Token = "abc"
	if err := config.RequireToken(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestSyncConfigValidate(t *testing.T) {
	tc := []struct {
		name    string
		mutate  func(*SyncConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*SyncConfig) {}},
		{name: "unlimited items allowed", mutate: func(s *SyncConfig) { s.DefaultMaxItems = 0 }},
		{name: "negative items", mutate: func(s *SyncConfig) { s.DefaultMaxItems = -1 }, wantErr: true},
		{name: "zero concurrency", mutate: func(s *SyncConfig) { s.DownloadConcurrency = 0 }, wantErr: true},
		{name: "negative cooldown", mutate: func(s *SyncConfig) { s.BatchCooldownMs = -5 }, wantErr: true},
		{name: "zero probe slots", mutate: func(s *SyncConfig) { s.ProbeSlots = 0 }, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultConfig().Sync
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
