package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Sync        SyncConfig        `toml:"sync"`
	Media       MediaConfig       `toml:"media"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Provider ProviderConfig `toml:"provider"`
}

// ProviderConfig contains the content provider endpoint and access token.
type ProviderConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// SyncConfig contains the global download limits applied to every sync.
type SyncConfig struct {
	DefaultMaxItems     int     `toml:"default_max_items"`
	DownloadConcurrency int     `toml:"download_concurrency"`
	BatchCooldownMs     int     `toml:"batch_cooldown_ms"`
	DownloadDir         string  `toml:"download_dir"`
	ProbeSlots          int     `toml:"probe_slots"`
	RequestsPerSecond   float64 `toml:"requests_per_second"`
}

// MediaConfig points at the external media tooling.
type MediaConfig struct {
	FFprobePath string `toml:"ffprobe_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BatchCooldown returns the inter-batch pause as a [time.Duration].
func (s SyncConfig) BatchCooldown() time.Duration {
	return time.Duration(s.BatchCooldownMs) * time.Millisecond
}

// Validate reports negative or zero limits that would stall a sync.
func (s SyncConfig) Validate() error {
	switch {
	case s.DefaultMaxItems < 0:
		return fmt.Errorf("%w: default_max_items must be >= 0", ErrInvalidConfig)
	case s.DownloadConcurrency < 1:
		return fmt.Errorf("%w: download_concurrency must be >= 1", ErrInvalidConfig)
	case s.BatchCooldownMs < 0:
		return fmt.Errorf("%w: batch_cooldown_ms must be >= 0", ErrInvalidConfig)
	case s.ProbeSlots < 1:
		return fmt.Errorf("%w: probe_slots must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// RequireToken returns [ErrConfiguration] when the provider token is unset.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.Credentials.Provider.Token) == "" {
		return fmt.Errorf("%w: credentials.provider.token is required", ErrConfiguration)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
