package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

// Store is the subset of the content store the engine and orchestrator need.
type Store interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error
	GetParent(ctx context.Context, id string) (*models.Parent, error)
	ItemExists(ctx context.Context, id string) (bool, error)
	PersistItem(ctx context.Context, item *models.Item) error
	UpdateParentSyncStatus(ctx context.Context, id string, status models.SyncStatus, at *time.Time) error
	CountParentItems(ctx context.Context, parentID string) (int, error)
}

// Settings are the global limits applied to every sync.
type Settings struct {
	Token               string
	DefaultMaxItems     int // 0 means unlimited
	DownloadConcurrency int
	BatchCooldown       time.Duration
	DownloadDir         string
}

// SettingsFromConfig extracts engine settings from the application config.
func SettingsFromConfig(cfg *shared.Config) Settings {
	return Settings{
		Token:               cfg.Credentials.Provider.Token,
		DefaultMaxItems:     cfg.Sync.DefaultMaxItems,
		DownloadConcurrency: cfg.Sync.DownloadConcurrency,
		BatchCooldown:       cfg.Sync.BatchCooldown(),
		DownloadDir:         cfg.Sync.DownloadDir,
	}
}

// Validate returns [shared.ErrConfiguration] when a sync could not start with these settings.
func (s Settings) Validate() error {
	switch {
	case strings.TrimSpace(s.Token) == "":
		return fmt.Errorf("%w: credential token is not set", shared.ErrConfiguration)
	case strings.TrimSpace(s.DownloadDir) == "":
		return fmt.Errorf("%w: download directory is not set", shared.ErrConfiguration)
	case s.DownloadConcurrency < 1:
		return fmt.Errorf("%w: download concurrency must be >= 1", shared.ErrConfiguration)
	case s.DefaultMaxItems < 0:
		return fmt.Errorf("%w: default max items must be >= 0", shared.ErrConfiguration)
	}
	return nil
}
