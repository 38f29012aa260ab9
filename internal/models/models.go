// package models defines the data model for the content sync engine
package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a [Task].
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// SyncStatus is the last known sync state of a [Parent].
type SyncStatus string

const (
	SyncIdle      SyncStatus = "idle"
	SyncSyncing   SyncStatus = "syncing"
	SyncCompleted SyncStatus = "completed"
	SyncStopped   SyncStatus = "stopped"
	SyncFailed    SyncStatus = "failed"
)

// ItemKind distinguishes single-media items from multi-image galleries.
type ItemKind string

const (
	KindVideo   ItemKind = "video"
	KindGallery ItemKind = "gallery"
)

// Schedule is the persisted cron shape attached to a parent or a task.
type Schedule struct {
	CronExpr string
	Enabled  bool
}

// Task groups parents into one job run with bounded parallelism.
type Task struct {
	ID              string
	Name            string
	Status          TaskStatus
	Concurrency     int
	ParentIDs       []string // Ordered member parents
	TotalCount      int
	DownloadedCount int
	ErrorMessage    string
	Schedule        Schedule
	LastRunAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTask creates a pending task with a concurrency of at least one.
func NewTask(name string, concurrency int, parentIDs []string) *Task {
	if concurrency < 1 {
		concurrency = 1
	}
	now := time.Now().UTC()
	return &Task{
		Name:        name,
		Status:      TaskPending,
		Concurrency: concurrency,
		ParentIDs:   parentIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the task's required fields.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Concurrency < 1 {
		return fmt.Errorf("task concurrency must be >= 1, got %d", t.Concurrency)
	}
	seen := make(map[string]bool, len(t.ParentIDs))
	for _, id := range t.ParentIDs {
		if seen[id] {
			return fmt.Errorf("duplicate parent %s in task", id)
		}
		seen[id] = true
	}
	return nil
}

// TaskUpdate is the set of run fields the orchestrator writes back.
type TaskUpdate struct {
	Status          TaskStatus
	TotalCount      int
	DownloadedCount int
	ErrorMessage    string
}

// Parent is a tracked remote account.
type Parent struct {
	ID           string
	ExternalID   string // Remote account identifier
	Name         string
	MaxItems     int // Per-parent item cap; 0 inherits the global default
	Schedule     Schedule
	SyncStatus   SyncStatus
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewParent creates an idle parent for the given remote account.
func NewParent(externalID, name string) *Parent {
	now := time.Now().UTC()
	return &Parent{
		ExternalID: externalID,
		Name:       name,
		SyncStatus: SyncIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks the parent's required fields.
func (p *Parent) Validate() error {
	if strings.TrimSpace(p.ExternalID) == "" {
		return fmt.Errorf("parent external id is required")
	}
	if p.MaxItems < 0 {
		return fmt.Errorf("parent max items must be >= 0, got %d", p.MaxItems)
	}
	return nil
}

// EffectiveCap returns the parent's override when set, else the global default. 0 means unlimited.
func (p *Parent) EffectiveCap(globalDefault int) int {
	if p.MaxItems > 0 {
		return p.MaxItems
	}
	if globalDefault < 0 {
		return 0
	}
	return globalDefault
}

// DisplayName returns the name, falling back to the external id.
func (p *Parent) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ExternalID
}

// ItemDescriptor is one entry of a remote listing page.
type ItemDescriptor struct {
	ID        string    `json:"id"`
	Kind      ItemKind  `json:"kind"`
	Title     string    `json:"title"`
	MediaURLs []string  `json:"media_urls"`
	CreatedAt time.Time `json:"created_at"`
}

// IsGallery reports whether the item is a multi-image post, which skips duration probing.
func (d ItemDescriptor) IsGallery() bool {
	return d.Kind == KindGallery
}

// Item is the persisted metadata of a downloaded item.
type Item struct {
	ID              string // Remote item id, the dedup key
	ParentID        string
	Kind            ItemKind
	Title           string
	MediaPaths      []string
	DurationSeconds float64
	RemoteCreatedAt *time.Time
	DownloadedAt    time.Time
}

// NewItem builds the persisted record for a descriptor whose media landed at paths.
func NewItem(parentID string, d ItemDescriptor, paths []string) *Item {
	item := &Item{
		ID:           d.ID,
		ParentID:     parentID,
		Kind:         d.Kind,
		Title:        d.Title,
		MediaPaths:   paths,
		DownloadedAt: time.Now().UTC(),
	}
	if !d.CreatedAt.IsZero() {
		created := d.CreatedAt.UTC()
		item.RemoteCreatedAt = &created
	}
	return item
}
