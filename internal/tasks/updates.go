package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/dlx/internal/models"
)

// Scope says whether a [ProgressUpdate] describes one parent sync or a whole task run.
type Scope string

const (
	ScopeParent Scope = "parent"
	ScopeTask   Scope = "task"
)

// ProgressUpdate represents a progress event during a sync or task run.
//
// Sent to a [ProgressSink] for display by the CLI, the TUI and the HTTP event stream.
type ProgressUpdate struct {
	Scope      Scope     `json:"scope"`
	ParentID   string    `json:"parent_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Phase      Phase     `json:"phase"`
	Message    string    `json:"message"`
	Current    int       `json:"current"` // Items attempted so far
	Total      int       `json:"total"`   // Items queued for download, or the listing cap while listing
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}

// Terminal reports whether no further updates follow for this scope and id.
func (u ProgressUpdate) Terminal() bool {
	switch u.Phase {
	case PhaseCompleted, PhaseStopped, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// Operation phase enumeration
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListing
	PhaseBatching
	PhaseDownloading
	PhaseCooldown
	PhaseRunning
	PhaseCompleted
	PhaseStopped
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListing:
		return "listing"
	case PhaseBatching:
		return "batching"
	case PhaseDownloading:
		return "downloading"
	case PhaseCooldown:
		return "cooldown"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// MarshalText encodes the phase as its label.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase label written by [Phase.MarshalText].
func (p *Phase) UnmarshalText(text []byte) error {
	for c := PhaseIdle; c <= PhaseCancelled; c++ {
		if c.String() == string(text) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// syncStatus maps a terminal parent phase onto the persisted status.
func (p Phase) syncStatus() models.SyncStatus {
	switch p {
	case PhaseCompleted:
		return models.SyncCompleted
	case PhaseStopped:
		return models.SyncStopped
	case PhaseFailed:
		return models.SyncFailed
	case PhaseIdle:
		return models.SyncIdle
	default:
		return models.SyncSyncing
	}
}

func listingUpdate(s *Session, name string, limit int) ProgressUpdate {
	u := s.update(PhaseListing, fmt.Sprintf("Listing items for %s...", name))
	u.Total = limit
	return u
}

func skippedUpdate(s *Session, skipped int) ProgressUpdate {
	return s.update(PhaseListing, fmt.Sprintf("Skipped %d already downloaded items", skipped))
}

func batchingUpdate(s *Session, queued, batches int) ProgressUpdate {
	return s.update(PhaseBatching, fmt.Sprintf("%d new items in %d batches", queued, batches))
}

func batchStartUpdate(s *Session, n, batches, size int) ProgressUpdate {
	return s.update(PhaseDownloading, fmt.Sprintf("[%d/%d] Downloading %d items...", n, batches, size))
}

func batchDoneUpdate(s *Session, n, batches int) ProgressUpdate {
	return s.update(PhaseDownloading, fmt.Sprintf("[%d/%d] Batch finished", n, batches))
}

func cooldownUpdate(s *Session, d time.Duration) ProgressUpdate {
	return s.update(PhaseCooldown, fmt.Sprintf("Cooling down for %s", d))
}

func syncFinishedUpdate(s *Session, phase Phase, err error) ProgressUpdate {
	var msg string
	switch phase {
	case PhaseCompleted:
		msg = fmt.Sprintf("✓ Sync completed: %d downloaded, %d skipped", s.downloaded.Load(), s.skipped.Load())
	case PhaseStopped:
		msg = fmt.Sprintf("Sync stopped: %d downloaded before stop", s.downloaded.Load())
	default:
		msg = fmt.Sprintf("✗ Sync failed: %v", err)
	}
	return s.update(phase, msg)
}

func taskUpdate(r *TaskRun, phase Phase, msg string) ProgressUpdate {
	return ProgressUpdate{
		Scope:      ScopeTask,
		TaskID:     r.TaskID,
		Phase:      phase,
		Message:    msg,
		Current:    int(r.finished.Load()),
		Total:      r.parents,
		Downloaded: int(r.downloaded.Load()),
		Timestamp:  time.Now().UTC(),
	}
}

func taskStartedUpdate(r *TaskRun, name string, baseline int) ProgressUpdate {
	return taskUpdate(r, PhaseRunning,
		fmt.Sprintf("Running %s: %d parents, %d items previously downloaded", name, r.parents, baseline))
}

// taskParentDoneUpdate reports finished as the count including parentID.
func taskParentDoneUpdate(r *TaskRun, finished int, parentID string, downloaded int) ProgressUpdate {
	u := taskUpdate(r, PhaseRunning,
		fmt.Sprintf("[%d/%d] %s: %d downloaded", finished, r.parents, parentID, downloaded))
	u.Current = finished
	return u
}
