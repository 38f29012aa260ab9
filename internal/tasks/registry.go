package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/dlx/internal/shared"
)

// Registry is a mutex-guarded map of active runs keyed by parent or task id.
type Registry[T any] struct {
	mu      sync.Mutex
	entries map[string]T
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register inserts v under id unless an entry already exists, which returns [shared.ErrAlreadyRunning].
func (r *Registry[T]) Register(id string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("%w: %s", shared.ErrAlreadyRunning, id)
	}
	r.entries[id] = v
	return nil
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[id]
	return v, ok
}

func (r *Registry[T]) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Values returns the entries ordered by id.
func (r *Registry[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id])
	}
	return out
}

// signal is a one-shot broadcast flag.
type signal struct {
	once sync.Once
	ch   chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) fire() { s.once.Do(func() { close(s.ch) }) }

func (s *signal) fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// inflight counts runs that have not yet written their terminal state.
// Unlike sync.WaitGroup it tolerates new runs starting while a waiter is blocked.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

// wait blocks until no runs are in flight or ctx is done.
func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.n == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session is the live state of one parent sync.
type Session struct {
	ParentID  string
	TaskID    string
	StartedAt time.Time

	abort  *signal
	linked <-chan struct{} // abort of the owning task run, nil when standalone

	phase      atomic.Int32
	queued     atomic.Int64
	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

func newSession(parentID, taskID string, linked <-chan struct{}) *Session {
	return &Session{
		ParentID:  parentID,
		TaskID:    taskID,
		StartedAt: time.Now().UTC(),
		abort:     newSignal(),
		linked:    linked,
	}
}

// Stop requests cooperative cancellation. In-flight downloads finish.
func (s *Session) Stop() { s.abort.fire() }

// Aborted reports whether the session or its owning task was stopped.
func (s *Session) Aborted() bool {
	if s.abort.fired() {
		return true
	}
	if s.linked == nil {
		return false
	}
	select {
	case <-s.linked:
		return true
	default:
		return false
	}
}

// bind derives a context that is cancelled when the session is aborted. Used only for waits.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.abort.ch:
			cancel()
		case <-s.linked:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *Session) setPhase(p Phase) { s.phase.Store(int32(p)) }

func (s *Session) update(phase Phase, msg string) ProgressUpdate {
	s.setPhase(phase)
	downloaded, failed := int(s.downloaded.Load()), int(s.failed.Load())
	return ProgressUpdate{
		Scope:      ScopeParent,
		ParentID:   s.ParentID,
		TaskID:     s.TaskID,
		Phase:      phase,
		Message:    msg,
		Current:    downloaded + failed,
		Total:      int(s.queued.Load()),
		Downloaded: downloaded,
		Skipped:    int(s.skipped.Load()),
		Failed:     failed,
		Timestamp:  time.Now().UTC(),
	}
}

// SessionStats is a point-in-time snapshot of a [Session].
type SessionStats struct {
	ParentID   string    `json:"parent_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Phase      Phase     `json:"phase"`
	StartedAt  time.Time `json:"started_at"`
	Queued     int       `json:"queued"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

func (s *Session) Stats() SessionStats {
	return SessionStats{
		ParentID:   s.ParentID,
		TaskID:     s.TaskID,
		Phase:      Phase(s.phase.Load()),
		StartedAt:  s.StartedAt,
		Queued:     int(s.queued.Load()),
		Downloaded: int(s.downloaded.Load()),
		Skipped:    int(s.skipped.Load()),
		Failed:     int(s.failed.Load()),
	}
}

// TaskRun is the live state of one task run.
type TaskRun struct {
	TaskID    string
	StartedAt time.Time

	abort      *signal
	parents    int
	finished   atomic.Int64
	downloaded atomic.Int64
}

func newTaskRun(taskID string, parents int) *TaskRun {
	return &TaskRun{TaskID: taskID, StartedAt: time.Now().UTC(), abort: newSignal(), parents: parents}
}

func (r *TaskRun) Stop()         { r.abort.fire() }
func (r *TaskRun) Aborted() bool { return r.abort.fired() }

// TaskRunStats is a point-in-time snapshot of a [TaskRun].
type TaskRunStats struct {
	TaskID          string    `json:"task_id"`
	StartedAt       time.Time `json:"started_at"`
	Parents         int       `json:"parents"`
	FinishedParents int       `json:"finished_parents"`
	Downloaded      int       `json:"downloaded"`
}

func (r *TaskRun) Stats() TaskRunStats {
	return TaskRunStats{
		TaskID:          r.TaskID,
		StartedAt:       r.StartedAt,
		Parents:         r.parents,
		FinishedParents: int(r.finished.Load()),
		Downloaded:      int(r.downloaded.Load()),
	}
}
