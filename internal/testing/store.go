package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

// MemoryStore is an in-memory content store for engine, orchestrator and scheduler tests.
type MemoryStore struct {
	mu      sync.Mutex
	parents map[string]*models.Parent
	tasks   map[string]*models.Task
	items   map[string]*models.Item

	persistCalls  int
	taskUpdates   map[string][]models.TaskUpdate
	statusUpdates map[string][]models.SyncStatus

	// UpdateTaskErr, when set, fails every UpdateTask call.
	UpdateTaskErr error
	// GetParentErr, when set, fails every GetParent call.
	GetParentErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parents:       make(map[string]*models.Parent),
		tasks:         make(map[string]*models.Task),
		items:         make(map[string]*models.Item),
		taskUpdates:   make(map[string][]models.TaskUpdate),
		statusUpdates: make(map[string][]models.SyncStatus),
	}
}

// AddParent stores a parent whose id equals its external id.
func (s *MemoryStore) AddParent(externalID string, maxItems int) *models.Parent {
	p := models.NewParent(externalID, externalID)
	p.ID = externalID
	p.MaxItems = maxItems

	s.mu.Lock()
	defer s.mu.Unlock()
	s.parents[p.ID] = p
	return p
}

func (s *MemoryStore) AddTask(id string, concurrency int, parentIDs ...string) *models.Task {
	t := models.NewTask(id, concurrency, parentIDs)
	t.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return t
}

func (s *MemoryStore) ListParents(context.Context) ([]*models.Parent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Parent, 0, len(s.parents))
	for _, p := range s.parents {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListParentItems returns a parent's items newest first; limit <= 0 returns all.
func (s *MemoryStore) ListParentItems(_ context.Context, parentID string, limit int) ([]*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Item
	for _, it := range s.items {
		if it.ParentID == parentID {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DownloadedAt.Equal(out[j].DownloadedAt) {
			return out[i].DownloadedAt.After(out[j].DownloadedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SeedItems marks items as already downloaded for a parent.
func (s *MemoryStore) SeedItems(parentID string, items ...models.ItemDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range items {
		s.items[d.ID] = models.NewItem(parentID, d, nil)
	}
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}
	cp := *t
	cp.ParentIDs = append([]string(nil), t.ParentIDs...)
	return &cp, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, id string, u models.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateTaskErr != nil {
		return s.UpdateTaskErr
	}
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}
	t.Status = u.Status
	t.TotalCount = u.TotalCount
	t.DownloadedCount = u.DownloadedCount
	t.ErrorMessage = u.ErrorMessage
	t.UpdatedAt = time.Now().UTC()
	s.taskUpdates[id] = append(s.taskUpdates[id], u)
	return nil
}

func (s *MemoryStore) SetTaskLastRun(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}
	at = at.UTC()
	t.LastRunAt = &at
	return nil
}

func (s *MemoryStore) ListAutoSyncTasks(context.Context) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.Schedule.Enabled && t.Schedule.CronExpr != "" {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetParent(_ context.Context, id string) (*models.Parent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetParentErr != nil {
		return nil, s.GetParentErr
	}
	p, ok := s.parents[id]
	if !ok {
		return nil, fmt.Errorf("parent %s: %w", id, shared.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListAutoSyncParents(context.Context) ([]*models.Parent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Parent
	for _, p := range s.parents {
		if p.Schedule.Enabled && p.Schedule.CronExpr != "" {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateParentSyncStatus(_ context.Context, id string, status models.SyncStatus, at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parents[id]
	if !ok {
		return fmt.Errorf("parent %s: %w", id, shared.ErrNotFound)
	}
	p.SyncStatus = status
	if at != nil {
		t := at.UTC()
		p.LastSyncedAt = &t
	}
	s.statusUpdates[id] = append(s.statusUpdates[id], status)
	return nil
}

func (s *MemoryStore) ItemExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok, nil
}

func (s *MemoryStore) PersistItem(_ context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
	s.persistCalls++
	return nil
}

func (s *MemoryStore) CountParentItems(_ context.Context, parentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		if item.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

// Item returns a copy of a stored item.
func (s *MemoryStore) Item(id string) (*models.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	cp := *item
	return &cp, true
}

// Parent returns a copy of a stored parent.
func (s *MemoryStore) Parent(id string) *models.Parent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.parents[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// Task returns a copy of a stored task.
func (s *MemoryStore) Task(id string) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

// SetParentSchedule replaces a parent's schedule in place.
func (s *MemoryStore) SetParentSchedule(id string, sched models.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.parents[id]; ok {
		p.Schedule = sched
	}
}

// SetTaskSchedule replaces a task's schedule in place.
func (s *MemoryStore) SetTaskSchedule(id string, sched models.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Schedule = sched
	}
}

// SetTaskStatus overwrites a task's persisted status.
func (s *MemoryStore) SetTaskStatus(id string, status models.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = status
	}
}

func (s *MemoryStore) PersistCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistCalls
}

func (s *MemoryStore) TaskUpdates(id string) []models.TaskUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TaskUpdate(nil), s.taskUpdates[id]...)
}

func (s *MemoryStore) StatusUpdates(id string) []models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SyncStatus(nil), s.statusUpdates[id]...)
}
