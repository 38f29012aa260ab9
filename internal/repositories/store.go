package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/desertthunder/dlx/internal/models"
)

// Store is the content store consumed by the sync engine, orchestrator and scheduler.
type Store struct {
	Parents *ParentRepository
	Tasks   *TaskRepository
	Items   *ItemRepository
}

// NewStore builds every repository over one connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Parents: NewParentRepository(db),
		Tasks:   NewTaskRepository(db),
		Items:   NewItemRepository(db),
	}
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.Tasks.Get(ctx, id)
}

func (s *Store) UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error {
	return s.Tasks.UpdateRun(ctx, id, u)
}

func (s *Store) SetTaskLastRun(ctx context.Context, id string, at time.Time) error {
	return s.Tasks.SetLastRun(ctx, id, at)
}

func (s *Store) ListAutoSyncTasks(ctx context.Context) ([]*models.Task, error) {
	return s.Tasks.ListAutoRun(ctx)
}

func (s *Store) GetParent(ctx context.Context, id string) (*models.Parent, error) {
	return s.Parents.Get(ctx, id)
}

func (s *Store) ListAutoSyncParents(ctx context.Context) ([]*models.Parent, error) {
	return s.Parents.ListAutoSync(ctx)
}

func (s *Store) UpdateParentSyncStatus(ctx context.Context, id string, status models.SyncStatus, at *time.Time) error {
	return s.Parents.UpdateSyncStatus(ctx, id, status, at)
}

func (s *Store) ItemExists(ctx context.Context, id string) (bool, error) {
	return s.Items.Exists(ctx, id)
}

func (s *Store) PersistItem(ctx context.Context, item *models.Item) error {
	return s.Items.Upsert(ctx, item)
}

func (s *Store) CountParentItems(ctx context.Context, parentID string) (int, error) {
	return s.Items.CountByParent(ctx, parentID)
}

func (s *Store) ListParents(ctx context.Context) ([]*models.Parent, error) {
	return s.Parents.List(ctx)
}

// ListParentItems returns the newest downloads of a parent; limit <= 0 returns all.
func (s *Store) ListParentItems(ctx context.Context, parentID string, limit int) ([]*models.Item, error) {
	return s.Items.ListByParent(ctx, parentID, limit)
}
