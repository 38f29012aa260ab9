package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

const parentColumns = `id, external_id, name, max_items, auto_sync, cron_expr, sync_status, last_synced_at, created_at, updated_at`

// ParentRepository persists tracked remote accounts.
type ParentRepository struct {
	db *sql.DB
}

// NewParentRepository creates a new ParentRepository with the given database connection
func NewParentRepository(db *sql.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// Create inserts a parent, generating its ID when unset.
func (r *ParentRepository) Create(ctx context.Context, p *models.Parent) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if p.ID == "" {
		p.ID = shared.GenerateID()
	}
	if p.SyncStatus == "" {
		p.SyncStatus = models.SyncIdle
	}

	query := `INSERT INTO parents (` + parentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.ExternalID,
		p.Name,
		p.MaxItems,
		boolInt(p.Schedule.Enabled),
		p.Schedule.CronExpr,
		p.SyncStatus,
		nullTime(p.LastSyncedAt),
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert parent: %w", err)
	}
	return nil
}

// Get retrieves a parent by ID.
func (r *ParentRepository) Get(ctx context.Context, id string) (*models.Parent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+parentColumns+` FROM parents WHERE id = ?`, id)
	p, err := scanParent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("parent %s: %w", id, shared.ErrNotFound)
	}
	return p, err
}

// GetByExternalID retrieves a parent by its remote account identifier.
func (r *ParentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Parent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+parentColumns+` FROM parents WHERE external_id = ?`, externalID)
	p, err := scanParent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("parent with external id %s: %w", externalID, shared.ErrNotFound)
	}
	return p, err
}

// List returns every parent ordered by creation time.
func (r *ParentRepository) List(ctx context.Context) ([]*models.Parent, error) {
	return r.query(ctx, `SELECT `+parentColumns+` FROM parents ORDER BY created_at ASC`)
}

// ListAutoSync returns the parents with an enabled schedule.
func (r *ParentRepository) ListAutoSync(ctx context.Context) ([]*models.Parent, error) {
	return r.query(ctx, `SELECT `+parentColumns+` FROM parents WHERE auto_sync = 1 AND cron_expr != '' ORDER BY created_at ASC`)
}

// Update writes the user-editable fields of a parent.
func (r *ParentRepository) Update(ctx context.Context, p *models.Parent) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	p.UpdatedAt = time.Now().UTC()

	return r.exec(ctx, p.ID, `
		UPDATE parents
		SET name = ?, max_items = ?, auto_sync = ?, cron_expr = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.MaxItems, boolInt(p.Schedule.Enabled), p.Schedule.CronExpr, p.UpdatedAt, p.ID)
}

// SetSchedule replaces the parent's cron schedule.
func (r *ParentRepository) SetSchedule(ctx context.Context, id string, s models.Schedule) error {
	return r.exec(ctx, id, `UPDATE parents SET auto_sync = ?, cron_expr = ?, updated_at = ? WHERE id = ?`,
		boolInt(s.Enabled), s.CronExpr, time.Now().UTC(), id)
}

// UpdateSyncStatus records the parent's sync state, and the last-synced time when at is set.
func (r *ParentRepository) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, at *time.Time) error {
	now := time.Now().UTC()
	if at == nil {
		return r.exec(ctx, id, `UPDATE parents SET sync_status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	}
	return r.exec(ctx, id, `UPDATE parents SET sync_status = ?, last_synced_at = ?, updated_at = ? WHERE id = ?`,
		status, at.UTC(), now, id)
}

// Delete removes a parent and, through foreign keys, its items and task memberships.
func (r *ParentRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, id, `DELETE FROM parents WHERE id = ?`, id)
}

func (r *ParentRepository) exec(ctx context.Context, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write parent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("parent %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *ParentRepository) query(ctx context.Context, query string, args ...any) ([]*models.Parent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query parents: %w", err)
	}
	defer rows.Close()

	var parents []*models.Parent
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, err
		}
		parents = append(parents, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return parents, nil
}

func scanParent(s scanner) (*models.Parent, error) {
	var (
		p          models.Parent
		autoSync   int
		lastSynced sql.NullTime
	)
	err := s.Scan(
		&p.ID,
		&p.ExternalID,
		&p.Name,
		&p.MaxItems,
		&autoSync,
		&p.Schedule.CronExpr,
		&p.SyncStatus,
		&lastSynced,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan parent: %w", err)
	}
	p.Schedule.Enabled = autoSync == 1
	p.LastSyncedAt = timePtr(lastSynced)
	return &p, nil
}
