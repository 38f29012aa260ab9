package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

const itemColumns = `id, parent_id, kind, title, media_paths, duration_seconds, remote_created_at, downloaded_at`

// ItemRepository persists downloaded item metadata keyed by remote item id.
type ItemRepository struct {
	db *sql.DB
}

// NewItemRepository creates a new ItemRepository with the given database connection
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Exists reports whether an item with the remote id has been persisted.
func (r *ItemRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM items WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check item %s: %w", id, err)
	}
	return exists, nil
}

// Upsert inserts the item or overwrites the row already stored under its id.
func (r *ItemRepository) Upsert(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		return fmt.Errorf("%w: item id is required", shared.ErrInvalidInput)
	}

	paths := item.MediaPaths
	if paths == nil {
		paths = []string{}
	}
	encoded, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("failed to encode media paths: %w", err)
	}

	query := `
		INSERT INTO items (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			kind = excluded.kind,
			title = excluded.title,
			media_paths = excluded.media_paths,
			duration_seconds = excluded.duration_seconds,
			remote_created_at = excluded.remote_created_at,
			downloaded_at = excluded.downloaded_at
	`
	_, err = r.db.ExecContext(ctx, query,
		item.ID,
		item.ParentID,
		item.Kind,
		item.Title,
		string(encoded),
		item.DurationSeconds,
		nullTime(item.RemoteCreatedAt),
		item.DownloadedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to persist item %s: %w", item.ID, err)
	}
	return nil
}

// Get retrieves an item by remote id.
func (r *ItemRepository) Get(ctx context.Context, id string) (*models.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, shared.ErrNotFound)
	}
	return item, err
}

// ListByParent returns a parent's items, newest download first. A limit <= 0 returns all of them.
func (r *ItemRepository) ListByParent(ctx context.Context, parentID string, limit int) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE parent_id = ? ORDER BY downloaded_at DESC, id ASC`
	args := []any{parentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// CountByParent returns the number of persisted items for a parent.
func (r *ItemRepository) CountByParent(ctx context.Context, parentID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE parent_id = ?`, parentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items for %s: %w", parentID, err)
	}
	return count, nil
}

func scanItem(s scanner) (*models.Item, error) {
	var (
		item    models.Item
		paths   string
		created sql.NullTime
	)
	err := s.Scan(
		&item.ID,
		&item.ParentID,
		&item.Kind,
		&item.Title,
		&paths,
		&item.DurationSeconds,
		&created,
		&item.DownloadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	if err := json.Unmarshal([]byte(paths), &item.MediaPaths); err != nil {
		return nil, fmt.Errorf("failed to decode media paths for %s: %w", item.ID, err)
	}
	item.RemoteCreatedAt = timePtr(created)
	return &item, nil
}
