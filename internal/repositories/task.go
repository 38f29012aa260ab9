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

const taskColumns = `id, name, status, concurrency, total_count, downloaded_count, error_message, auto_run, cron_expr, last_run_at, created_at, updated_at`

// TaskRepository persists tasks and their ordered member parents.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a task and its member list in one transaction.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if t.ID == "" {
		t.ID = shared.GenerateID()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Status,
		t.Concurrency,
		t.TotalCount,
		t.DownloadedCount,
		t.ErrorMessage,
		boolInt(t.Schedule.Enabled),
		t.Schedule.CronExpr,
		nullTime(t.LastRunAt),
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if err := insertMembers(ctx, tx, t.ID, t.ParentIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get retrieves a task with its member parents in position order.
func (r *TaskRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if t.ParentIDs, err = r.members(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns every task ordered by creation time.
func (r *TaskRepository) List(ctx context.Context) ([]*models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
}

// ListAutoRun returns the tasks with an enabled schedule.
func (r *TaskRepository) ListAutoRun(ctx context.Context) ([]*models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE auto_run = 1 AND cron_expr != '' ORDER BY created_at ASC`)
}

// UpdateRun writes the run status and counters.
func (r *TaskRepository) UpdateRun(ctx context.Context, id string, u models.TaskUpdate) error {
	return r.exec(ctx, id, `
		UPDATE tasks
		SET status = ?, total_count = ?, downloaded_count = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, u.Status, u.TotalCount, u.DownloadedCount, u.ErrorMessage, time.Now().UTC(), id)
}

// SetSchedule replaces the task's cron schedule.
func (r *TaskRepository) SetSchedule(ctx context.Context, id string, s models.Schedule) error {
	return r.exec(ctx, id, `UPDATE tasks SET auto_run = ?, cron_expr = ?, updated_at = ? WHERE id = ?`,
		boolInt(s.Enabled), s.CronExpr, time.Now().UTC(), id)
}

// SetLastRun records when the task last finished a scheduled run.
func (r *TaskRepository) SetLastRun(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, id, `UPDATE tasks SET last_run_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
}

// SetMembers replaces the ordered member list of a task.
func (r *TaskRepository) SetMembers(ctx context.Context, id string, parentIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_parents WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear task members: %w", err)
	}
	if err := insertMembers(ctx, tx, id, parentIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a task and its member rows.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, id, `DELETE FROM tasks WHERE id = ?`, id)
}

func (r *TaskRepository) members(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT parent_id FROM task_parents WHERE task_id = ? ORDER BY position ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task members: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan task member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *TaskRepository) exec(ctx context.Context, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// query loads matching tasks, then their members once the task cursor is closed.
func (r *TaskRepository) query(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, t := range tasks {
		if t.ParentIDs, err = r.members(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, taskID string, parentIDs []string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO task_parents (task_id, parent_id, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare member insert: %w", err)
	}
	defer stmt.Close()

	for i, pid := range parentIDs {
		if _, err := stmt.ExecContext(ctx, taskID, pid, i); err != nil {
			return fmt.Errorf("failed to insert task member %s: %w", pid, err)
		}
	}
	return nil
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		t       models.Task
		autoRun int
		lastRun sql.NullTime
	)
	err := s.Scan(
		&t.ID,
		&t.Name,
		&t.Status,
		&t.Concurrency,
		&t.TotalCount,
		&t.DownloadedCount,
		&t.ErrorMessage,
		&autoRun,
		&t.Schedule.CronExpr,
		&lastRun,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Schedule.Enabled = autoRun == 1
	t.LastRunAt = timePtr(lastRun)
	return &t, nil
}
