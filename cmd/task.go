package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

type taskView struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	Concurrency     int        `json:"concurrency"`
	ParentIDs       []string   `json:"parent_ids"`
	TotalCount      int        `json:"total_count"`
	DownloadedCount int        `json:"downloaded_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CronExpr        string     `json:"cron_expr,omitempty"`
	AutoRun         bool       `json:"auto_run"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
}

func newTaskView(t *models.Task) taskView {
	return taskView{
		ID:              t.ID,
		Name:            t.Name,
		Status:          string(t.Status),
		Concurrency:     t.Concurrency,
		ParentIDs:       t.ParentIDs,
		TotalCount:      t.TotalCount,
		DownloadedCount: t.DownloadedCount,
		ErrorMessage:    t.ErrorMessage,
		CronExpr:        t.Schedule.CronExpr,
		AutoRun:         t.Schedule.Enabled,
		LastRunAt:       t.LastRunAt,
	}
}

// TaskCreate groups parents into a new task.
func (r *Runner) TaskCreate(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: task name is required", shared.ErrMissingArgument)
	}

	sched, err := scheduleFromFlags(cmd)
	if err != nil {
		return err
	}

	var parentIDs []string
	for _, ref := range cmd.StringSlice("parent") {
		p, err := r.resolveParent(ctx, ref)
		if err != nil {
			return fmt.Errorf("parent %s: %w", ref, err)
		}
		parentIDs = append(parentIDs, p.ID)
	}

	store, err := r.openStore()
	if err != nil {
		return err
	}

	t := models.NewTask(name, cmd.Int("concurrency"), parentIDs)
	t.Schedule = sched
	if err := store.Tasks.Create(ctx, t); err != nil {
		return err
	}

	r.logger.Info("task created", "id", t.ID, "parents", len(parentIDs))
	r.writePlain("✓ Created task %s (%s) with %d parents\n", t.Name, t.ID, len(parentIDs))
	return nil
}

// TaskList prints every task with its last run counters.
func (r *Runner) TaskList(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}
	list, err := store.Tasks.List(ctx)
	if err != nil {
		return err
	}

	views := make([]taskView, len(list))
	for i, t := range list {
		views[i] = newTaskView(t)
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if len(views) == 0 {
		r.writePlain("No tasks. Create one with 'dlx task create <name> --parent <id>'.\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Tasks (%d)", len(views)))
	for _, v := range views {
		r.writePlain("%s  %s [%s] parents=%d concurrency=%d downloaded=%d/%d",
			v.ID, v.Name, v.Status, len(v.ParentIDs), v.Concurrency, v.DownloadedCount, v.TotalCount)
		if v.AutoRun {
			r.writePlain(" cron=%q", v.CronExpr)
		}
		if v.ErrorMessage != "" {
			r.writePlain(" error=%q", v.ErrorMessage)
		}
		r.writePlain("\n")
	}
	return nil
}

// TaskShow prints one task as JSON.
func (r *Runner) TaskShow(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}
	t, err := store.Tasks.Get(ctx, cmd.StringArg("task"))
	if err != nil {
		return err
	}
	return r.writeJSON(newTaskView(t), true)
}

// TaskRemove deletes a task; its parents are kept.
func (r *Runner) TaskRemove(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}
	id := cmd.StringArg("task")
	if err := store.Tasks.Delete(ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Removed task %s\n", id)
	return nil
}

// TaskSchedule sets or disables a task's auto-run schedule.
func (r *Runner) TaskSchedule(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}
	t, err := store.Tasks.Get(ctx, cmd.StringArg("task"))
	if err != nil {
		return err
	}

	sched, err := scheduleFromFlags(cmd)
	if err != nil {
		return err
	}
	if sched.CronExpr == "" {
		sched.CronExpr = t.Schedule.CronExpr
		sched.Enabled = sched.CronExpr != "" && !cmd.Bool("disable")
	}
	if err := store.Tasks.SetSchedule(ctx, t.ID, sched); err != nil {
		return err
	}

	if sched.Enabled {
		r.writePlain("✓ %s runs on %q\n", t.Name, sched.CronExpr)
	} else {
		r.writePlain("✓ Auto-run disabled for %s\n", t.Name)
	}
	return nil
}
