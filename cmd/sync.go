package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
	"github.com/desertthunder/dlx/internal/ui"
)

const watchLogPath = "./tmp/dlx-watch.log"

// Sync downloads new items for one parent, printing progress until it finishes.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("watch") {
		return r.Watch(ctx, cmd)
	}

	p, err := r.resolveParent(ctx, cmd.StringArg("parent"))
	if err != nil {
		return err
	}
	if err := r.openEngine(); err != nil {
		return err
	}

	updates, unsubscribe := r.broadcaster.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for u := range updates {
			if u.Scope == tasks.ScopeParent && u.ParentID == p.ID {
				r.printUpdate(u)
			}
		}
	}()

	stop := r.stopOnSignal(ctx, func() { r.engine.Stop(p.ID) })
	defer stop()

	res, err := r.engine.Sync(ctx, tasks.SyncRequest{ParentID: p.ID})
	unsubscribe()
	<-printed
	if res == nil {
		return err
	}

	r.writePlainln("%s: %s", p.DisplayName(), res.Status)
	r.writePlain("Downloaded: %d  Skipped: %d  Failed: %d  Elapsed: %s\n",
		res.Downloaded, res.Skipped, res.Failed, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	return err
}

// Watch opens the TUI. With a parent argument the sync starts immediately.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	if err := os.MkdirAll(filepath.Dir(watchLogPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logger, err := shared.NewFileLogger(watchLogPath)
	if err != nil {
		return err
	}
	r.SetLogger(logger)

	opts := ui.Options{PreviewLimit: cmd.Int("limit")}
	if ref := cmd.StringArg("parent"); ref != "" {
		p, err := r.resolveParent(ctx, ref)
		if err != nil {
			return err
		}
		opts.ParentID, opts.ParentName = p.ID, p.DisplayName()
	}
	if err := r.openEngine(); err != nil {
		return err
	}

	model := ui.NewModel(ctx, r.store, r.engine, r.broadcaster, opts)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	res, err := model.Result()
	if res != nil {
		r.writePlain("%s: %s (downloaded %d, skipped %d, failed %d)\n",
			opts.ParentName, res.Status, res.Downloaded, res.Skipped, res.Failed)
	}
	return err
}

// RunTask runs every member parent of a task and prints the aggregate result.
func (r *Runner) RunTask(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task")
	if taskID == "" {
		return fmt.Errorf("%w: task id is required", shared.ErrMissingArgument)
	}
	if err := r.openEngine(); err != nil {
		return err
	}

	updates, unsubscribe := r.broadcaster.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for u := range updates {
			if u.TaskID == taskID {
				r.printUpdate(u)
			}
		}
	}()

	stop := r.stopOnSignal(ctx, func() { r.orchestrator.Stop(taskID) })
	defer stop()

	res, err := r.orchestrator.Run(ctx, taskID)
	unsubscribe()
	<-printed
	if res == nil {
		return err
	}

	status := string(res.Status)
	if res.Cancelled {
		status = "cancelled"
	}
	r.writePlainln("Task %s: %s", taskID, status)
	r.writePlain("Downloaded: %d (baseline %d)  Elapsed: %s\n",
		res.Downloaded, res.Baseline, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	for _, pr := range res.Parents {
		r.writePlain("  %s  %-9s downloaded=%d skipped=%d failed=%d\n",
			pr.ParentID, pr.Status, pr.Downloaded, pr.Skipped, pr.Failed)
	}
	if res.Status == models.TaskFailed && err == nil {
		return errors.New("task failed")
	}
	return err
}

// stopOnSignal calls stop once on SIGINT or SIGTERM. The returned func releases the handler.
func (r *Runner) stopOnSignal(ctx context.Context, stop func()) func() {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				r.logger.Warn("interrupt received, stopping")
				stop()
			}
		case <-done:
		}
	}()
	return func() {
		close(done)
		cancel()
	}
}

func (r *Runner) printUpdate(u tasks.ProgressUpdate) {
	prefix := u.ParentID
	if u.Scope == tasks.ScopeTask {
		prefix = "task " + u.TaskID
	}
	if u.Total > 0 {
		r.writePlain("[%s] %-11s %d/%d %s\n", prefix, u.Phase, u.Current, u.Total, u.Message)
		return
	}
	r.writePlain("[%s] %-11s %s\n", prefix, u.Phase, u.Message)
}
