package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/dlx/internal/scheduler"
	"github.com/desertthunder/dlx/internal/shared"
)

// ScheduleValidate checks a cron expression and prints its next fire times.
func (r *Runner) ScheduleValidate(ctx context.Context, cmd *cli.Command) error {
	expr := cmd.StringArg("expr")
	if err := scheduler.ValidateCronExpression(expr); err != nil {
		return err
	}

	next, err := scheduler.NextFires(expr, time.Now(), cmd.Int("count"))
	if err != nil {
		return err
	}

	r.writePlain("✓ %q is valid\n", expr)
	for _, t := range next {
		r.writePlain("  %s\n", t.Local().Format(time.DateTime))
	}
	return nil
}

// ScheduleList prints every enabled parent and task schedule with its next fire time.
func (r *Runner) ScheduleList(ctx context.Context, cmd *cli.Command) error {
	if err := r.openEngine(); err != nil {
		return err
	}

	sched, err := r.newScheduler()
	if err != nil {
		return err
	}
	if err := sched.Init(ctx); err != nil {
		return err
	}
	entries := sched.Entries()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := sched.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	if len(entries) == 0 {
		r.writePlain("No schedules enabled.\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Schedules (%d)", len(entries)))
	for _, e := range entries {
		r.writePlain("%-6s %s  %-20q next=%s\n", e.Kind, e.ID, e.CronExpr, e.Next.Local().Format(time.DateTime))
	}
	return nil
}

func (r *Runner) newScheduler() (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(scheduler.Config{
		Store:  r.store,
		Syncer: r.engine,
		Runner: r.orchestrator,
		Logger: r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}
	return sched, nil
}
