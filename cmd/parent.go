package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/scheduler"
	"github.com/desertthunder/dlx/internal/shared"
)

type parentView struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"`
	Name         string     `json:"name"`
	MaxItems     int        `json:"max_items"`
	CronExpr     string     `json:"cron_expr,omitempty"`
	AutoSync     bool       `json:"auto_sync"`
	SyncStatus   string     `json:"sync_status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Items        int        `json:"items"`
}

// scheduleFromFlags reads --cron and --disable. A given expression is validated even when disabled.
func scheduleFromFlags(cmd *cli.Command) (models.Schedule, error) {
	expr := strings.TrimSpace(cmd.String("cron"))
	s := models.Schedule{CronExpr: expr, Enabled: expr != "" && !cmd.Bool("disable")}
	if expr != "" {
		if err := scheduler.ValidateCronExpression(expr); err != nil {
			return s, err
		}
	}
	return s, nil
}

// ParentAdd tracks a new remote account.
func (r *Runner) ParentAdd(ctx context.Context, cmd *cli.Command) error {
	externalID := cmd.StringArg("account")
	if externalID == "" {
		return fmt.Errorf("%w: account is required", shared.ErrMissingArgument)
	}

	sched, err := scheduleFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := r.openStore()
	if err != nil {
		return err
	}

	p := models.NewParent(externalID, cmd.String("name"))
	p.MaxItems = cmd.Int("max-items")
	p.Schedule = sched
	if err := store.Parents.Create(ctx, p); err != nil {
		return err
	}

	r.logger.Info("parent added", "id", p.ID, "account", p.ExternalID)
	r.writePlain("✓ Added %s (%s)\n", p.DisplayName(), p.ID)
	return nil
}

// ParentList prints every tracked parent with its item count.
func (r *Runner) ParentList(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}
	parents, err := store.Parents.List(ctx)
	if err != nil {
		return err
	}

	views := make([]parentView, 0, len(parents))
	for _, p := range parents {
		count, err := store.CountParentItems(ctx, p.ID)
		if err != nil {
			return err
		}
		views = append(views, parentView{
			ID:           p.ID,
			ExternalID:   p.ExternalID,
			Name:         p.DisplayName(),
			MaxItems:     p.MaxItems,
			CronExpr:     p.Schedule.CronExpr,
			AutoSync:     p.Schedule.Enabled,
			SyncStatus:   string(p.SyncStatus),
			LastSyncedAt: p.LastSyncedAt,
			Items:        count,
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if len(views) == 0 {
		r.writePlain("No parents tracked. Add one with 'dlx parent add <account>'.\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Parents (%d)", len(views)))
	for _, v := range views {
		r.writePlain("%s  %s [%s] items=%d", v.ID, v.Name, v.SyncStatus, v.Items)
		if v.AutoSync {
			r.writePlain(" cron=%q", v.CronExpr)
		}
		if v.LastSyncedAt != nil {
			r.writePlain(" last=%s", v.LastSyncedAt.Local().Format(time.DateTime))
		}
		r.writePlain("\n")
	}
	return nil
}

// ParentRemove deletes a parent and, by cascade, its items and task memberships.
func (r *Runner) ParentRemove(ctx context.Context, cmd *cli.Command) error {
	p, err := r.resolveParent(ctx, cmd.StringArg("parent"))
	if err != nil {
		return err
	}
	if err := r.store.Parents.Delete(ctx, p.ID); err != nil {
		return err
	}
	r.writePlain("✓ Removed %s\n", p.DisplayName())
	return nil
}

// ParentSchedule sets or disables a parent's auto-sync schedule.
func (r *Runner) ParentSchedule(ctx context.Context, cmd *cli.Command) error {
	p, err := r.resolveParent(ctx, cmd.StringArg("parent"))
	if err != nil {
		return err
	}

	sched, err := scheduleFromFlags(cmd)
	if err != nil {
		return err
	}
	if sched.CronExpr == "" {
		sched.CronExpr = p.Schedule.CronExpr
		sched.Enabled = sched.CronExpr != "" && !cmd.Bool("disable")
	}
	if err := r.store.Parents.SetSchedule(ctx, p.ID, sched); err != nil {
		return err
	}

	if sched.Enabled {
		r.writePlain("✓ %s syncs on %q\n", p.DisplayName(), sched.CronExpr)
	} else {
		r.writePlain("✓ Auto-sync disabled for %s\n", p.DisplayName())
	}
	return nil
}
