package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/dlx/internal/formatter"
)

// ItemsList prints the most recently downloaded items of a parent.
func (r *Runner) ItemsList(ctx context.Context, cmd *cli.Command) error {
	p, err := r.resolveParent(ctx, cmd.StringArg("parent"))
	if err != nil {
		return err
	}

	items, err := r.store.Items.ListByParent(ctx, p.ID, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		export := &formatter.ItemExport{Parent: p, Items: items, ExportedAt: time.Now().UTC()}
		data, err := formatter.ExportToJSON(export)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", data)
	}

	if len(items) == 0 {
		r.writePlain("No items downloaded for %s yet.\n", p.DisplayName())
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("%s (%d items)", p.DisplayName(), len(items)))
	for _, it := range items {
		r.writePlain("%s  %-7s %-8s %s  %s\n",
			it.DownloadedAt.Local().Format(time.DateTime), it.Kind,
			formatter.FormatDuration(it.DurationSeconds), it.ID, it.Title)
		if cmd.Bool("paths") {
			r.writePlain("    %s\n", strings.Join(it.MediaPaths, "\n    "))
		}
	}
	return nil
}

// ItemsExport writes a parent's downloaded items to disk in the requested format.
func (r *Runner) ItemsExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	p, err := r.resolveParent(ctx, cmd.StringArg("parent"))
	if err != nil {
		return err
	}

	items, err := r.store.Items.ListByParent(ctx, p.ID, 0)
	if err != nil {
		return err
	}

	export := &formatter.ItemExport{Parent: p, Items: items, ExportedAt: time.Now().UTC()}
	files, err := formatter.Write(format, export, cmd.String("output"))
	if err != nil {
		return fmt.Errorf("failed to export items: %w", err)
	}

	r.logger.Info("items exported", "parent", p.ID, "format", format, "items", len(items))
	r.writePlain("✓ Exported %d items from %s\n", len(items), p.DisplayName())
	for _, f := range files {
		r.writePlain("  %s\n", f)
	}
	return nil
}
