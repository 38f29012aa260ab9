package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/dlx/internal/models"
)

var (
	_ list.Item = parentItem{}
	_ list.Item = downloadItem{}
)

// parentItem wraps [models.Parent] to implement [list.Item].
type parentItem struct {
	parent *models.Parent
}

func (i parentItem) FilterValue() string { return i.parent.DisplayName() }
func (i parentItem) Title() string       { return i.parent.DisplayName() }
func (i parentItem) Description() string {
	desc := styles.status(i.parent.SyncStatus).Render(string(i.parent.SyncStatus))
	if i.parent.LastSyncedAt != nil {
		desc = fmt.Sprintf("%s • last synced %s", desc, i.parent.LastSyncedAt.Local().Format(time.DateTime))
	}
	if i.parent.Schedule.Enabled && i.parent.Schedule.CronExpr != "" {
		desc = fmt.Sprintf("%s • cron %s", desc, i.parent.Schedule.CronExpr)
	}
	return desc
}

// downloadItem wraps [models.Item] to implement [list.Item].
type downloadItem struct {
	item *models.Item
}

func (i downloadItem) FilterValue() string { return i.item.Title }
func (i downloadItem) Title() string {
	if i.item.Title != "" {
		return i.item.Title
	}
	return i.item.ID
}
func (i downloadItem) Description() string {
	parts := []string{string(i.item.Kind)}
	if i.item.DurationSeconds > 0 {
		parts = append(parts, (time.Duration(i.item.DurationSeconds * float64(time.Second))).Round(time.Second).String())
	}
	if n := len(i.item.MediaPaths); n > 1 {
		parts = append(parts, fmt.Sprintf("%d files", n))
	}
	parts = append(parts, i.item.DownloadedAt.Local().Format(time.DateTime))
	return strings.Join(parts, " • ")
}
