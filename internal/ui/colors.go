package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/tasks"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// status picks the style for a persisted sync status.
func (p *Palette) status(s models.SyncStatus) lipgloss.Style {
	switch s {
	case models.SyncCompleted:
		return p.ok
	case models.SyncFailed:
		return p.err
	case models.SyncSyncing, models.SyncStopped:
		return p.warn
	default:
		return p.help
	}
}

// phase picks the style for a progress phase.
func (p *Palette) phase(ph tasks.Phase) lipgloss.Style {
	switch ph {
	case tasks.PhaseCompleted:
		return p.ok
	case tasks.PhaseFailed:
		return p.err
	case tasks.PhaseCooldown, tasks.PhaseStopped, tasks.PhaseCancelled:
		return p.warn
	default:
		return lipgloss.NewStyle()
	}
}
