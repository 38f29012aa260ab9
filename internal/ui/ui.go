package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ParentListView ViewState = iota
	ItemListView
	ConfirmView
	SyncView
	ResultView
)

const defaultPreviewLimit = 100

// Catalog reads parents and their downloaded items.
type Catalog interface {
	ListParents(ctx context.Context) ([]*models.Parent, error)
	ListParentItems(ctx context.Context, parentID string, limit int) ([]*models.Item, error)
}

// Syncer runs and stops parent syncs. Implemented by [tasks.Engine].
type Syncer interface {
	Sync(ctx context.Context, req tasks.SyncRequest) (*tasks.SyncResult, error)
	Stop(parentID string) bool
}

// Subscriber hands out progress subscriptions. Implemented by [tasks.Broadcaster].
type Subscriber interface {
	Subscribe() (<-chan tasks.ProgressUpdate, func())
}

// Options tune the initial state of the [Model].
type Options struct {
	ParentID     string // Start syncing this parent immediately
	ParentName   string
	PreviewLimit int // Items shown in [ItemListView]
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	catalog Catalog
	syncer  Syncer
	updates Subscriber
	opts    Options

	width      int
	height     int
	parentList list.Model
	itemList   list.Model
	spinner    spinner.Model
	help       help.Model
	keys       keyMap

	selected    *models.Parent
	syncing     string
	stream      <-chan tasks.ProgressUpdate
	unsubscribe func()
	progress    tasks.ProgressUpdate
	stopping    bool
	result      *tasks.SyncResult
	notice      string
	err         error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, catalog Catalog, syncer Syncer, updates Subscriber, opts Options) *Model {
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = defaultPreviewLimit
	}
	return &Model{
		ctx:        ctx,
		view:       ParentListView,
		catalog:    catalog,
		syncer:     syncer,
		updates:    updates,
		opts:       opts,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		parentList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		itemList:   list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init fetches parents, or starts the sync right away in watch mode.
func (m *Model) Init() tea.Cmd {
	if m.opts.ParentID != "" {
		m.selected = &models.Parent{ID: m.opts.ParentID, Name: m.opts.ParentName, ExternalID: m.opts.ParentID}
		m.view = SyncView
		return m.startSync(m.opts.ParentID)
	}
	return m.fetchParents()
}

// Result returns the outcome of the last sync, if any.
func (m *Model) Result() (*tasks.SyncResult, error) {
	return m.result, m.err
}

// ViewState returns the active view.
func (m *Model) ViewState() ViewState {
	return m.view
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.parentList.SetSize(msg.Width-4, msg.Height-8)
		m.itemList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ParentListView:
			return m.handleParentListKeys(msg)
		case ItemListView:
			return m.handleItemListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			return m.handleSyncKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != SyncView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgParentsFetched:
		data := msg.data.(parentsFetched)
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(data.parents))
		for i, p := range data.parents {
			items[i] = parentItem{parent: p}
		}
		m.parentList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.parentList.Title = "Parents"
		m.parentList.SetSize(m.width-4, m.height-8)
		m.view = ParentListView
		return m, nil

	case MsgItemsFetched:
		data := msg.data.(itemsFetched)
		if data.err != nil {
			m.notice = fmt.Sprintf("Could not load items: %v", data.err)
			return m, nil
		}
		m.notice = ""
		m.selected = data.parent
		items := make([]list.Item, len(data.items))
		for i, it := range data.items {
			items[i] = downloadItem{item: it}
		}
		m.itemList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.itemList.Title = fmt.Sprintf("Recent downloads of '%s'", data.parent.DisplayName())
		m.itemList.SetSize(m.width-4, m.height-8)
		m.view = ItemListView
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		if m.stream == nil {
			return m, nil
		}
		return m, m.waitForProgress()

	case MsgSyncComplete:
		data := msg.data.(syncComplete)
		m.result = data.result
		m.err = data.err
		m.view = ResultView
		m.closeStream()
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	var body string
	switch m.view {
	case ParentListView:
		body = m.renderParentList()
	case ItemListView:
		body = m.renderItemList()
	case ConfirmView:
		body = m.renderConfirm()
	case SyncView:
		body = m.renderSync()
	case ResultView:
		body = m.renderResult()
	}
	if m.notice != "" {
		body = styles.warn.Render(m.notice) + "\n\n" + body
	}
	return body
}

func (m *Model) handleParentListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.parentList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.enter):
			if pi, ok := m.parentList.SelectedItem().(parentItem); ok {
				return m, m.fetchItems(pi.parent)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.parentList, cmd = m.parentList.Update(msg)
	return m, cmd
}

func (m *Model) handleItemListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.itemList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.back):
			m.view = ParentListView
			return m, nil
		case key.Matches(msg, m.keys.sync):
			m.view = ConfirmView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.itemList, cmd = m.itemList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = ItemListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = SyncView
		return m, m.startSync(m.selected.ID)
	}
	return m, nil
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.stop):
		if !m.stopping && m.syncer.Stop(m.syncing) {
			m.stopping = true
		}
		return m, nil
	case key.Matches(msg, m.keys.quit):
		m.syncer.Stop(m.syncing)
		m.closeStream()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.selected = nil
		m.result = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
		m.view = ParentListView
		return m, m.fetchParents()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ParentListView:
		m.parentList, cmd = m.parentList.Update(msg)
	case ItemListView:
		m.itemList, cmd = m.itemList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchParents() tea.Cmd {
	return func() tea.Msg {
		parents, err := m.catalog.ListParents(m.ctx)
		return parentsFetchedMsg(parents, err)
	}
}

func (m *Model) fetchItems(parent *models.Parent) tea.Cmd {
	limit := m.opts.PreviewLimit
	return func() tea.Msg {
		items, err := m.catalog.ListParentItems(m.ctx, parent.ID, limit)
		return itemsFetchedMsg(parent, items, err)
	}
}

// startSync subscribes before the sync begins so no update is missed.
func (m *Model) startSync(parentID string) tea.Cmd {
	m.closeStream()
	m.stream, m.unsubscribe = m.updates.Subscribe()
	m.syncing = parentID
	m.stopping = false
	m.progress = tasks.ProgressUpdate{}
	m.result = nil
	m.err = nil

	ctx, syncer := m.ctx, m.syncer
	run := func() tea.Msg {
		res, err := syncer.Sync(ctx, tasks.SyncRequest{ParentID: parentID})
		return syncCompleteMsg(res, err)
	}
	return tea.Batch(m.spinner.Tick, run, m.waitForProgress())
}

// waitForProgress returns the next update for the parent being synced.
func (m *Model) waitForProgress() tea.Cmd {
	stream, parentID := m.stream, m.syncing
	return func() tea.Msg {
		for update := range stream {
			if update.Scope == tasks.ScopeParent && update.ParentID == parentID {
				return progressUpdateMsg(update)
			}
		}
		return streamClosedMsg()
	}
}

func (m *Model) closeStream() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.stream = nil
	m.unsubscribe = nil
}

func (m *Model) renderParentList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.parentList.View(), helpView)
}

func (m *Model) renderItemList() string {
	helpKeys := []key.Binding{m.keys.sync, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.itemList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Sync '%s'?", m.selected.DisplayName()))
	info := fmt.Sprintf("\nAccount: %s\nStatus: %s\n", m.selected.ExternalID, m.selected.SyncStatus)
	if m.selected.MaxItems > 0 {
		info += fmt.Sprintf("Item cap: %d\n", m.selected.MaxItems)
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render(fmt.Sprintf("Syncing %s", m.selected.DisplayName()))

	p := m.progress
	var phase string
	switch p.Phase {
	case tasks.PhaseIdle:
		phase = "Starting..."
	case tasks.PhaseDownloading:
		phase = fmt.Sprintf("Downloading (%d/%d)", p.Current, p.Total)
	default:
		phase = styles.phase(p.Phase).Render(p.Phase.String())
	}

	counts := fmt.Sprintf("%d downloaded • %d skipped • %d failed", p.Downloaded, p.Skipped, p.Failed)
	lines := []string{title, fmt.Sprintf("%s %s", m.spinner.View(), phase), p.Message, styles.help.Render(counts)}
	if m.stopping {
		lines = append(lines, styles.warn.Render("Stopping after in-flight downloads..."))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.stop, m.keys.quit})
	return strings.Join(lines, "\n") + "\n\n" + helpView
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})

	if m.result == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Sync could not start: %v", m.err)
		}
		return styles.err.Render(msg) + "\n\n" + helpView
	}

	var title string
	switch m.result.Status {
	case models.SyncCompleted:
		title = styles.ok.Render("✓ Sync Complete!")
	case models.SyncStopped:
		title = styles.warn.Render("Sync Stopped")
	default:
		title = styles.err.Render(fmt.Sprintf("✗ Sync Failed: %v", m.result.Err))
	}

	info := fmt.Sprintf(
		"\nParent: %s\nDownloaded: %d\nSkipped: %d\nFailed: %d\nDuration: %s",
		m.selected.DisplayName(),
		m.result.Downloaded,
		m.result.Skipped,
		m.result.Failed,
		m.result.FinishedAt.Sub(m.result.StartedAt).Round(10*time.Millisecond),
	)

	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
