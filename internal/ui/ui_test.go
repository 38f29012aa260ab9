package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/tasks"
	th "github.com/desertthunder/dlx/internal/testing"
)

type uiFixture struct {
	store       *th.MemoryStore
	provider    *th.MockProvider
	broadcaster *tasks.Broadcaster
	engine      *tasks.Engine
}

func newUIFixture(t *testing.T) *uiFixture {
	t.Helper()
	f := &uiFixture{
		store:       th.NewMemoryStore(),
		provider:    th.NewMockProvider(),
		broadcaster: tasks.NewBroadcaster(256),
	}
	engine, err := tasks.NewEngine(tasks.EngineConfig{
		Store:    f.store,
		Provider: f.provider,
		Sink:     f.broadcaster,
		Settings: tasks.Settings{
			Token:               "token",
			DefaultMaxItems:     10,
			DownloadConcurrency: 2,
			DownloadDir:         t.TempDir(),
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f.engine = engine
	return f
}

func (f *uiFixture) model(opts Options) *Model {
	return NewModel(context.Background(), f.store, f.engine, f.broadcaster, opts)
}

// drive runs cmd and feeds every resulting message, plus anything sent on inject, back into m
// until done reports true.
func drive(t *testing.T, m *Model, cmd tea.Cmd, inject <-chan tea.Msg, done func() bool) {
	t.Helper()
	msgs := make(chan tea.Msg, 256)

	var run func(tea.Cmd)
	run = func(c tea.Cmd) {
		if c == nil {
			return
		}
		go func() {
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, c := range batch {
					run(c)
				}
				return
			}
			if msg != nil {
				select {
				case msgs <- msg:
				case <-time.After(5 * time.Second):
				}
			}
		}()
	}

	run(cmd)
	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case msg := <-msgs:
			_, next := m.Update(msg)
			run(next)
		case msg := <-inject:
			_, next := m.Update(msg)
			run(next)
		case <-deadline:
			t.Fatalf("timed out in view %d", m.ViewState())
		}
	}
}

func press(m *Model, keys string) tea.Cmd {
	var msg tea.KeyMsg
	switch keys {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestParentListLoads(t *testing.T) {
	f := newUIFixture(t)
	f.store.AddParent("a", 0)
	f.store.AddParent("b", 5)

	m := f.model(Options{})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	msg := m.Init()()
	m.Update(msg)

	if got := len(m.parentList.Items()); got != 2 {
		t.Fatalf("expected 2 parents, got %d", got)
	}
	if !strings.Contains(m.View(), "Parents") {
		t.Errorf("expected list title in view, got:\n%s", m.View())
	}
}

func TestParentListErrorQuits(t *testing.T) {
	m := newUIFixture(t).model(Options{})
	_, cmd := m.Update(parentsFetchedMsg(nil, errors.New("db gone")))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !strings.Contains(m.View(), "db gone") {
		t.Errorf("expected error in view, got:\n%s", m.View())
	}
}

func TestSelectConfirmAndSync(t *testing.T) {
	f := newUIFixture(t)
	f.store.AddParent("a", 0)
	f.provider.AddItems("a", 0, th.Descriptors("a", 3)...)
	f.store.SeedItems("a", models.ItemDescriptor{ID: "old-1", Kind: models.KindVideo, Title: "Old"})

	m := f.model(Options{})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.Init()())

	m.Update(press(m, "enter")())
	if m.ViewState() != ItemListView {
		t.Fatalf("expected item list, got view %d", m.ViewState())
	}
	if got := len(m.itemList.Items()); got != 1 {
		t.Errorf("expected 1 previous download, got %d", got)
	}

	press(m, "enter")
	if m.ViewState() != ConfirmView {
		t.Fatalf("expected confirm view, got %d", m.ViewState())
	}
	press(m, "n")
	if m.ViewState() != ItemListView {
		t.Fatalf("expected n to return to items, got %d", m.ViewState())
	}
	press(m, "enter")

	cmd := press(m, "y")
	if m.ViewState() != SyncView {
		t.Fatalf("expected sync view, got %d", m.ViewState())
	}
	drive(t, m, cmd, nil, func() bool { return m.ViewState() == ResultView })

	res, err := m.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != models.SyncCompleted || res.Downloaded != 3 {
		t.Errorf("expected 3 downloads completed, got %+v", res)
	}
	if !strings.Contains(m.View(), "Sync Complete") {
		t.Errorf("expected completion in view, got:\n%s", m.View())
	}
	if f.broadcaster.Subscribers() != 0 {
		t.Errorf("expected subscription released, got %d", f.broadcaster.Subscribers())
	}
}

func TestWatchModeStopsSync(t *testing.T) {
	f := newUIFixture(t)
	f.store.AddParent("a", 0)
	f.provider.AddItems("a", 0, th.Descriptors("a", 4)...)
	f.provider.Started = make(chan string, 10)
	f.provider.Gate = make(chan struct{})

	syncer := &stopSyncer{Engine: f.engine, stopped: make(chan struct{})}
	m := NewModel(context.Background(), f.store, syncer, f.broadcaster, Options{ParentID: "a"})
	cmd := m.Init()
	if m.ViewState() != SyncView {
		t.Fatalf("expected watch mode to start in sync view, got %d", m.ViewState())
	}

	inject := make(chan tea.Msg, 1)
	go func() {
		<-f.provider.Started
		inject <- tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")}
		<-syncer.stopped
		close(f.provider.Gate)
	}()
	drive(t, m, cmd, inject, func() bool { return m.ViewState() == ResultView })

	res, _ := m.Result()
	if res == nil || res.Status != models.SyncStopped {
		t.Fatalf("expected stopped result, got %+v", res)
	}
	if res.Downloaded != 2 {
		t.Errorf("expected only the in-flight batch to finish, got %d", res.Downloaded)
	}
	if !strings.Contains(m.View(), "Sync Stopped") {
		t.Errorf("expected stop in view, got:\n%s", m.View())
	}
}

// stopSyncer signals once a stop has been requested.
type stopSyncer struct {
	*tasks.Engine
	stopped chan struct{}
}

func (s *stopSyncer) Stop(parentID string) bool {
	ok := s.Engine.Stop(parentID)
	close(s.stopped)
	return ok
}

func TestProgressFiltersOtherParents(t *testing.T) {
	f := newUIFixture(t)
	m := f.model(Options{})
	m.selected = &models.Parent{ID: "a"}
	m.stream, m.unsubscribe = f.broadcaster.Subscribe()
	m.syncing = "a"
	defer m.closeStream()

	wait := m.waitForProgress()
	f.broadcaster.Publish(tasks.ProgressUpdate{Scope: tasks.ScopeParent, ParentID: "b", Message: "other"})
	f.broadcaster.Publish(tasks.ProgressUpdate{Scope: tasks.ScopeTask, ParentID: "a", Message: "task"})
	f.broadcaster.Publish(tasks.ProgressUpdate{Scope: tasks.ScopeParent, ParentID: "a", Phase: tasks.PhaseListing, Message: "mine"})

	msg := wait().(Msg)
	if msg.kind != MsgProgressUpdate {
		t.Fatalf("expected progress message, got %d", msg.kind)
	}
	if u := msg.data.(tasks.ProgressUpdate); u.Message != "mine" {
		t.Errorf("expected own update, got %q", u.Message)
	}
}

func TestSyncStartErrorShowsResult(t *testing.T) {
	f := newUIFixture(t)
	m := f.model(Options{})
	m.selected = &models.Parent{ID: "a"}
	m.view = SyncView

	m.Update(syncCompleteMsg(nil, errors.New("already syncing")))
	if m.ViewState() != ResultView {
		t.Fatalf("expected result view, got %d", m.ViewState())
	}
	if !strings.Contains(m.View(), "could not start") {
		t.Errorf("expected start error, got:\n%s", m.View())
	}

	cmd := press(m, "r")
	if cmd == nil || m.ViewState() != ParentListView {
		t.Errorf("expected restart to refetch parents")
	}
}
