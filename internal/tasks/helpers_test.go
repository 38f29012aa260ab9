package tasks

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/desertthunder/dlx/internal/models"
	th "github.com/desertthunder/dlx/internal/testing"
)

type recordingSink struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (r *recordingSink) Publish(u ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recordingSink) all() []ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressUpdate(nil), r.updates...)
}

// messages returns the messages of updates in phase that contain the given text.
func (r *recordingSink) messages(phase Phase, contains string) []string {
	var out []string
	for _, u := range r.all() {
		if u.Phase == phase && strings.Contains(u.Message, contains) {
			out = append(out, u.Message)
		}
	}
	return out
}

func (r *recordingSink) last(scope Scope) (ProgressUpdate, bool) {
	all := r.all()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Scope == scope {
			return all[i], true
		}
	}
	return ProgressUpdate{}, false
}

type fixture struct {
	store    *th.MemoryStore
	provider *th.MockProvider
	sink     *recordingSink
	sessions *Registry[*Session]
	engine   *Engine
}

func testSettings(t *testing.T) Settings {
	return Settings{
		Token:               "token",
		DefaultMaxItems:     50,
		DownloadConcurrency: 2,
		DownloadDir:         t.TempDir(),
	}
}

func newFixture(t *testing.T, mutate func(*EngineConfig)) *fixture {
	t.Helper()
	f := &fixture{
		store:    th.NewMemoryStore(),
		provider: th.NewMockProvider(),
		sink:     &recordingSink{},
		sessions: NewRegistry[*Session](),
	}

	cfg := EngineConfig{
		Store:    f.store,
		Provider: f.provider,
		Sessions: f.sessions,
		Sink:     f.sink,
		Settings: testSettings(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) waitIdle(t *testing.T, parentID string) {
	t.Helper()
	require.Eventually(t, func() bool { return !f.engine.IsRunning(parentID) }, 5*time.Second, 5*time.Millisecond)
}

func receiveN(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var out []string
	for range n {
		select {
		case id := <-ch:
			out = append(out, id)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d downloads to start, got %d", n, len(out))
		}
	}
	return out
}

func countFor(t *testing.T, store *th.MemoryStore, parentID string) int {
	t.Helper()
	n, err := store.CountParentItems(context.Background(), parentID)
	require.NoError(t, err)
	return n
}

func gallery(id string, images int) models.ItemDescriptor {
	urls := make([]string, images)
	for i := range urls {
		urls[i] = "https://media.example.com/" + id + ".jpg"
	}
	return models.ItemDescriptor{ID: id, Kind: models.KindGallery, MediaURLs: urls}
}
