package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
	th "github.com/desertthunder/dlx/internal/testing"
)

type apiFixture struct {
	store        *th.MemoryStore
	provider     *th.MockProvider
	engine       *tasks.Engine
	orchestrator *tasks.Orchestrator
	router       *BasicRouter
}

func newAPIFixture(t *testing.T, token string) *apiFixture {
	t.Helper()
	f := &apiFixture{store: th.NewMemoryStore(), provider: th.NewMockProvider()}

	engine, err := tasks.NewEngine(tasks.EngineConfig{
		Store:    f.store,
		Provider: f.provider,
		Settings: tasks.Settings{
			Token:               token,
			DefaultMaxItems:     10,
			DownloadConcurrency: 1,
			DownloadDir:         t.TempDir(),
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	orch, err := tasks.NewOrchestrator(tasks.OrchestratorConfig{Store: f.store, Syncer: engine})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	api, err := NewAPI(APIConfig{Syncs: engine, Tasks: orch, Store: f.store})
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	f.engine, f.orchestrator = engine, orch
	f.router = NewBasicRouter()
	f.router.Use(Recoverer(shared.NopLogger()))
	api.Register(f.router)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func (f *apiFixture) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.engine.ActiveCount() > 0 || len(f.orchestrator.Runs()) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("engine did not go idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRouter(t *testing.T) {
	t.Run("method mismatch returns 405", func(t *testing.T) {
		r := NewBasicRouter()
		r.HandleFunc(http.MethodPost, "/things/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(req.PathValue("id")))
		})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/1", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/things/abc", nil))
		if rec.Body.String() != "abc" {
			t.Errorf("expected path value abc, got %q", rec.Body.String())
		}
	})

	t.Run("middleware runs in registration order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, req)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.HandleFunc(http.MethodGet, "/", func(http.ResponseWriter, *http.Request) { order = append(order, "handler") })
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("recoverer returns 500", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(RequestLogger(shared.NopLogger()), Recoverer(shared.NopLogger()))
		r.HandleFunc(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestNewAPIRequiresControllers(t *testing.T) {
	if _, err := NewAPI(APIConfig{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestSyncEndpoints(t *testing.T) {
	f := newAPIFixture(t, "token")
	f.store.AddParent("a", 0)
	f.provider.AddItems("a", 0, th.Descriptors("a", 2)...)
	f.provider.Started = make(chan string, 10)
	f.provider.Gate = make(chan struct{})

	rec := f.do(t, http.MethodPost, "/api/parents/a/sync")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	<-f.provider.Started

	if rec := f.do(t, http.MethodPost, "/api/parents/a/sync"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a second sync, got %d", rec.Code)
	}

	status := decode[statusBody](t, f.do(t, http.MethodGet, "/api/status"))
	if len(status.Sessions) != 1 || status.Sessions[0].ParentID != "a" {
		t.Errorf("expected one session for a, got %+v", status.Sessions)
	}

	if rec := f.do(t, http.MethodPost, "/api/parents/a/stop"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 on stop, got %d", rec.Code)
	}
	close(f.provider.Gate)
	f.waitIdle(t)

	if got := f.store.Parent("a").SyncStatus; got != models.SyncStopped {
		t.Errorf("expected stopped, got %s", got)
	}
	if rec := f.do(t, http.MethodPost, "/api/parents/a/stop"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 once idle, got %d", rec.Code)
	}
}

func TestSyncWithoutTokenIsUnavailable(t *testing.T) {
	f := newAPIFixture(t, "")
	f.store.AddParent("a", 0)

	rec := f.do(t, http.MethodPost, "/api/parents/a/sync")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if f.provider.ListCalls("a") != 0 {
		t.Error("no listing may happen without credentials")
	}
}

func TestTaskEndpoints(t *testing.T) {
	f := newAPIFixture(t, "token")
	f.store.AddParent("a", 0)
	f.provider.AddItems("a", 0, th.Descriptors("a", 3)...)
	f.store.AddTask("t", 1, "a")

	if rec := f.do(t, http.MethodPost, "/api/tasks/missing/run"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown task, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/tasks/t/stop"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when not running, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/api/tasks/t/run"); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	f.waitIdle(t)

	body := decode[taskBody](t, f.do(t, http.MethodGet, "/api/tasks/t"))
	if body.Status != string(models.TaskCompleted) || body.Running {
		t.Errorf("expected completed and idle, got %+v", body)
	}
	if body.DownloadedCount != 3 || body.TotalCount != 3 {
		t.Errorf("expected 3/3, got %d/%d", body.DownloadedCount, body.TotalCount)
	}

	if rec := f.do(t, http.MethodGet, "/api/tasks/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	b := tasks.NewBroadcaster(8)
	r := NewBasicRouter()
	r.Use(RequestLogger(shared.NopLogger()))
	r.Handler(NewEventStream(b, 0, nil))

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?parent=a", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	for b.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}
	b.Publish(tasks.ProgressUpdate{Scope: tasks.ScopeParent, ParentID: "b", Phase: tasks.PhaseListing, Message: "other"})
	b.Publish(tasks.ProgressUpdate{Scope: tasks.ScopeParent, ParentID: "a", Phase: tasks.PhaseCompleted, Message: "done"})

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}

	if len(lines) != 2 || lines[0] != "event: completed" {
		t.Fatalf("unexpected event %q", lines)
	}
	var u tasks.ProgressUpdate
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &u); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if u.ParentID != "a" || u.Message != "done" {
		t.Errorf("unexpected update %+v", u)
	}
}
