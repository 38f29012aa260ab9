package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/scheduler"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
)

// SyncController starts and stops parent syncs. Implemented by [tasks.Engine].
type SyncController interface {
	Start(ctx context.Context, req tasks.SyncRequest) error
	Stop(parentID string) bool
	IsRunning(parentID string) bool
	Sessions() []tasks.SessionStats
}

// TaskController starts and stops task runs. Implemented by [tasks.Orchestrator].
type TaskController interface {
	Start(ctx context.Context, taskID string) error
	Stop(taskID string) bool
	IsRunning(taskID string) bool
	Runs() []tasks.TaskRunStats
}

// TaskReader loads persisted tasks.
type TaskReader interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
}

// ScheduleLister reports registered schedules. Implemented by [scheduler.Scheduler].
type ScheduleLister interface {
	Entries() []scheduler.Entry
}

// APIConfig is the configuration for the control API.
type APIConfig struct {
	Syncs     SyncController
	Tasks     TaskController
	Store     TaskReader
	Schedules ScheduleLister // Optional
	Logger    *log.Logger
}

func (c *APIConfig) defaults() error {
	if c.Syncs == nil {
		return fmt.Errorf("sync controller is required")
	}
	if c.Tasks == nil {
		return fmt.Errorf("task controller is required")
	}
	if c.Store == nil {
		return fmt.Errorf("task reader is required")
	}
	c.Logger = shared.WithLogger(c.Logger, "svc", "server.API")
	return nil
}

// API serves the JSON control endpoints.
type API struct {
	syncs     SyncController
	tasks     TaskController
	store     TaskReader
	schedules ScheduleLister
	logger    *log.Logger
}

// NewAPI creates the control API.
func NewAPI(cfg APIConfig) (*API, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &API{
		syncs:     cfg.Syncs,
		tasks:     cfg.Tasks,
		store:     cfg.Store,
		schedules: cfg.Schedules,
		logger:    cfg.Logger,
	}, nil
}

// Register adds the API routes to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodPost, "/api/parents/{id}/sync", http.HandlerFunc(a.startSync))
	r.Handle(http.MethodPost, "/api/parents/{id}/stop", http.HandlerFunc(a.stopSync))
	r.Handle(http.MethodPost, "/api/tasks/{id}/run", http.HandlerFunc(a.startTask))
	r.Handle(http.MethodPost, "/api/tasks/{id}/stop", http.HandlerFunc(a.stopTask))
	r.Handle(http.MethodGet, "/api/tasks/{id}", http.HandlerFunc(a.getTask))
	r.Handle(http.MethodGet, "/api/status", http.HandlerFunc(a.status))
}

type errorBody struct {
	Error string `json:"error"`
}

type actionBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type taskBody struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	Running         bool       `json:"running"`
	Concurrency     int        `json:"concurrency"`
	ParentIDs       []string   `json:"parent_ids"`
	TotalCount      int        `json:"total_count"`
	DownloadedCount int        `json:"downloaded_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CronExpr        string     `json:"cron_expr,omitempty"`
	AutoRun         bool       `json:"auto_run"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
}

type statusBody struct {
	Sessions  []tasks.SessionStats `json:"sessions"`
	Runs      []tasks.TaskRunStats `json:"runs"`
	Schedules []scheduler.Entry    `json:"schedules"`
}

func (a *API) startSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.syncs.Start(r.Context(), tasks.SyncRequest{ParentID: id}); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, actionBody{ID: id, Status: "started"})
}

func (a *API) stopSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.syncs.Stop(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("parent %s is not syncing", id)})
		return
	}
	writeJSON(w, http.StatusOK, actionBody{ID: id, Status: "stopping"})
}

func (a *API) startTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.tasks.Start(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, actionBody{ID: id, Status: "started"})
}

func (a *API) stopTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.tasks.Stop(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("task %s is not running", id)})
		return
	}
	writeJSON(w, http.StatusOK, actionBody{ID: id, Status: "stopping"})
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskBody{
		ID:              t.ID,
		Name:            t.Name,
		Status:          string(t.Status),
		Running:         a.tasks.IsRunning(t.ID),
		Concurrency:     t.Concurrency,
		ParentIDs:       t.ParentIDs,
		TotalCount:      t.TotalCount,
		DownloadedCount: t.DownloadedCount,
		ErrorMessage:    t.ErrorMessage,
		CronExpr:        t.Schedule.CronExpr,
		AutoRun:         t.Schedule.Enabled,
		LastRunAt:       t.LastRunAt,
	})
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	body := statusBody{
		Sessions:  a.syncs.Sessions(),
		Runs:      a.tasks.Runs(),
		Schedules: []scheduler.Entry{},
	}
	if a.schedules != nil {
		body.Schedules = a.schedules.Entries()
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError maps engine and store errors to HTTP statuses.
func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrConfiguration):
		status = http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		status = http.StatusBadRequest
	default:
		a.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
