package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
)

// EventSource hands out progress subscriptions. Implemented by [tasks.Broadcaster].
type EventSource interface {
	Subscribe() (<-chan tasks.ProgressUpdate, func())
}

// EventStream streams progress updates as Server-Sent Events.
type EventStream struct {
	source    EventSource
	heartbeat time.Duration
	logger    *log.Logger
}

// NewEventStream creates an SSE handler. A heartbeat of zero disables keep-alive comments.
func NewEventStream(source EventSource, heartbeat time.Duration, logger *log.Logger) *EventStream {
	return &EventStream{
		source:    source,
		heartbeat: heartbeat,
		logger:    shared.WithLogger(logger, "svc", "server.EventStream"),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *EventStream) Routes() []string {
	return []string{"GET /api/events"}
}

// ServeHTTP subscribes for the lifetime of the request.
//
// The optional parent and task query parameters filter updates by id.
func (h *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	parentID := r.URL.Query().Get("parent")
	taskID := r.URL.Query().Get("task")

	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case u, ok := <-updates:
			if !ok {
				return
			}
			if (parentID != "" && u.ParentID != parentID) || (taskID != "" && u.TaskID != taskID) {
				continue
			}
			if err := writeEvent(w, u); err != nil {
				h.logger.Debug("event stream closed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one update; the event name is the update's phase.
func writeEvent(w http.ResponseWriter, u tasks.ProgressUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Phase, data)
	return err
}
