// Package server exposes the sync engine, task orchestrator and scheduler over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [BasicRouter] registers method-qualified [http.ServeMux] patterns, so path values such as
// {id} are available through [http.Request.PathValue].
//
// [Middleware] wraps handlers in reverse order (last added executes first).
// [RequestLogger] and [Recoverer] are the stock middleware used by `dlx serve`.
//
// # Control API
//
// [API] registers the JSON control endpoints:
//
//	POST /api/parents/{id}/sync  start a background sync (202, 409 if already syncing)
//	POST /api/parents/{id}/stop  stop a parent's sync (404 if none is active)
//	POST /api/tasks/{id}/run     start a background task run (202, 404, 409)
//	POST /api/tasks/{id}/stop    stop a task run
//	GET  /api/tasks/{id}         persisted task state plus a running flag
//	GET  /api/status             active sessions, task runs and schedules
//
// # Progress Streaming
//
// [EventStream] implements [Handler] and streams progress updates as Server-Sent Events on
// GET /api/events. Each connection holds one broadcaster subscription; slow clients drop events
// rather than stall a sync.
package server
