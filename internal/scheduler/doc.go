// Package scheduler fires parent syncs and task runs on cron schedules.
//
// Schedules use the standard 5-field cron syntax (descriptors such as @hourly and @every
// are accepted too). Each parent and each task has at most one registered entry; scheduling
// an id again replaces its entry.
//
// Fires are guarded:
//   - a parent fire is skipped while that parent is syncing, or while any sync is active
//   - a task fire is skipped while the task is running
//
// Skips and failures are logged. A failing or panicking fire never removes its entry.
package scheduler
