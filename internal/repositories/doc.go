// Package repositories implements the content store on SQLite.
//
// Each repository owns one table family:
//   - [ParentRepository] : tracked accounts, their schedules and last sync state
//   - [TaskRepository] : tasks and their ordered member parents (task_parents)
//   - [ItemRepository] : downloaded items keyed by remote id
//
// [Store] composes the three into the narrow interface the sync engine, orchestrator and scheduler consume.
//
// Lookups that miss return errors wrapping [shared.ErrNotFound].
// Item persistence is an upsert so two sessions racing on the same new item end with the last write.
package repositories
