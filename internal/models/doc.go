// Package models defines the domain entities shared by the content store, the sync engine and the scheduler.
//
// Persistent entities:
//   - [Task] : a user-defined batch job grouping several parents with its own concurrency
//   - [Parent] : a tracked remote account whose items are synced
//   - [Item] : downloaded content keyed by its remote id (the dedup key)
//
// Transfer objects:
//   - [ItemDescriptor] : one entry of a remote listing page
//
// Status enums ([TaskStatus], [SyncStatus]) serialize as lowercase strings so they can be stored as-is.
package models
