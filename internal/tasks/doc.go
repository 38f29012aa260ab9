// Package tasks runs parent syncs and multi-parent tasks with bounded concurrency and cooperative cancellation.
//
// # Sync Engine
//
// [Engine] syncs one parent through a fixed sequence of phases:
//
//	idle → listing → batching → (downloading → cooldown)* → completed | stopped | failed
//
// In order:
//  1. Listing pulls provider pages, skipping items the [Store] already has, until the
//     effective cap of new items is buffered or the listing ends
//  2. Batching splits the buffer into batches of the download concurrency
//  3. Each batch downloads its items concurrently and fully resolves before the next starts,
//     separated by a cooldown that a stop request cuts short
//
// A failed item is counted and logged; it never aborts its batch. Non-gallery items have
// their duration probed through a [media.SlotPool] shared by every session in the process.
//
// # Orchestrator
//
// [Orchestrator] runs a task by feeding its member parents to task.Concurrency workers.
// Each parent sync is isolated: a failure, or a parent that is already syncing, counts as
// zero downloads and the task carries on. Stopping a task stops every sync it spawned.
//
// # Sessions and Cancellation
//
// At most one session exists per parent and at most one run per task. Both are held in a
// [Registry] that rejects duplicates with [shared.ErrAlreadyRunning].
//
// Stop requests are polled at checkpoints (before each page, each candidate item, each batch
// and each item launch). In-flight downloads are never interrupted.
//
// # Progress Reporting
//
// Every phase transition, batch boundary and 20th skipped item emits a [ProgressUpdate] to a
// [ProgressSink]. Sinks must not block: [Broadcaster] and [ChanSink] drop updates for
// receivers that fall behind.
package tasks
