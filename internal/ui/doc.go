// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for syncing a parent:
//  1. [ParentListView] : Browse tracked parents and their sync status
//  2. [ItemListView] : Preview the parent's most recent downloads
//  3. [ConfirmView] : Confirm the sync
//  4. [SyncView] : Monitor real-time progress updates; s stops the sync
//  5. [ResultView] : Display the downloaded/skipped/failed counts
//
// `dlx sync --watch` starts directly in [SyncView] for the named parent.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the
// [Msg] union type. Progress updates come from a broadcaster subscription filtered to the parent being synced,
// so the same stream also feeds the HTTP event endpoint.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, s, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
