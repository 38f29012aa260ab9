package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgParentsFetched MsgKind = iota
	MsgItemsFetched
	MsgProgressUpdate
	MsgSyncComplete
	MsgStreamClosed
)

type parentsFetched struct {
	parents []*models.Parent
	err     error
}

type itemsFetched struct {
	parent *models.Parent
	items  []*models.Item
	err    error
}

type syncComplete struct {
	result *tasks.SyncResult
	err    error
}

// parentsFetchedMsg is the constructor for [MsgParentsFetched]
func parentsFetchedMsg(parents []*models.Parent, err error) Msg {
	return Msg{kind: MsgParentsFetched, data: parentsFetched{parents, err}}
}

// itemsFetchedMsg is the constructor for [MsgItemsFetched]
func itemsFetchedMsg(parent *models.Parent, items []*models.Item, err error) Msg {
	return Msg{kind: MsgItemsFetched, data: itemsFetched{parent, items, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *tasks.SyncResult, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: syncComplete{result, err}}
}

// streamClosedMsg is the constructor for [MsgStreamClosed]
func streamClosedMsg() Msg {
	return Msg{kind: MsgStreamClosed}
}
