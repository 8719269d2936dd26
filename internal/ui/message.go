package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/songdesk/internal/session"
	"github.com/desertthunder/songdesk/internal/tasks"
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
	MsgSessionChanged MsgKind = iota
	MsgSessionEvent
	MsgSignedOut
	MsgProgressUpdate
	MsgOverviewComplete
)

type signedOutData struct {
	err error
}

type overviewData struct {
	result *tasks.OverviewResult
	err    error
}

// sessionChangedMsg is the constructor for [MsgSessionChanged]
func sessionChangedMsg(snap session.Snapshot) Msg {
	return Msg{kind: MsgSessionChanged, data: snap}
}

// signedOutMsg is the constructor for [MsgSignedOut]
func signedOutMsg(err error) Msg {
	return Msg{kind: MsgSignedOut, data: signedOutData{err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// overviewCompleteMsg is the constructor for [MsgOverviewComplete]
func overviewCompleteMsg(result *tasks.OverviewResult, err error) Msg {
	return Msg{kind: MsgOverviewComplete, data: overviewData{result, err}}
}

// sessionEventMsg is the constructor for [MsgSessionEvent]
func sessionEventMsg(snap session.Snapshot) Msg {
	return Msg{kind: MsgSessionEvent, data: snap}
}
