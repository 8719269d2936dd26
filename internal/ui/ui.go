package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/songdesk/internal/session"
	"github.com/desertthunder/songdesk/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SessionView ViewState = iota
	OverviewView
	SectionListView
	RecordListView
)

// Sessions is the part of [session.Manager] the TUI drives.
type Sessions interface {
	Snapshot() session.Snapshot
	Sync(ctx context.Context) session.Snapshot
	SignOut(ctx context.Context) error
}

// Overviewer reads the dashboard sections, reporting progress on the channel.
type Overviewer interface {
	Overview(ctx context.Context, progress chan<- tasks.ProgressUpdate, opts tasks.OverviewOpts) (*tasks.OverviewResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	sessions     Sessions
	engine       Overviewer
	changes      <-chan session.Snapshot
	snap         session.Snapshot
	width        int
	height       int
	sectionList  list.Model
	recordList   list.Model
	selected     *tasks.SectionResult
	progressChan chan tasks.ProgressUpdate
	doneChan     chan overviewData
	progress     tasks.ProgressUpdate
	result       *tasks.OverviewResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
//
// changes carries snapshots published by the session manager's change callback; it may be nil.
func NewModel(ctx context.Context, sessions Sessions, engine Overviewer, changes <-chan session.Snapshot) *Model {
	return &Model{
		ctx:      ctx,
		view:     SessionView,
		sessions: sessions,
		engine:   engine,
		changes:  changes,
		snap:     sessions.Snapshot(),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init verifies the current principal and starts listening for session changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.sync(), m.waitForChange())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.result != nil {
			m.sectionList.SetSize(msg.Width-4, msg.Height-8)
		}
		if m.selected != nil {
			m.recordList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) && !m.filtering() {
			return m, tea.Quit
		}
		switch m.view {
		case SessionView:
			return m.handleSessionKeys(msg)
		case SectionListView:
			return m.handleSectionListKeys(msg)
		case RecordListView:
			return m.handleRecordListKeys(msg)
		}
		return m, nil

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSessionChanged:
		m.setSnapshot(msg.data.(session.Snapshot))
		return m, nil

	case MsgSessionEvent:
		m.setSnapshot(msg.data.(session.Snapshot))
		return m, m.waitForChange()

	case MsgSignedOut:
		m.err = msg.data.(signedOutData).err
		m.setSnapshot(m.sessions.Snapshot())
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgOverviewComplete:
		data := msg.data.(overviewData)
		m.progressChan, m.doneChan = nil, nil
		if data.err != nil {
			m.err = data.err
			m.view = SessionView
			return m, nil
		}
		if !m.snap.State.Active() {
			return m, nil
		}
		m.result = data.result
		m.showSections()
		return m, nil
	}
	return m, nil
}

// setSnapshot records the session view; once the session ends, browsing state is dropped.
func (m *Model) setSnapshot(snap session.Snapshot) {
	m.snap = snap
	if snap.State.Active() || snap.State == session.StateVerifying {
		return
	}
	m.view = SessionView
	m.result = nil
	m.selected = nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SessionView:
		return m.renderSession()
	case OverviewView:
		return m.renderOverview()
	case SectionListView:
		return m.renderSectionList()
	case RecordListView:
		return m.renderRecordList()
	default:
		return ""
	}
}

func (m *Model) filtering() bool {
	switch m.view {
	case SectionListView:
		return m.sectionList.FilterState() == list.Filtering
	case RecordListView:
		return m.recordList.FilterState() == list.Filtering
	}
	return false
}

func (m *Model) handleSessionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.verify):
		m.err = nil
		return m, m.sync()
	case key.Matches(msg, m.keys.overview):
		if !m.snap.State.Active() {
			m.err = fmt.Errorf("sign in first: songdesk auth login")
			return m, nil
		}
		m.err = nil
		m.view = OverviewView
		return m, m.startOverview()
	case key.Matches(msg, m.keys.signOut):
		return m, m.signOut()
	case key.Matches(msg, m.keys.enter):
		if m.result != nil {
			m.view = SectionListView
		}
	}
	return m, nil
}

func (m *Model) handleSectionListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.filtering() {
		switch {
		case key.Matches(msg, m.keys.back):
			m.view = SessionView
			return m, nil
		case key.Matches(msg, m.keys.enter):
			if item, ok := m.sectionList.SelectedItem().(sectionItem); ok {
				m.showRecords(item.result)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.sectionList, cmd = m.sectionList.Update(msg)
	return m, cmd
}

func (m *Model) handleRecordListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.filtering() && key.Matches(msg, m.keys.back) {
		m.view = SectionListView
		m.selected = nil
		return m, nil
	}

	var cmd tea.Cmd
	m.recordList, cmd = m.recordList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case SectionListView:
		m.sectionList, cmd = m.sectionList.Update(msg)
	case RecordListView:
		m.recordList, cmd = m.recordList.Update(msg)
	}
	return m, cmd
}

func (m *Model) showSections() {
	items := make([]list.Item, len(m.result.Sections))
	for i, s := range m.result.Sections {
		items[i] = sectionItem{result: s}
	}
	m.sectionList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.sectionList.Title = "Dashboard Sections"
	m.sectionList.SetSize(m.width-4, m.height-8)
	m.view = SectionListView
}

func (m *Model) showRecords(s tasks.SectionResult) {
	m.selected = &s
	items := make([]list.Item, len(s.Items))
	for i, rec := range s.Items {
		items[i] = recordItem{record: rec}
	}
	m.recordList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.recordList.Title = s.Section.Title
	m.recordList.SetSize(m.width-4, m.height-8)
	m.view = RecordListView
}

func (m *Model) sync() tea.Cmd {
	return func() tea.Msg {
		return sessionChangedMsg(m.sessions.Sync(m.ctx))
	}
}

func (m *Model) signOut() tea.Cmd {
	return func() tea.Msg {
		return signedOutMsg(m.sessions.SignOut(m.ctx))
	}
}

func (m *Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case snap, ok := <-m.changes:
			if !ok {
				return nil
			}
			return sessionEventMsg(snap)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) startOverview() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan overviewData, 1)
	m.progressChan, m.doneChan = progress, done
	m.progress = tasks.ProgressUpdate{}

	go func() {
		result, err := m.engine.Overview(m.ctx, progress, tasks.OverviewOpts{})
		done <- overviewData{result, err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return overviewCompleteMsg(m.result, nil)
		}

		update, ok := <-progress
		if !ok {
			data := <-done
			return overviewCompleteMsg(data.result, data.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) stateStyle() string {
	label := string(m.snap.State)
	switch m.snap.State {
	case session.StateSignedIn:
		return styles.ok.Render(label)
	case session.StateDegraded, session.StateVerifying:
		return styles.warn.Render(label)
	default:
		return styles.err.Render(label)
	}
}

func (m *Model) renderSession() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("songdesk session"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s%s\n", styles.label.Render("State"), m.stateStyle())

	if id := m.snap.Identity; id != nil {
		fmt.Fprintf(&b, "%s%s <%s>\n", styles.label.Render("User"), id.DisplayName(), id.Email)
		fmt.Fprintf(&b, "%s%s\n", styles.label.Render("Role"), id.Role)
	}
	if m.snap.Warning != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.warn.Render(m.snap.Warning))
	}
	if m.snap.Err != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(fmt.Sprintf("Session ended: %v", m.snap.Err)))
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if m.result != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.help.Render("press enter to browse the last overview"))
	}

	helpKeys := []key.Binding{m.keys.verify, m.keys.overview, m.keys.signOut, m.keys.quit}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderOverview() string {
	title := styles.title.Render("Reading Dashboard")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchSection:
		phase = fmt.Sprintf("Fetching sections (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.SectionDone:
		phase = fmt.Sprintf("Read %d of %d sections", m.progress.Step, m.progress.Total)
	default:
		phase = "Starting..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderSectionList() string {
	var status string
	if m.result != nil {
		switch {
		case m.result.Unreachable:
			status = styles.warn.Render("backend unreachable, sections show no data")
		case m.result.Degraded > 0 || m.result.Failed > 0:
			status = styles.warn.Render(fmt.Sprintf("%d degraded, %d failed", m.result.Degraded, m.result.Failed))
		default:
			status = styles.ok.Render("all sections read")
		}
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", m.sectionList.View(), status, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderRecordList() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.recordList.View(), m.help.ShortHelpView(helpKeys))
}
