// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI is a session status screen with a read-only browser over the dashboard sections:
//  1. [SessionView] : Session state, identity, cached-data warning and the reason the last session ended
//  2. [OverviewView] : Progress while the overview engine reads every section
//  3. [SectionListView] : Sections with record counts and degraded markers
//  4. [RecordListView] : Records of one section
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Session changes arrive on a channel fed by the session manager's change callback, so an expiry or a
// sign-out elsewhere moves the screen back to [SessionView].
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, v, o, x, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
