// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package host defines the narrow surface the agent consumes from the
// host platform: discrete browsing events and tab metadata. Implementations
// live outside the core so the engines stay unit-testable with fakes.
package host

// Tab describes the foreground tab at the time of an event.
type Tab struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// IdleState is the host's user-presence signal.
type IdleState string

const (
	IdleStateActive IdleState = "active"
	IdleStateIdle   IdleState = "idle"
	IdleStateLocked IdleState = "locked"
)

// Event is one of the concrete event types below.
type Event interface {
	isEvent()
}

// TabActivated fires when a tab becomes the foreground tab.
type TabActivated struct {
	Tab Tab
}

// URLChanged fires when the URL of a tab changes.
type URLChanged struct {
	TabID int
	URL   string
	Tab   Tab
}

// WindowFocusChanged fires when the browser window gains or loses focus.
type WindowFocusChanged struct {
	Focused bool
}

// IdleStateChanged fires when the user's idle state changes.
type IdleStateChanged struct {
	State IdleState
}

func (TabActivated) isEvent()       {}
func (URLChanged) isEvent()         {}
func (WindowFocusChanged) isEvent() {}
func (IdleStateChanged) isEvent()   {}

// EventSource delivers host events as a stream the orchestrator drains.
// The channel is closed when the source shuts down.
type EventSource interface {
	Events() <-chan Event
}
