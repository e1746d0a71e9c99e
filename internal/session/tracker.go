// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package session tracks browsing activity per foreground tab and ships
// batched telemetry to the backend, surviving connectivity loss through a
// durable offline queue.
package session

import (
	"context"
	"math"
	"sync"
	"time"

	"grimm.is/hearth/internal/clock"
	"grimm.is/hearth/internal/host"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/state"
)

const (
	// FlushInterval is how often the pending buffer is drained by timer.
	FlushInterval = 30 * time.Second

	bufferCapacity = 20
	historyCap     = 100
	maxRetries     = 3

	// Sessions where both active and idle time are at or below this many
	// seconds carry no signal and are discarded.
	minReportSeconds = 2
)

// Submitter delivers a telemetry batch to the backend. Failures must be
// classified through internal/errors kinds: KindOffline for connectivity
// loss, KindAuthExpired for an invalid backend session.
type Submitter interface {
	SubmitActivity(ctx context.Context, records []FlushRecord) error
}

// Tracker is the session activity engine. One instance owns the single
// Entry, the pending buffer, and the offline queue.
type Tracker struct {
	mu            sync.Mutex
	authenticated bool
	entry         *Entry
	activeTabID   int
	buffer        []FlushRecord
	offline       []FlushRecord
	history       []FlushRecord
	flushing        bool
	offlineFlushing bool

	sitesVisitedToday int
	blockedCountToday int
	visitedDomains    map[string]bool
	lastStatsReset    string

	store     state.Store
	submitter Submitter
	logger    *logging.Logger
}

// NewTracker creates a tracker and restores the offline queue, activity
// history, and daily stats from the state store. The pending buffer is
// deliberately in-memory only.
func NewTracker(store state.Store, submitter Submitter, logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	t := &Tracker{
		store:          store,
		submitter:      submitter,
		logger:         logger.WithComponent("session"),
		visitedDomains: make(map[string]bool),
	}
	t.restore()
	return t
}

// SetAuthenticated tells the tracker whether a supervised user is signed
// in. Logging out closes any open session without starting a new one.
func (t *Tracker) SetAuthenticated(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.authenticated && !ok {
		t.closeEntry(clock.Now())
	}
	t.authenticated = ok
}

// HandleTabActivated closes the previous session and starts one for the
// newly foreground tab. Silent no-op when unauthenticated.
func (t *Tracker) HandleTabActivated(tab host.Tab) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.authenticated {
		return
	}
	now := clock.Now()
	t.closeEntry(now)
	t.activeTabID = tab.ID
	t.startEntry(tab, now)
}

// HandleURLChanged handles in-tab navigation. Changes in background tabs
// are ignored; for the foreground tab the old session is closed and a new
// one started for the new URL.
func (t *Tracker) HandleURLChanged(tabID int, url string, tab host.Tab) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.authenticated || tabID != t.activeTabID {
		return
	}
	now := clock.Now()
	t.closeEntry(now)
	tab.ID = tabID
	tab.URL = url
	t.startEntry(tab, now)
}

// HandleWindowFocusChanged pauses the session on blur and resumes on focus.
func (t *Tracker) HandleWindowFocusChanged(focused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.authenticated {
		return
	}
	if focused {
		t.resumeEntry(clock.Now())
	} else {
		t.pauseEntry(clock.Now())
	}
}

// HandleIdleStateChanged pauses on idle/locked and resumes on active.
func (t *Tracker) HandleIdleStateChanged(s host.IdleState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.authenticated {
		return
	}
	if s == host.IdleStateActive {
		t.resumeEntry(clock.Now())
	} else {
		t.pauseEntry(clock.Now())
	}
}

// SessionStart returns when the current session began, or nil. Used by the
// restrictions controller for the session-duration check.
func (t *Tracker) SessionStart() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entry == nil {
		return nil
	}
	start := t.entry.StartTime
	return &start
}

// startEntry creates a new session record if the URL is trackable.
// Caller holds t.mu.
func (t *Tracker) startEntry(tab host.Tab, now time.Time) {
	if !trackable(tab.URL) {
		return
	}
	t.entry = &Entry{
		URL:       tab.URL,
		Domain:    domainOf(tab.URL),
		Title:     tab.Title,
		VisitTime: now,
		StartTime: now,
		ResumedAt: now,
	}
	t.registerVisit(t.entry.Domain)
	t.logger.Debug("Session started", "domain", t.entry.Domain)
}

// pauseEntry transitions RUNNING -> PAUSED, banking the active span.
// Caller holds t.mu. No-op when absent or already paused.
func (t *Tracker) pauseEntry(now time.Time) {
	e := t.entry
	if e == nil || e.paused() {
		return
	}
	e.ActiveTime += now.Sub(e.ResumedAt)
	e.PausedAt = &now
	e.IdleStart = &now
}

// resumeEntry transitions PAUSED -> RUNNING, banking the idle span.
// Caller holds t.mu. No-op when absent or already running.
func (t *Tracker) resumeEntry(now time.Time) {
	e := t.entry
	if e == nil || !e.paused() {
		return
	}
	if e.IdleStart != nil {
		e.IdleTime += now.Sub(*e.IdleStart)
	}
	e.PausedAt = nil
	e.IdleStart = nil
	e.ResumedAt = now
}

// closeEntry converts the current Entry into a FlushRecord, or discards it
// when too short to matter. Caller holds t.mu.
func (t *Tracker) closeEntry(now time.Time) {
	e := t.entry
	if e == nil {
		return
	}
	t.entry = nil

	if !e.paused() {
		e.ActiveTime += now.Sub(e.ResumedAt)
	} else if e.IdleStart != nil {
		e.IdleTime += now.Sub(*e.IdleStart)
	}

	duration := int(math.Round(e.ActiveTime.Seconds()))
	idle := int(math.Round(e.IdleTime.Seconds()))
	if duration <= minReportSeconds && idle <= minReportSeconds {
		metrics.SessionsClosed.WithLabelValues("discarded").Inc()
		return
	}

	t.buffer = append(t.buffer, FlushRecord{
		URL:             e.URL,
		Domain:          e.Domain,
		Title:           e.Title,
		VisitTime:       e.VisitTime.Format(time.RFC3339),
		DurationSeconds: duration,
		IdleSeconds:     idle,
		WasBlocked:      e.WasBlocked,
		BlockReason:     e.BlockReason,
	})
	metrics.SessionsClosed.WithLabelValues("reported").Inc()
	metrics.PendingRecords.Set(float64(len(t.buffer)))

	if len(t.buffer) >= bufferCapacity {
		go t.Flush(context.Background())
	}
}
