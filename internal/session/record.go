// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package session

import (
	"strings"
	"time"
)

// Entry is the single in-flight session record. It exists exactly while a
// trackable tab is foreground and the user is authenticated.
//
// PausedAt is nil while the session is accumulating active time; while
// paused, IdleStart marks when the current idle span began.
type Entry struct {
	URL         string
	Domain      string
	Title       string
	VisitTime   time.Time
	StartTime   time.Time
	ResumedAt   time.Time
	ActiveTime  time.Duration
	IdleTime    time.Duration
	PausedAt    *time.Time
	IdleStart   *time.Time
	WasBlocked  bool
	BlockReason string
}

func (e *Entry) paused() bool {
	return e.PausedAt != nil
}

// FlushRecord is the immutable snapshot of a finished Entry queued for
// delivery. RetryCount is bumped copy-on-write when delivery fails for a
// reason other than connectivity, and records are dropped at the ceiling.
type FlushRecord struct {
	URL             string `json:"url"`
	Domain          string `json:"domain"`
	Title           string `json:"title,omitempty"`
	VisitTime       string `json:"visitTime"` // RFC3339
	DurationSeconds int    `json:"durationSeconds"`
	IdleSeconds     int    `json:"idleSeconds"`
	WasBlocked      bool   `json:"wasBlocked,omitempty"`
	BlockReason     string `json:"blockReason,omitempty"`
	RetryCount      int    `json:"_retryCount,omitempty"`
}

// valid reports whether the record may enter the delivery pipeline.
func (r FlushRecord) valid() bool {
	return r.URL != "" && r.VisitTime != ""
}

// trackable reports whether a URL can start a session. The agent's own
// surfaces, the host platform's internal schemes, and local files never do.
func trackable(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// domainOf reduces a URL to its bare domain: no scheme, no path, no port,
// no leading "www.", lowercased.
func domainOf(url string) string {
	d := strings.ToLower(url)
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(d, sep); i >= 0 {
			d = d[:i]
		}
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimPrefix(d, "www.")
}
