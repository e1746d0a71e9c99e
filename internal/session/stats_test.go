// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/host"
	"grimm.is/hearth/internal/state"
)

func TestDailyVisitUniqueness(t *testing.T) {
	tr, _, _, tc := newTestTracker(t)

	tr.HandleTabActivated(host.Tab{ID: 1, URL: "https://example.com/a"})
	tc.advance(5 * time.Second)
	tr.HandleTabActivated(host.Tab{ID: 2, URL: "https://www.example.com/b"}) // same domain
	tc.advance(5 * time.Second)
	tr.HandleTabActivated(host.Tab{ID: 3, URL: "https://other.example/c"})

	stats := tr.StatsToday()
	assert.Equal(t, 2, stats.SitesVisited)
	assert.ElementsMatch(t, []string{"example.com", "other.example"}, stats.Domains)
}

func TestMidnightRolloverResetsStats(t *testing.T) {
	tr, _, _, tc := newTestTracker(t)

	tr.HandleTabActivated(host.Tab{ID: 1, URL: "https://example.com"})
	tr.LogBlockedRequest("https://ads.example", "blocklist", "Ads")
	require.Equal(t, 1, tr.StatsToday().SitesVisited)
	require.Equal(t, 1, tr.StatsToday().BlockedCount)

	tc.advance(24 * time.Hour)

	stats := tr.StatsToday()
	assert.Equal(t, 0, stats.SitesVisited)
	assert.Equal(t, 0, stats.BlockedCount)
	assert.Empty(t, stats.Domains)

	// A domain visited yesterday counts again today.
	tr.HandleTabActivated(host.Tab{ID: 2, URL: "https://example.com"})
	assert.Equal(t, 1, tr.StatsToday().SitesVisited)
}

func TestLogBlockedRequestAnnotatesMatchingSession(t *testing.T) {
	tr, _, _, tc := newTestTracker(t)

	tr.HandleTabActivated(host.Tab{ID: 1, URL: "https://games.example.com/play"})
	tr.LogBlockedRequest("https://games.example.com/asset.js", "category_block", "Games")

	require.NotNil(t, tr.entry)
	assert.True(t, tr.entry.WasBlocked)
	assert.Equal(t, "category_block", tr.entry.BlockReason)

	// A non-matching URL bumps the counter but leaves the entry alone.
	tr2, _, _, _ := newTestTracker(t)
	_ = tc
	tr2.HandleTabActivated(host.Tab{ID: 1, URL: "https://news.example"})
	tr2.LogBlockedRequest("https://unrelated.example", "blocklist", "Ads")
	assert.False(t, tr2.entry.WasBlocked)
	assert.Equal(t, 1, tr2.StatsToday().BlockedCount)
}

func TestLogBlockedRequestCountsWithoutSession(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)

	tr.LogBlockedRequest("https://ads.example", "blocklist", "Ads")
	assert.Nil(t, tr.SessionStart())
	assert.Equal(t, 1, tr.StatsToday().BlockedCount)
}

func TestStatsSurviveRestart(t *testing.T) {
	tr, sub, store, _ := newTestTracker(t)

	tr.HandleTabActivated(host.Tab{ID: 1, URL: "https://example.com"})
	tr.LogBlockedRequest("https://example.com/x", "blocklist", "Ads")

	tr2 := NewTracker(store, sub, nil)
	stats := tr2.StatsToday()
	assert.Equal(t, 1, stats.SitesVisited)
	assert.Equal(t, 1, stats.BlockedCount)
}

func TestRestoreToleratesEmptyStore(t *testing.T) {
	tr := NewTracker(state.NewMemoryStore(), &fakeSubmitter{}, nil)
	assert.Equal(t, 0, tr.OfflineCount())
	assert.Empty(t, tr.History())
}
