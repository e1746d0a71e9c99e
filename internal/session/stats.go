// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package session

import (
	"grimm.is/hearth/internal/clock"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/state"
)

// DailyStats is the per-calendar-day aggregate exposed to UI surfaces.
type DailyStats struct {
	SitesVisited int      `json:"sitesVisited"`
	BlockedCount int      `json:"blockedCount"`
	Domains      []string `json:"domains"`
	Date         string   `json:"date"`
}

// maybeRollover resets the daily counters when the local calendar day has
// changed since the persisted reset marker. Caller holds t.mu.
func (t *Tracker) maybeRollover() {
	today := clock.Now().Format("2006-01-02")
	if t.lastStatsReset == today {
		return
	}
	t.sitesVisitedToday = 0
	t.blockedCountToday = 0
	t.visitedDomains = make(map[string]bool)
	t.lastStatsReset = today
	t.persistStats()
	t.logger.Info("Daily stats reset", "date", today)
}

// registerVisit counts the first visit to a domain per day. Caller holds t.mu.
func (t *Tracker) registerVisit(domain string) {
	t.maybeRollover()
	if domain == "" || t.visitedDomains[domain] {
		return
	}
	t.visitedDomains[domain] = true
	t.sitesVisitedToday++
	t.persistStats()
}

// LogBlockedRequest records that a request was blocked. When the blocked
// URL belongs to the current session's domain the entry is annotated; a
// new entry is never created here. The daily blocked counter always moves.
func (t *Tracker) LogBlockedRequest(url, reason, category string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeRollover()
	t.blockedCountToday++
	t.persistStats()
	metrics.BlockedRequests.Inc()

	if t.entry != nil && domainOf(url) == t.entry.Domain {
		t.entry.WasBlocked = true
		if t.entry.BlockReason == "" {
			t.entry.BlockReason = reason
		}
	}
	t.logger.Debug("Blocked request", "domain", domainOf(url), "reason", reason, "category", category)
}

// StatsToday returns today's aggregates, rolling over first if needed.
func (t *Tracker) StatsToday() DailyStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeRollover()
	domains := make([]string, 0, len(t.visitedDomains))
	for d := range t.visitedDomains {
		domains = append(domains, d)
	}
	return DailyStats{
		SitesVisited: t.sitesVisitedToday,
		BlockedCount: t.blockedCountToday,
		Domains:      domains,
		Date:         t.lastStatsReset,
	}
}

func (t *Tracker) persistStats() {
	if err := state.SetJSON(t.store, stateBucket, keySitesVisited, t.sitesVisitedToday); err != nil {
		t.logger.Warn("Failed to persist visit counter", "error", err)
	}
	if err := state.SetJSON(t.store, stateBucket, keyBlockedCount, t.blockedCountToday); err != nil {
		t.logger.Warn("Failed to persist blocked counter", "error", err)
	}
	if err := state.SetJSON(t.store, stateBucket, keyVisitedDomains, t.visitedDomains); err != nil {
		t.logger.Warn("Failed to persist visited domains", "error", err)
	}
	if err := t.store.Set(stateBucket, keyLastStatsReset, []byte(t.lastStatsReset)); err != nil {
		t.logger.Warn("Failed to persist stats reset marker", "error", err)
	}
}
