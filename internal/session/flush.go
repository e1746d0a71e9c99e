// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package session

import (
	"context"

	"grimm.is/hearth/internal/errors"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/state"
)

const (
	stateBucket       = "session"
	keyOfflineQueue   = "offlineQueue"
	keyHistory        = "activityHistory"
	keySitesVisited   = "sitesVisitedToday"
	keyBlockedCount   = "blockedCountToday"
	keyVisitedDomains = "visitedDomainsToday"
	keyLastStatsReset = "lastStatsReset"
)

// Flush validates and delivers the pending buffer as one batch. Concurrent
// triggers (timer plus capacity) are serialized by an in-flight guard: the
// second caller returns immediately rather than queueing.
//
// Failure handling follows the delivery taxonomy: offline batches move to
// the durable offline queue verbatim; auth-expired batches are dropped (an
// expired session cannot authorize further writes); anything else gets its
// retry count bumped and goes back to the FRONT of the buffer so retried
// records flush before newer ones. Records at the retry ceiling are
// dropped. A re-prepended batch that fills the buffer does not force an
// immediate re-flush; the next timer tick picks it up.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	if t.flushing || len(t.buffer) == 0 {
		t.mu.Unlock()
		return
	}
	t.flushing = true
	batch := t.buffer
	t.buffer = nil
	metrics.PendingRecords.Set(0)
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.flushing = false
		t.mu.Unlock()
	}()

	valid := make([]FlushRecord, 0, len(batch))
	for _, r := range batch {
		if !r.valid() {
			t.logger.Warn("Dropping malformed record", "url", r.URL, "visit_time", r.VisitTime)
			metrics.RecordsDropped.WithLabelValues("validation").Inc()
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return
	}

	// History is for local UI display and is kept regardless of whether
	// delivery succeeds.
	t.appendHistory(valid)

	err := t.submitter.SubmitActivity(ctx, valid)
	if err == nil {
		t.logger.Debug("Flushed activity batch", "records", len(valid))
		return
	}

	kind := errors.GetKind(err)
	metrics.FlushFailures.WithLabelValues(kind.String()).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case errors.IsOffline(err):
		// Append verbatim, no dedupe; the queue preserves arrival order.
		t.offline = append(t.offline, valid...)
		t.persistOfflineQueue()
		t.logger.Info("Backend unreachable, queued batch offline",
			"records", len(valid), "queue_depth", len(t.offline))

	case errors.IsAuthExpired(err):
		metrics.RecordsDropped.WithLabelValues("auth_expired").Add(float64(len(valid)))
		t.logger.Warn("Session expired, dropping batch", "records", len(valid))

	default:
		retried := make([]FlushRecord, 0, len(valid))
		for _, r := range valid {
			r.RetryCount++
			if r.RetryCount >= maxRetries {
				metrics.RecordsDropped.WithLabelValues("retry_ceiling").Inc()
				t.logger.Warn("Dropping record after repeated failures", "url", r.URL)
				continue
			}
			retried = append(retried, r)
		}
		t.buffer = append(retried, t.buffer...)
		metrics.PendingRecords.Set(float64(len(t.buffer)))
		t.logger.WithError(err).Warn("Flush failed, will retry", "records", len(retried))
	}
}

// FlushOfflineQueue attempts one bulk submission of the entire offline
// queue. All-or-nothing: success clears it, failure leaves it untouched.
// No retry counters apply here; this path is re-driven by the next
// connectivity-restored event.
func (t *Tracker) FlushOfflineQueue(ctx context.Context) {
	t.mu.Lock()
	if t.offlineFlushing || len(t.offline) == 0 {
		t.mu.Unlock()
		return
	}
	t.offlineFlushing = true
	queued := make([]FlushRecord, len(t.offline))
	copy(queued, t.offline)
	t.mu.Unlock()

	err := t.submitter.SubmitActivity(ctx, queued)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.offlineFlushing = false

	if err != nil {
		t.logger.WithError(err).Info("Offline queue delivery failed, keeping queue")
		return
	}

	// Items queued during the submission survive.
	t.offline = t.offline[len(queued):]
	t.persistOfflineQueue()
	t.logger.Info("Offline queue delivered", "records", len(queued))
}

// PendingCount returns the depth of the in-memory buffer.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// OfflineCount returns the depth of the durable offline queue.
func (t *Tracker) OfflineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.offline)
}

// History returns the recent activity records, newest last.
func (t *Tracker) History() []FlushRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FlushRecord, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Tracker) appendHistory(records []FlushRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, records...)
	if len(t.history) > historyCap {
		t.history = t.history[len(t.history)-historyCap:]
	}
	if err := state.SetJSON(t.store, stateBucket, keyHistory, t.history); err != nil {
		t.logger.Warn("Failed to persist activity history", "error", err)
	}
}

func (t *Tracker) persistOfflineQueue() {
	metrics.OfflineQueueDepth.Set(float64(len(t.offline)))
	if err := state.SetJSON(t.store, stateBucket, keyOfflineQueue, t.offline); err != nil {
		t.logger.Warn("Failed to persist offline queue", "error", err)
	}
}

// restore rebuilds durable state after a restart.
func (t *Tracker) restore() {
	if err := state.GetJSON(t.store, stateBucket, keyOfflineQueue, &t.offline); err != nil && err != state.ErrNotFound {
		t.logger.Warn("Failed to restore offline queue", "error", err)
	}
	if err := state.GetJSON(t.store, stateBucket, keyHistory, &t.history); err != nil && err != state.ErrNotFound {
		t.logger.Warn("Failed to restore activity history", "error", err)
	}
	if err := state.GetJSON(t.store, stateBucket, keySitesVisited, &t.sitesVisitedToday); err != nil && err != state.ErrNotFound {
		t.logger.Warn("Failed to restore visit counter", "error", err)
	}
	if err := state.GetJSON(t.store, stateBucket, keyBlockedCount, &t.blockedCountToday); err != nil && err != state.ErrNotFound {
		t.logger.Warn("Failed to restore blocked counter", "error", err)
	}
	if err := state.GetJSON(t.store, stateBucket, keyVisitedDomains, &t.visitedDomains); err != nil && err != state.ErrNotFound {
		t.logger.Warn("Failed to restore visited domains", "error", err)
	}
	if t.visitedDomains == nil {
		t.visitedDomains = make(map[string]bool)
	}
	if data, err := t.store.Get(stateBucket, keyLastStatsReset); err == nil {
		t.lastStatsReset = string(data)
	}

	metrics.OfflineQueueDepth.Set(float64(len(t.offline)))
	if len(t.offline) > 0 {
		t.logger.Info("Restored offline queue", "records", len(t.offline))
	}
}
