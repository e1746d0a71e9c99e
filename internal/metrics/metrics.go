// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the agent's aggregate counters. These are the
// only user-visible failure signal the core has; everything else is logs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// SessionsClosed counts finished browsing sessions, by outcome.
	SessionsClosed = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "session",
		Name:      "closed_total",
		Help:      "Finished browsing sessions by outcome (reported or discarded).",
	}, []string{"outcome"})

	// FlushFailures counts delivery failures by error kind.
	FlushFailures = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "session",
		Name:      "flush_failures_total",
		Help:      "Telemetry flush failures by classified kind.",
	}, []string{"kind"})

	// RecordsDropped counts records removed from the pipeline, by cause.
	RecordsDropped = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "session",
		Name:      "records_dropped_total",
		Help:      "Records dropped before delivery (validation, retry ceiling, auth expiry).",
	}, []string{"cause"})

	// PendingRecords is the current depth of the in-memory flush buffer.
	PendingRecords = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "hearth",
		Subsystem: "session",
		Name:      "pending_records",
		Help:      "Records waiting in the pending buffer.",
	})

	// OfflineQueueDepth is the current depth of the durable offline queue.
	OfflineQueueDepth = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "hearth",
		Subsystem: "session",
		Name:      "offline_queue_depth",
		Help:      "Records persisted while the backend was unreachable.",
	})

	// BlockedRequests counts requests reported as blocked.
	BlockedRequests = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "blocklist",
		Name:      "blocked_requests_total",
		Help:      "Requests matched by the blocklist.",
	})

	// RulesInstalled is the size of the currently installed native rule set.
	RulesInstalled = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "hearth",
		Subsystem: "blocklist",
		Name:      "rules_installed",
		Help:      "Compiled rules currently installed in the native filter.",
	})

	// RestrictionDenials counts access denials by reason.
	RestrictionDenials = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "restrictions",
		Name:      "denials_total",
		Help:      "Access denials by reason.",
	}, []string{"reason"})
)

// Handler returns the HTTP handler serving the agent's metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
