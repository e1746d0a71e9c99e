// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package agent wires the engines together and drives them: it drains
// host events into the session tracker, flushes activity on a timer,
// and keeps the rule set synchronized with the backend.
package agent

import (
	"context"
	"sync"
	"time"

	"grimm.is/hearth/internal/blocklist"
	"grimm.is/hearth/internal/host"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/restrictions"
	"grimm.is/hearth/internal/session"
)

// RuleFetcher retrieves the device's current rule set from the backend.
// *cloud.Client satisfies it.
type RuleFetcher interface {
	FetchRuleSet(ctx context.Context) (*blocklist.SyncPayload, error)
}

// Agent is the long-running orchestrator.
type Agent struct {
	tracker      *session.Tracker
	blocklist    *blocklist.Service
	restrictions *restrictions.Controller
	client       RuleFetcher
	source       host.EventSource
	logger       *logging.Logger

	flushInterval time.Duration
	syncInterval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Deps carries the agent's collaborators.
type Deps struct {
	Tracker       *session.Tracker
	Blocklist     *blocklist.Service
	Restrictions  *restrictions.Controller
	Client        RuleFetcher
	Source        host.EventSource
	Logger        *logging.Logger
	FlushInterval time.Duration
	SyncInterval  time.Duration
}

func New(deps Deps) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Agent{
		tracker:       deps.Tracker,
		blocklist:     deps.Blocklist,
		restrictions:  deps.Restrictions,
		client:        deps.Client,
		source:        deps.Source,
		logger:        logger.WithComponent("agent"),
		flushInterval: deps.FlushInterval,
		syncInterval:  deps.SyncInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the event loop and timers. An initial rule sync runs
// right away so a fresh install enforces policy before the first tick.
func (a *Agent) Start() {
	a.logger.Info("Agent starting",
		"flush_interval", a.flushInterval, "sync_interval", a.syncInterval)

	if a.restrictions != nil {
		a.restrictions.Start()
	}

	a.wg.Add(2)
	go a.eventLoop()
	go a.timerLoop()
}

// Stop shuts the loops down and delivers whatever is still buffered.
func (a *Agent) Stop() {
	close(a.stopCh)
	a.wg.Wait()
	if a.restrictions != nil {
		a.restrictions.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.tracker.Flush(ctx)
	a.logger.Info("Agent stopped")
}

// SyncRules fetches the current rule set and applies it, including any
// time restrictions riding along in the payload.
func (a *Agent) SyncRules(ctx context.Context) {
	payload, err := a.client.FetchRuleSet(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Rule sync failed")
		return
	}

	policy, updated, err := a.blocklist.Sync(*payload)
	if err != nil {
		a.logger.WithError(err).Error("Rule install failed")
		return
	}
	if !updated {
		return
	}

	if a.restrictions != nil {
		if policy != nil {
			a.restrictions.SetRestrictions(policy)
		} else {
			a.restrictions.Clear()
		}
	}
	a.logger.Info("Rule set updated", "version", a.blocklist.Version())
}

// ConnectivityRestored re-drives delivery after an offline stretch:
// the offline queue first, then a rule sync in case versions moved.
func (a *Agent) ConnectivityRestored() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	a.tracker.FlushOfflineQueue(ctx)
	a.SyncRules(ctx)
}

func (a *Agent) eventLoop() {
	defer a.wg.Done()

	events := a.source.Events()
	for {
		select {
		case <-a.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				a.logger.Info("Event source closed")
				return
			}
			a.dispatch(ev)
		}
	}
}

func (a *Agent) dispatch(ev host.Event) {
	switch e := ev.(type) {
	case host.TabActivated:
		a.tracker.HandleTabActivated(e.Tab)
	case host.URLChanged:
		a.tracker.HandleURLChanged(e.TabID, e.URL, e.Tab)
	case host.WindowFocusChanged:
		a.tracker.HandleWindowFocusChanged(e.Focused)
	case host.IdleStateChanged:
		a.tracker.HandleIdleStateChanged(e.State)
	default:
		a.logger.Warn("Unknown host event", "event", ev)
	}
}

func (a *Agent) timerLoop() {
	defer a.wg.Done()

	flush := time.NewTicker(a.flushInterval)
	sync := time.NewTicker(a.syncInterval)
	defer flush.Stop()
	defer sync.Stop()

	// First sync happens immediately, not one interval in.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	a.SyncRules(ctx)
	cancel()

	for {
		select {
		case <-a.stopCh:
			return
		case <-flush.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			a.tracker.Flush(ctx)
			cancel()
		case <-sync.C:
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			a.SyncRules(ctx)
			cancel()
		}
	}
}
