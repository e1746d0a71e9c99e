// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package restrictions evaluates the time-of-day access policy and
// broadcasts the resulting allow/deny state to observing surfaces.
package restrictions

import (
	"sync"
	"time"

	"grimm.is/hearth/internal/clock"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/state"
)

const (
	tickInterval = time.Minute

	stateBucket    = "restrictions"
	keyPolicy      = "policy"
	keyLastResult  = "lastResult"
	broadcastTopic = "restrictions"
)

// Broadcaster fans a message out to all observing surfaces. Delivery is
// best-effort; per-surface failures must not surface here.
type Broadcaster interface {
	Broadcast(v any)
}

// SessionStartFunc reports when the current browsing session began, or nil
// when no session is active.
type SessionStartFunc func() *time.Time

// StatusMessage is the payload broadcast to observing surfaces.
type StatusMessage struct {
	Type    string `json:"type"`
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// Controller owns the restrictions policy and re-evaluates it once per
// minute and on every policy change.
type Controller struct {
	mu           sync.Mutex
	policy       *Policy
	lastResult   Result
	store        state.Store
	broadcaster  Broadcaster
	sessionStart SessionStartFunc
	logger       *logging.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewController creates a controller and restores any persisted policy.
func NewController(store state.Store, broadcaster Broadcaster, sessionStart SessionStartFunc, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	c := &Controller{
		store:        store,
		broadcaster:  broadcaster,
		sessionStart: sessionStart,
		logger:       logger.WithComponent("restrictions"),
		lastResult:   Result{Allowed: true},
		stopCh:       make(chan struct{}),
	}
	c.restore()
	return c
}

func (c *Controller) restore() {
	var p Policy
	err := state.GetJSON(c.store, stateBucket, keyPolicy, &p)
	if err == state.ErrNotFound {
		return
	}
	if err != nil {
		c.logger.Warn("Failed to restore policy", "error", err)
		return
	}
	c.policy = &p
	c.logger.Info("Restored restrictions policy", "enabled", p.Enabled, "windows", len(p.TimeWindows))
}

// Start begins the periodic evaluation loop.
func (c *Controller) Start() {
	c.Tick()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Tick()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the evaluation loop.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Tick evaluates the persisted policy against the current wall clock,
// persists the result, and broadcasts it. Safe to call back-to-back.
func (c *Controller) Tick() {
	c.mu.Lock()
	policy := c.policy
	c.mu.Unlock()

	var start *time.Time
	if c.sessionStart != nil {
		start = c.sessionStart()
	}

	result := Evaluate(policy, clock.Now(), start)

	c.mu.Lock()
	changed := result != c.lastResult
	c.lastResult = result
	c.mu.Unlock()

	if !result.Allowed {
		metrics.RestrictionDenials.WithLabelValues(result.Reason).Inc()
	}
	if changed {
		c.logger.Info("Access state changed", "allowed", result.Allowed, "reason", result.Reason)
	}

	if err := state.SetJSON(c.store, stateBucket, keyLastResult, result); err != nil {
		c.logger.Warn("Failed to persist evaluation result", "error", err)
	}
	c.broadcast(result)
}

// SetRestrictions replaces the policy, persists it, and re-evaluates
// immediately.
func (c *Controller) SetRestrictions(policy *Policy) {
	c.mu.Lock()
	c.policy = policy
	c.mu.Unlock()

	if policy == nil {
		c.Clear()
		return
	}

	if err := state.SetJSON(c.store, stateBucket, keyPolicy, policy); err != nil {
		c.logger.Warn("Failed to persist policy", "error", err)
	}
	c.logger.Info("Restrictions policy updated",
		"enabled", policy.Enabled,
		"days", len(policy.AllowedDays),
		"windows", len(policy.TimeWindows),
		"max_session_minutes", policy.MaxSessionMinutes)
	c.Tick()
}

// Clear removes the policy and broadcasts an unconditional allow.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.policy = nil
	c.lastResult = Result{Allowed: true}
	c.mu.Unlock()

	if err := c.store.Delete(stateBucket, keyPolicy); err != nil {
		c.logger.Warn("Failed to delete persisted policy", "error", err)
	}
	if err := c.store.Delete(stateBucket, keyLastResult); err != nil {
		c.logger.Warn("Failed to delete persisted result", "error", err)
	}
	c.logger.Info("Restrictions cleared")
	c.broadcast(Result{Allowed: true})
}

// Status returns the most recent evaluation result.
func (c *Controller) Status() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// Policy returns the active policy, or nil.
func (c *Controller) Policy() *Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

func (c *Controller) broadcast(result Result) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Broadcast(StatusMessage{
		Type:    broadcastTopic,
		Allowed: result.Allowed,
		Message: result.Message,
	})
}
