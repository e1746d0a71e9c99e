// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package monitor watches backend reachability so the agent notices
// offline stretches ending without waiting for a surface to tell it.
package monitor

import (
	"context"
	"sync"
	"time"

	"grimm.is/hearth/internal/logging"
)

// Pinger checks backend reachability. *cloud.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result holds the latest reachability check.
type Result struct {
	IsUp      bool      `json:"is_up"`
	Latency   string    `json:"latency"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}

// Service probes the backend on an interval and fires OnRestored when
// reachability comes back after at least one failed check.
type Service struct {
	logger   *logging.Logger
	pinger   Pinger
	interval time.Duration

	// OnRestored runs on the offline-to-online transition.
	OnRestored func()

	resultMu sync.RWMutex
	result   Result
	wasDown  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a connectivity monitor.
func NewService(pinger Pinger, interval time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Service{
		logger:   logger.WithComponent("monitor"),
		pinger:   pinger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the probe loop.
func (s *Service) Start() {
	s.logger.Info("Starting connectivity monitor", "interval", s.interval)
	s.wg.Add(1)
	go s.loop()
}

// Stop stops the probe loop.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Connectivity monitor stopped")
}

// LastResult returns the most recent check.
func (s *Service) LastResult() Result {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	return s.result
}

func (s *Service) loop() {
	defer s.wg.Done()

	s.check()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.check()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := s.pinger.Ping(ctx)
	latency := time.Since(start)

	s.resultMu.Lock()
	res := Result{
		IsUp:      err == nil,
		Latency:   latency.Round(time.Millisecond).String(),
		LastCheck: time.Now(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	s.result = res
	restored := s.wasDown && err == nil
	s.wasDown = err != nil
	s.resultMu.Unlock()

	if err != nil {
		s.logger.Warn("Backend is DOWN", "error", err)
		return
	}
	if restored {
		s.logger.Info("Backend reachable again", "latency", res.Latency)
		if s.OnRestored != nil {
			s.OnRestored()
		}
	}
}
