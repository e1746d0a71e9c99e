// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package blocklist

import (
	"fmt"
	"strings"
	"sync"

	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/restrictions"
	"grimm.is/hearth/internal/state"
)

const (
	stateBucket        = "blocklist"
	keyVersion         = "version"
	keyRules           = "rules"
	keyBlockedDomains  = "blockedDomains"
	keyAllowlist       = "allowlistDomains"
	keyAllowOnlyListed = "allowOnlyListed"
)

// Service owns the blocklist rule set: it compiles backend rules into the
// native filter and serves cached lookups independently of it.
type Service struct {
	mu              sync.RWMutex
	synced          bool
	version         string
	rules           []Rule
	compiled        []CompiledRule
	blockedDomains  []string
	allowlist       []string
	allowOnlyListed bool

	installer Installer
	store     state.Store
	logger    *logging.Logger
}

// NewService creates the blocklist service and restores persisted rule
// state. The native rule set is assumed to survive restarts in the filter
// engine, so restoring recompiles the lookup cache without reinstalling.
func NewService(installer Installer, store state.Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	s := &Service{
		installer: installer,
		store:     store,
		logger:    logger.WithComponent("blocklist"),
	}
	s.restore()
	return s
}

func (s *Service) restore() {
	if data, err := s.store.Get(stateBucket, keyVersion); err == nil {
		s.version = string(data)
		s.synced = true
	}
	if err := state.GetJSON(s.store, stateBucket, keyRules, &s.rules); err != nil && err != state.ErrNotFound {
		s.logger.Warn("Failed to restore rules", "error", err)
	}
	if err := state.GetJSON(s.store, stateBucket, keyBlockedDomains, &s.blockedDomains); err != nil && err != state.ErrNotFound {
		s.logger.Warn("Failed to restore blocked domains", "error", err)
	}
	if err := state.GetJSON(s.store, stateBucket, keyAllowlist, &s.allowlist); err != nil && err != state.ErrNotFound {
		s.logger.Warn("Failed to restore allowlist", "error", err)
	}
	if err := state.GetJSON(s.store, stateBucket, keyAllowOnlyListed, &s.allowOnlyListed); err != nil && err != state.ErrNotFound {
		s.logger.Warn("Failed to restore allow-only flag", "error", err)
	}

	if len(s.rules) > 0 {
		s.compiled = compile(s.rules)
	}
	if s.version != "" {
		s.logger.Info("Restored blocklist state",
			"version", s.version,
			"rules", len(s.rules),
			"blocked_domains", len(s.blockedDomains))
	}
}

// Sync applies a rule-sync payload. When the payload version equals the
// last-applied version nothing is touched and updated is false. Otherwise
// the rules are compiled and installed as a full replacement, all fields
// are persisted, and any restrictions policy is returned for the caller to
// hand to the time-restriction controller.
func (s *Service) Sync(payload SyncPayload) (policy *restrictions.Policy, updated bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Plain version equality, including empty == empty: a backend without
	// version strings must not force a reinstall every sync. The synced
	// flag keeps the very first payload from matching the zero value.
	if s.synced && payload.Version == s.version {
		s.logger.Debug("Rule set already current", "version", payload.Version)
		return nil, false, nil
	}

	compiled := compile(payload.Rules)
	if err := s.install(compiled); err != nil {
		return nil, false, fmt.Errorf("failed to install rules: %w", err)
	}

	s.synced = true
	s.version = payload.Version
	s.rules = payload.Rules
	s.compiled = compiled
	s.blockedDomains = payload.BlockedDomains
	s.allowlist = payload.AllowlistDomains
	s.allowOnlyListed = payload.AllowOnlyListed
	s.persist()

	metrics.RulesInstalled.Set(float64(len(compiled)))
	s.logger.Info("Rule set applied",
		"version", payload.Version,
		"rules", len(payload.Rules),
		"installed", len(compiled),
		"blocked_domains", len(payload.BlockedDomains),
		"allowlist", len(payload.AllowlistDomains))

	return payload.TimeRestrictions, true, nil
}

// install replaces the native rule set wholesale. Never an incremental diff:
// stale rules from a previous version must not linger.
func (s *Service) install(rules []CompiledRule) error {
	ids, err := s.installer.InstalledRuleIDs()
	if err != nil {
		return fmt.Errorf("failed to list installed rules: %w", err)
	}
	if len(ids) > 0 {
		if err := s.installer.RemoveRules(ids); err != nil {
			return fmt.Errorf("failed to remove %d rules: %w", len(ids), err)
		}
	}
	if len(rules) == 0 {
		return nil
	}
	return s.installer.AddRules(rules)
}

func (s *Service) persist() {
	if err := s.store.Set(stateBucket, keyVersion, []byte(s.version)); err != nil {
		s.logger.Warn("Failed to persist version", "error", err)
	}
	if err := state.SetJSON(s.store, stateBucket, keyRules, s.rules); err != nil {
		s.logger.Warn("Failed to persist rules", "error", err)
	}
	if err := state.SetJSON(s.store, stateBucket, keyBlockedDomains, s.blockedDomains); err != nil {
		s.logger.Warn("Failed to persist blocked domains", "error", err)
	}
	if err := state.SetJSON(s.store, stateBucket, keyAllowlist, s.allowlist); err != nil {
		s.logger.Warn("Failed to persist allowlist", "error", err)
	}
	if err := state.SetJSON(s.store, stateBucket, keyAllowOnlyListed, s.allowOnlyListed); err != nil {
		s.logger.Warn("Failed to persist allow-only flag", "error", err)
	}
}

// IsURLBlocked answers a synchronous block query from cached state. Any
// internal failure fails open: browsing must not break because the
// blocklist engine is confused.
func (s *Service) IsURLBlocked(url string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Block check panicked, failing open", "url", url, "panic", r)
			d = Decision{Blocked: false, Err: fmt.Errorf("block check failed: %v", r)}
		}
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	domain := normalizeDomain(url)
	if domain == "" {
		return Decision{Blocked: false}
	}

	// 1. Allowlist-only mode: anything off the list is blocked.
	if s.allowOnlyListed && len(s.allowlist) > 0 {
		for _, entry := range s.allowlist {
			if matchesDomain(domain, normalizeDomain(entry)) {
				return Decision{Blocked: false}
			}
		}
		return Decision{Blocked: true, Category: "Allowlist only"}
	}

	// 2. Explicit blocked domains; category comes from any compiled rule
	// mentioning the domain.
	for _, entry := range s.blockedDomains {
		if matchesDomain(domain, normalizeDomain(entry)) {
			return Decision{Blocked: true, Category: s.categoryFor(normalizeDomain(entry))}
		}
	}

	// 3. Domain-anchored literal rules.
	for _, c := range s.compiled {
		if c.Action == "allow" {
			continue
		}
		if anchor := anchoredDomain(c.Condition.URLFilter); anchor != "" && matchesDomain(domain, anchor) {
			cat := c.Category
			if cat == "" {
				cat = fallbackCategory
			}
			return Decision{Blocked: true, Category: cat}
		}
	}

	return Decision{Blocked: false}
}

// categoryFor scans compiled rules for one whose match string contains the
// blocked domain.
func (s *Service) categoryFor(domain string) string {
	for _, c := range s.compiled {
		if c.Category != "" && strings.Contains(matchString(c), domain) {
			return c.Category
		}
	}
	return fallbackCategory
}

// Version returns the last-applied rule set version.
func (s *Service) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// InstalledCount returns the size of the compiled rule set.
func (s *Service) InstalledCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.compiled)
}

// Clear removes all installed native rules and all persisted blocklist
// state, and resets the last-applied version.
func (s *Service) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.install(nil); err != nil {
		return err
	}

	s.synced = false
	s.version = ""
	s.rules = nil
	s.compiled = nil
	s.blockedDomains = nil
	s.allowlist = nil
	s.allowOnlyListed = false

	for _, key := range []string{keyVersion, keyRules, keyBlockedDomains, keyAllowlist, keyAllowOnlyListed} {
		if err := s.store.Delete(stateBucket, key); err != nil {
			s.logger.Warn("Failed to delete persisted key", "key", key, "error", err)
		}
	}

	metrics.RulesInstalled.Set(0)
	s.logger.Info("Blocklist cleared")
	return nil
}
