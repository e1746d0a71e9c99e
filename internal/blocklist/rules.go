// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package blocklist compiles backend block/allow rules into the native
// filter rule set and answers synchronous "is this URL blocked" queries
// against cached state.
package blocklist

import "grimm.is/hearth/internal/restrictions"

// MaxInstalledRules is the native filter engine's hard ceiling. Compiled
// sets beyond this are silently truncated.
const MaxInstalledRules = 5000

// Rule is an abstract block/allow rule as delivered by the backend.
type Rule struct {
	Pattern     string `json:"pattern"`
	PatternType string `json:"patternType"` // "domain", "url", or "regex"
	Category    string `json:"category,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Action      string `json:"action,omitempty"` // "block" (default) or "allow"
}

// Condition is the normalized match condition of a compiled rule. Exactly
// one of URLFilter or RegexFilter is set.
type Condition struct {
	ResourceTypes []string `json:"resourceTypes"`
	URLFilter     string   `json:"urlFilter,omitempty"`
	RegexFilter   string   `json:"regexFilter,omitempty"`
}

// CompiledRule is one entry of the native filter rule set. IDs are dense,
// start at 1, and are reissued from scratch on every compile.
type CompiledRule struct {
	ID        int       `json:"id"`
	Priority  int       `json:"priority"`
	Action    string    `json:"action"`
	Condition Condition `json:"condition"`
	Category  string    `json:"category,omitempty"`
}

// SyncPayload is the rule-sync response shape from the backend.
type SyncPayload struct {
	Version          string               `json:"version"`
	Rules            []Rule               `json:"rules"`
	BlockedDomains   []string             `json:"blockedDomains"`
	AllowlistDomains []string             `json:"allowlistDomains"`
	AllowOnlyListed  bool                 `json:"allowOnlyListed"`
	TimeRestrictions *restrictions.Policy `json:"timeRestrictions,omitempty"`
}

// Installer is the native filter engine's rule surface. Implementations
// must reject additions that would exceed MaxInstalledRules.
type Installer interface {
	InstalledRuleIDs() ([]int, error)
	RemoveRules(ids []int) error
	AddRules(rules []CompiledRule) error
}

// Decision is the result of a synchronous block query.
type Decision struct {
	Blocked  bool   `json:"blocked"`
	Category string `json:"category,omitempty"`
	Err      error  `json:"-"`
}
