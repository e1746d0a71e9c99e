// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package blocklist

import (
	"regexp"
)

// catchAllRegex matches any http(s) URL. A literal filter of "*" compiles
// to this rather than being passed through, since the native engine treats
// bare "*" as invalid.
const catchAllRegex = `^https?://.*`

var defaultResourceTypes = []string{"main-document", "sub-document"}

// compile turns abstract rules into the native rule set. Rules with an
// unusable condition are dropped without consuming an ID; the surviving
// rules get dense sequential IDs starting at 1 in original order. The
// result is capped at MaxInstalledRules.
func compile(rules []Rule) []CompiledRule {
	compiled := make([]CompiledRule, 0, len(rules))
	id := 1
	for _, r := range rules {
		cond, ok := sanitizeCondition(r)
		if !ok {
			continue
		}
		action := r.Action
		if action == "" {
			action = "block"
		}
		compiled = append(compiled, CompiledRule{
			ID:        id,
			Priority:  r.Priority,
			Action:    action,
			Condition: cond,
			Category:  r.Category,
		})
		id++
		if len(compiled) == MaxInstalledRules {
			break
		}
	}
	return compiled
}

// sanitizeCondition normalizes a rule's match condition. ok is false when
// the rule has no usable condition and must be dropped.
func sanitizeCondition(r Rule) (Condition, bool) {
	cond := Condition{ResourceTypes: defaultResourceTypes}

	if r.PatternType == "regex" {
		if r.Pattern == "" {
			return Condition{}, false
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			// Single malformed rule; the rest of the set still compiles.
			return Condition{}, false
		}
		cond.RegexFilter = r.Pattern
		return cond, true
	}

	switch r.Pattern {
	case "":
		return Condition{}, false
	case "*":
		cond.RegexFilter = catchAllRegex
		return cond, true
	default:
		cond.URLFilter = r.Pattern
		return cond, true
	}
}
