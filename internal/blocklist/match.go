// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package blocklist

import "strings"

// fallbackCategory is reported when a blocked domain has no categorized rule.
const fallbackCategory = "Restricted"

// normalizeDomain reduces a URL or host string to a bare comparable domain:
// lowercase, no scheme, no path/query/fragment, no port, no leading "www.".
func normalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(d, sep); i >= 0 {
			d = d[:i]
		}
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return d
}

// matchesDomain reports whether domain equals entry or is a subdomain of it.
// Both sides must already be normalized.
func matchesDomain(domain, entry string) bool {
	if entry == "" {
		return false
	}
	return domain == entry || strings.HasSuffix(domain, "."+entry)
}

// matchString returns the comparable match text of a compiled rule's
// condition, literal or regex.
func matchString(c CompiledRule) string {
	if c.Condition.URLFilter != "" {
		return c.Condition.URLFilter
	}
	return c.Condition.RegexFilter
}

// anchoredDomain extracts the domain from a literal "||example.com"-style
// anchor prefix, or "" when the filter is not domain-anchored.
func anchoredDomain(filter string) string {
	if !strings.HasPrefix(filter, "||") {
		return ""
	}
	d := strings.TrimPrefix(filter, "||")
	for _, sep := range []string{"^", "/", "*"} {
		if i := strings.Index(d, sep); i >= 0 {
			d = d[:i]
		}
	}
	return normalizeDomain(d)
}
