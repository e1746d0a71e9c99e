// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package restrictions

// Policy describes when browsing is permitted. It is replaced wholesale
// whenever the backend pushes a new version.
type Policy struct {
	Enabled           bool         `json:"enabled"`
	AllowedDays       []string     `json:"allowedDays,omitempty"` // lowercase weekday names
	TimeWindows       []TimeWindow `json:"timeWindows,omitempty"`
	MaxSessionMinutes int          `json:"maxSessionMinutes,omitempty"`
}

// TimeWindow is a daily access window in HH:MM. A window whose start is
// later than its end wraps past midnight (22:00-06:00).
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Deny reasons. A single evaluation yields at most one.
const (
	ReasonDayRestricted  = "day_restricted"
	ReasonTimeRestricted = "time_restricted"
	ReasonSessionLimit   = "session_limit"
)

// Result is the outcome of one policy evaluation.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}
