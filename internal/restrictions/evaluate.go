// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package restrictions

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// Evaluate checks the policy against the given wall-clock time and the
// start of the current browsing session (nil when no session is active).
// Checks run day, then window, then duration; the first failure wins.
func Evaluate(policy *Policy, now time.Time, sessionStart *time.Time) Result {
	if policy == nil || !policy.Enabled {
		return Result{Allowed: true}
	}

	if len(policy.AllowedDays) > 0 {
		today := weekdayNames[now.Weekday()]
		if !containsDay(policy.AllowedDays, today) {
			return Result{
				Allowed: false,
				Reason:  ReasonDayRestricted,
				Message: fmt.Sprintf("Browsing is not allowed on %ss", today),
			}
		}
	}

	if len(policy.TimeWindows) > 0 {
		current := now.Hour()*60 + now.Minute()
		if !anyWindowSatisfied(policy.TimeWindows, current) {
			return Result{
				Allowed: false,
				Reason:  ReasonTimeRestricted,
				Message: "Allowed hours: " + formatWindows(policy.TimeWindows),
			}
		}
	}

	if policy.MaxSessionMinutes > 0 && sessionStart != nil {
		elapsed := now.Sub(*sessionStart).Minutes()
		if elapsed > float64(policy.MaxSessionMinutes) {
			return Result{
				Allowed: false,
				Reason:  ReasonSessionLimit,
				Message: fmt.Sprintf("Session limit of %d minutes reached", policy.MaxSessionMinutes),
			}
		}
	}

	return Result{Allowed: true}
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			return true
		}
	}
	return false
}

func anyWindowSatisfied(windows []TimeWindow, current int) bool {
	for _, w := range windows {
		start, okS := parseMinutes(w.Start)
		end, okE := parseMinutes(w.End)
		if !okS || !okE {
			// Malformed window: unsatisfiable rather than wide open.
			continue
		}
		if start > end {
			// Overnight wraparound, e.g. 22:00-06:00.
			if current >= start || current <= end {
				return true
			}
		} else if current >= start && current <= end {
			return true
		}
	}
	return false
}

// parseMinutes converts "HH:MM" to minutes since midnight.
func parseMinutes(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func formatWindows(windows []TimeWindow) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, w.Start+"-"+w.End)
	}
	return strings.Join(parts, ", ")
}
