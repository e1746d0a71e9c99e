// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides an overridable time source so engines that do
// wall-clock arithmetic can be tested deterministically.
package clock

import "time"

var nowFn = time.Now

// Now returns the current time from the active source.
func Now() time.Time {
	return nowFn()
}

// SetForTest replaces the time source and returns a restore function.
func SetForTest(fn func() time.Time) (restore func()) {
	prev := nowFn
	nowFn = fn
	return func() { nowFn = prev }
}
