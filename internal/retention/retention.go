// Package retention decides which history items have aged out and removes
// them on demand or on a cron schedule.
package retention

import "time"

// Cutoff returns the instant before which items are eligible for pruning.
// days == 0 disables pruning and reports ok == false. The subtraction is in
// calendar days in now's location, so a window spanning a DST change still
// lands on the same wall-clock time.
func Cutoff(days int, now time.Time) (cutoff time.Time, ok bool) {
	if days <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -days), true
}
