package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD BUCKETING - Date to fortnightly invoice bucket
// =============================================================================

// BucketName maps a calendar date to the name of the fortnightly invoice
// bucket it falls in. The month splits at day 15:
//
//	2025-03-10 -> "March 1-15 2025"
//	2025-03-16 -> "March 16-31 2025"
//	2024-02-20 -> "February 16-29 2024" (leap year)
//
// The upper bound of the second half is the true last day of the month,
// not a hardcoded 30. Month names are the English time.Month names, so
// the result is locale-invariant. Pure function, no I/O; the name is the
// natural key for period tables in both ledger variants.
func BucketName(d Date) string {
	if d.Day() <= 15 {
		return fmt.Sprintf("%s 1-15 %d", d.Month().String(), d.Year())
	}
	return fmt.Sprintf("%s 16-%d %d", d.Month().String(), LastDayOfMonth(d.Year(), d.Month()), d.Year())
}

// LastDayOfMonth returns the number of days in the given month (28-31).
func LastDayOfMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
