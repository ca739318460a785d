package quota

import (
	"time"
)

// DayLayout is the calendar-day format of quota records.
const DayLayout = "2006-01-02"

// Day returns the UTC calendar day of t as YYYY-MM-DD. Quota days roll over
// at 00:00 UTC regardless of the caller's or server's time zone.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// NextReset returns the instant the quota day containing t ends.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}
