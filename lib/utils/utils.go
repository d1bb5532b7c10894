package utils

import (
	"fmt"
	"regexp"
	"time"
)

// clockPattern matches a 24-hour "HH:MM" time-of-day string.
var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ParseClock parses an "HH:MM" string into minutes since midnight.
// Returns an error for anything that is not a valid 24-hour clock time.
func ParseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM", s)
	}
	var hh, mm int
	fmt.Sscanf(m[1], "%d", &hh)
	fmt.Sscanf(m[2], "%d", &mm)
	return hh*60 + mm, nil
}

// LoadLocation resolves an IANA timezone name, falling back to UTC when the
// name is empty.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %v", tz, err)
	}
	return loc, nil
}

// TruncateToDay returns midnight of t's calendar day in the given location.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the inclusive start and exclusive end instants of t's
// calendar day in the given location.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := TruncateToDay(t, loc)
	return start, start.AddDate(0, 0, 1)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the number of whole calendar days from a to b in loc.
// Negative when b precedes a. The diff is taken on UTC midnights so DST
// transitions cannot shorten or lengthen a day.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// AtClock combines a calendar date with minutes-since-midnight in loc,
// producing the concrete instant on that day.
func AtClock(date time.Time, minutes int, loc *time.Location) time.Time {
	local := date.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), minutes/60, minutes%60, 0, 0, loc)
}

// DayKey returns the canonical storage key for t's calendar day in loc:
// midnight UTC of that calendar date. Daily status rows are keyed this way so
// the same local day maps to one document regardless of offset.
func DayKey(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MinutesSinceMidnight returns the minute-of-day of t in loc.
func MinutesSinceMidnight(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
