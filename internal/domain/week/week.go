// Package week maps instants onto Monday-to-Sunday calendar weeks.
package week

import (
	"fmt"
	"time"
)

// KeyLayout is the format of a week key: the ISO date of the week's Monday.
const KeyLayout = "2006-01-02"

// Start returns Monday 00:00:00 of the week containing t, in loc.
// Sunday belongs to the week that started six days earlier.
func Start(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	// time.Date normalizes a day underflow into the previous month.
	return time.Date(local.Year(), local.Month(), local.Day()-(weekday-1), 0, 0, 0, 0, loc)
}

// Bounds returns the half-open interval [Monday 00:00, next Monday 00:00).
func Bounds(t time.Time, loc *time.Location) (start, end time.Time) {
	start = Start(t, loc)
	end = time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, start.Location())
	return start, end
}

// Key returns the week key for t.
func Key(t time.Time, loc *time.Location) string {
	return Start(t, loc).Format(KeyLayout)
}

// ParseKey validates a week key and returns its Monday in loc.
func ParseKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(KeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if d.Weekday() != time.Monday {
		return time.Time{}, fmt.Errorf("%w: %q is not a Monday", ErrInvalidKey, key)
	}
	return d, nil
}

// Contains reports whether t falls inside the week that starts at start.
func Contains(start, t time.Time) bool {
	end := time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, start.Location())
	return !t.Before(start) && t.Before(end)
}
