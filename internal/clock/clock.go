// Package clock supplies the time source and day/month boundary helpers
// used by streak, wallet, and call scheduling code. All boundary math is
// done in the user's timezone so "today" means the user's today.
package clock

import (
	"log/slog"
	"time"
)

// Clock supplies now. Production code uses System; tests use a Fixed clock.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant until advanced. It is not safe for
// concurrent mutation; tests advance it between operations.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay is the exclusive end of t's day in loc (midnight of the next day).
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}

// StartOfWeek truncates t to midnight Monday of its week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	d := StartOfDay(t, loc)
	back := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -back)
}

// StartOfMonth truncates t to the first of its month in loc.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// DaysBetween returns the whole-day difference b-a after truncating both
// to midnight in loc. Negative when b is before a. DST transitions are
// absorbed by rounding: a calendar day is a day even when it is 23 or 25
// hours long.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	da := StartOfDay(a, loc)
	db := StartOfDay(b, loc)
	return int(db.Sub(da).Round(24*time.Hour) / (24 * time.Hour))
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return StartOfDay(a, loc).Equal(StartOfDay(b, loc))
}

// LocationFor loads an IANA timezone name, falling back to UTC when the
// name is empty or unknown.
func LocationFor(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("unknown timezone, using UTC", "tz", tz)
		return time.UTC
	}
	return loc
}

// At combines a calendar date with an "HH:MM" clock time in loc. ok is
// false when the clock time does not parse.
func At(date time.Time, hhmm string, loc *time.Location) (time.Time, bool) {
	parsed, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return time.Time{}, false
	}
	date = date.In(loc)
	return time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), true
}
