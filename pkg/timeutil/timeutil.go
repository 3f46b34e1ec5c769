// Package timeutil provides calendar-day arithmetic in a configured time zone.
// Streak rules are defined on local calendar days, never on 24h windows, so all
// day comparisons go through CalendarDay.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// FormatDate is the wire and storage format of a calendar day (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Clock abstracts the current instant and the zone in which calendar days are computed.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// SystemClock reads the wall clock.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a clock for the given location. A nil location means time.Local.
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c *SystemClock) Location() *time.Location { return c.loc }

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a clock frozen at t. Calendar days are computed in t's location.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) Location() *time.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Location()
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// AddDays moves the clock by n calendar days, keeping the wall time.
func (c *FixedClock) AddDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

// CalendarDay returns the calendar date of t as seen in loc, normalized to
// midnight UTC. Two instants fall on the same local day iff their calendar
// days are equal, and consecutive days are exactly 24h apart.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar day of the clock's current instant.
func Today(c Clock) time.Time {
	return CalendarDay(c.Now(), c.Location())
}

// Date builds a calendar day value.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b (b - a).
// Both arguments must be calendar days.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// SameDay reports whether a and b are the same calendar day. Nil never matches.
func SameDay(a *time.Time, b time.Time) bool {
	return a != nil && a.Equal(b)
}

// IsDayBefore reports whether a is exactly one calendar day before b.
func IsDayBefore(a *time.Time, b time.Time) bool {
	return a != nil && DaysBetween(*a, b) == 1
}

// FormatDay formats a calendar day as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return day.Format(FormatDate)
}

// ParseDay parses a YYYY-MM-DD string into a calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(FormatDate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// LoadLocation resolves an IANA zone name. "Local" or empty yields time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}
