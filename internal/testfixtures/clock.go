package testfixtures

import (
	"sync"
	"time"
)

// ReferenceTime is a Monday at 06:30 UTC, before the gym opens, so slots
// seeded later that day are still bookable.
func ReferenceTime() time.Time {
	return time.Date(2025, time.March, 3, 6, 30, 0, 0, time.UTC)
}

// Clock is the time source shared by the fake backend, which signs and
// expires tokens with it, and the code under test, which decides slot
// bookability and view freshness with it.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Day is midnight UTC of the current day, the date slot listings use.
func (c *Clock) Day() time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// At is hour:minute UTC on the current day, for seeding slots.
func (c *Clock) At(hour, minute int) time.Time {
	return c.Day().Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Set jumps to t, e.g. into a slot that has already started.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves forward by d, e.g. past an access token lifetime, and
// returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
