package clock

import "time"

// FakeClock is a manually advanced Clock for tests that assert on
// issuance and cancellation timestamps.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// At returns a Clock pinned to t, for tests that never move time.
func At(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}
