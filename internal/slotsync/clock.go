package slotsync

import "time"

// Clock supplies the current time in microseconds since an arbitrary
// but fixed origin. Production code uses realClock (backed by
// time.Now()'s monotonic reading); tests use FakeClock to drive
// deterministic round-by-round scenarios.
type Clock interface {
	NowUs() uint64
}

type realClock struct {
	origin time.Time
}

func newRealClock() *realClock {
	return &realClock{origin: time.Now()}
}

func (c *realClock) NowUs() uint64 {
	return uint64(time.Since(c.origin).Microseconds())
}

// FakeClock is a manually-advanced Clock for tests.
type FakeClock struct {
	us uint64
}

func NewFakeClock() *FakeClock { return &FakeClock{} }

func (c *FakeClock) NowUs() uint64 { return c.us }

func (c *FakeClock) Advance(d time.Duration) { c.us += uint64(d.Microseconds()) }

func (c *FakeClock) Set(us uint64) { c.us = us }
