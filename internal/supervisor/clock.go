package supervisor

import "time"

// Clock supplies monotonic microsecond timestamps for heartbeat
// stamping and liveness touches. Same narrow seam as slotsync.Clock
// and streaming.Clock, so supervisor tests can drive checkTimeouts
// deterministically instead of racing the wall clock.
type Clock interface {
	NowUs() uint64
}

type realClock struct{ origin time.Time }

func newRealClock() Clock { return realClock{origin: time.Now()} }

func (c realClock) NowUs() uint64 { return uint64(time.Since(c.origin).Microseconds()) }

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct{ us uint64 }

// NewFakeClock returns a FakeClock starting at 0.
func NewFakeClock() *FakeClock { return &FakeClock{} }

func (c *FakeClock) NowUs() uint64 { return c.us }

// Set pins the clock to an exact microsecond value.
func (c *FakeClock) Set(us uint64) { c.us = us }

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) { c.us += uint64(d.Microseconds()) }
