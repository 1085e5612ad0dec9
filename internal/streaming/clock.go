package streaming

import "time"

// Clock supplies monotonic microsecond timestamps, the same narrow
// seam slotsync.Clock uses, so tests can drive deterministic
// stream-duration/throughput assertions without sleeping.
type Clock interface {
	NowUs() uint64
}

type realClock struct{ origin time.Time }

func newRealClock() Clock { return realClock{origin: time.Now()} }

func (c realClock) NowUs() uint64 { return uint64(time.Since(c.origin).Microseconds()) }
