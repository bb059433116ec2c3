package lasso

import "time"

// Clock abstracts time so attempts are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// monotonic converts clock readings to milliseconds since a fixed origin,
// the same timebase a browser's performance.now() uses.
type monotonic struct {
	clock  Clock
	origin time.Time
}

func newMonotonic(clock Clock) monotonic {
	if clock == nil {
		clock = SystemClock{}
	}
	return monotonic{clock: clock, origin: clock.Now()}
}

func (m monotonic) now() float64 {
	return float64(m.clock.Now().Sub(m.origin)) / float64(time.Millisecond)
}

// stamp returns at when it is set, otherwise the current monotonic time.
// The two timebases differ: at is the client's performance.now(), the
// fallback counts from the creation of this clock. A stroke mixing stamped
// and unstamped events carries both, and no attempt is made to align them.
func (m monotonic) stamp(at float64) float64 {
	if at > 0 {
		return at
	}
	return m.now()
}
