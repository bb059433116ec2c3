package lasso

import (
	"time"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func squareStimulus() Stimulus {
	return Stimulus{Points: []Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 10, Y: 20}, {X: 20, Y: 20}}}
}

// rect returns the pointer events of a stroke tracing the rectangle
// (x0,y0)-(x1,y1), offset by the surface origin.
func rect(origin Point, x0, y0, x1, y1 float64) []Event {
	corners := []Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
	events := make([]Event, 0, len(corners)+1)
	for i, c := range corners {
		typ := PointerMove
		if i == 0 {
			typ = PointerDown
		}
		events = append(events, Event{Type: typ, X: c.X + origin.X, Y: c.Y + origin.Y})
	}
	// Release just above the start so the closing edge is distinct.
	events = append(events, Event{Type: PointerUp, X: x0 + origin.X, Y: y0 + origin.Y + 0.5})
	return events
}

func samplesOf(points ...Point) []Sample {
	out := make([]Sample, len(points))
	for i, p := range points {
		out[i] = Sample{X: p.X, Y: p.Y, Timestamp: float64(i)}
	}
	return out
}
