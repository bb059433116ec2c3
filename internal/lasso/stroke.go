package lasso

// EventType identifies a pointer event.
type EventType string

const (
	PointerDown EventType = "down"
	PointerMove EventType = "move"
	PointerUp   EventType = "up"
)

// Event is a raw pointer event in page coordinates. Timestamp is the monotonic
// capture time in milliseconds; zero means the receiver stamps it.
type Event struct {
	Type      EventType `json:"type"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp float64   `json:"timestamp"`
}

// Valid reports whether the event type is one of the known pointer events.
func (e Event) Valid() bool {
	switch e.Type {
	case PointerDown, PointerMove, PointerUp:
		return true
	}
	return false
}

// Recorder accumulates the samples of one stroke at a time and turns a
// finished stroke into a Region.
type Recorder struct {
	origin  Point
	clock   monotonic
	active  bool
	samples []Sample
}

// NewRecorder creates a recorder whose coordinates are relative to origin,
// the page offset of the drawing surface.
func NewRecorder(origin Point, clock Clock) *Recorder {
	return newRecorder(origin, newMonotonic(clock))
}

func newRecorder(origin Point, clock monotonic) *Recorder {
	return &Recorder{origin: origin, clock: clock}
}

// Active reports whether a stroke is being drawn.
func (r *Recorder) Active() bool {
	return r.active
}

// Pending returns a copy of the samples of the in-progress stroke.
func (r *Recorder) Pending() []Sample {
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Down starts a stroke. It reports false when a stroke is already active.
func (r *Recorder) Down(ev Event) bool {
	if r.active {
		return false
	}
	r.active = true
	r.samples = r.samples[:0]
	r.add(ev)
	return true
}

// Move appends a sample to the active stroke. Moves without an active stroke
// are ignored.
func (r *Recorder) Move(ev Event) bool {
	if !r.active {
		return false
	}
	r.add(ev)
	return true
}

// Up ends the active stroke and returns the closed region. It returns nil
// when no stroke is active.
func (r *Recorder) Up(ev Event) *Region {
	if !r.active {
		return nil
	}
	r.add(ev)
	region := NewRegion(r.samples)
	r.samples = nil
	r.active = false
	return region
}

func (r *Recorder) add(ev Event) {
	r.samples = append(r.samples, Sample{
		X:         ev.X - r.origin.X,
		Y:         ev.Y - r.origin.Y,
		Timestamp: r.clock.stamp(ev.Timestamp),
	})
}
