package lasso

// Listener receives pointer events delivered to a surface.
type Listener func(Event)

// Surface is the fixed-size drawing area. Events are delivered only to the
// listeners currently registered on it.
type Surface struct {
	Width  int
	Height int
	Offset Point

	listeners map[int]Listener
	order     []int
	next      int
}

// NewSurface creates a surface of the given size placed at offset on the page.
func NewSurface(width, height int, offset Point) *Surface {
	return &Surface{
		Width:     width,
		Height:    height,
		Offset:    offset,
		listeners: make(map[int]Listener),
	}
}

// Listen registers l and returns the func that removes it. Calling the
// release func more than once is safe.
func (s *Surface) Listen(l Listener) (release func()) {
	id := s.next
	s.next++
	s.listeners[id] = l
	s.order = append(s.order, id)

	return func() {
		if _, ok := s.listeners[id]; !ok {
			return
		}
		delete(s.listeners, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// Listeners returns the number of registered listeners.
func (s *Surface) Listeners() int {
	return len(s.listeners)
}

// Dispatch delivers ev to every registered listener in registration order.
// A listener may release itself while handling the event.
func (s *Surface) Dispatch(ev Event) {
	ids := make([]int, len(s.order))
	copy(ids, s.order)
	for _, id := range ids {
		if l, ok := s.listeners[id]; ok {
			l(ev)
		}
	}
}

// Fits reports whether every stimulus point lies within the surface.
func (s *Surface) Fits(stimulus Stimulus) bool {
	for _, p := range stimulus.Points {
		if p.X < 0 || p.Y < 0 || p.X > float64(s.Width) || p.Y > float64(s.Height) {
			return false
		}
	}
	return true
}
