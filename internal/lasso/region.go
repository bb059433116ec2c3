package lasso

import (
	"math"

	"github.com/gogpu/gg"
)

// boundaryEpsilon is the distance below which a point counts as lying on an edge.
const boundaryEpsilon = 1e-9

// Region is the closed shape produced by one completed stroke. It is
// immutable once built and only answers containment queries.
type Region struct {
	path    *gg.Path
	samples []Sample
}

// NewRegion builds a closed region from an ordered sample sequence. The last
// sample is connected back to the first.
func NewRegion(samples []Sample) *Region {
	owned := make([]Sample, len(samples))
	copy(owned, samples)

	path := gg.NewPath()
	for i, s := range owned {
		if i == 0 {
			path.MoveTo(s.X, s.Y)
			continue
		}
		path.LineTo(s.X, s.Y)
	}
	if len(owned) > 0 {
		path.Close()
	}

	return &Region{path: path, samples: owned}
}

// Samples returns a copy of the boundary samples in capture order.
func (r *Region) Samples() []Sample {
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Len returns the number of boundary samples.
func (r *Region) Len() int {
	return len(r.samples)
}

// Contains reports whether p lies inside the region. Interior points follow
// the non-zero winding rule; points on the boundary, the closing edge
// included, are always inside.
func (r *Region) Contains(p Point) bool {
	if len(r.samples) == 0 {
		return false
	}
	if r.onBoundary(p) {
		return true
	}
	return r.path.Contains(gg.Pt(p.X, p.Y))
}

func (r *Region) onBoundary(p Point) bool {
	n := len(r.samples)
	for i := 0; i < n; i++ {
		a := r.samples[i]
		b := r.samples[(i+1)%n]
		if onSegment(a.X, a.Y, b.X, b.Y, p.X, p.Y) {
			return true
		}
	}
	return false
}

// onSegment reports whether (px,py) lies on the segment (ax,ay)-(bx,by).
func onSegment(ax, ay, bx, by, px, py float64) bool {
	cross := (bx-ax)*(py-ay) - (px-ax)*(by-ay)
	scale := math.Max(1, math.Hypot(bx-ax, by-ay))
	if math.Abs(cross) > boundaryEpsilon*scale {
		return false
	}
	return px >= math.Min(ax, bx)-boundaryEpsilon && px <= math.Max(ax, bx)+boundaryEpsilon &&
		py >= math.Min(ay, by)-boundaryEpsilon && py <= math.Max(ay, by)+boundaryEpsilon
}
