package lasso

// IsFullyCovered reports whether every point lies in at least one region.
// An empty point set is trivially covered.
func IsFullyCovered(points []Point, regions []*Region) bool {
	for _, p := range points {
		if !coveredBy(p, regions) {
			return false
		}
	}
	return true
}

// MembershipTable returns, for every point in order, whether it lies in region.
func MembershipTable(points []Point, region *Region) []Membership {
	table := make([]Membership, len(points))
	for i, p := range points {
		table[i] = Membership{Point: p, Member: region.Contains(p)}
	}
	return table
}

// Coverage returns, for every point in order, whether any region contains it.
// It is the read-only projection used to recolor covered points.
func Coverage(points []Point, regions []*Region) []bool {
	covered := make([]bool, len(points))
	for i, p := range points {
		covered[i] = coveredBy(p, regions)
	}
	return covered
}

func coveredBy(p Point, regions []*Region) bool {
	for _, r := range regions {
		if r.Contains(p) {
			return true
		}
	}
	return false
}
