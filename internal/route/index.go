package route

import (
	"github.com/tidwall/rtree"
)

// StopIndex answers the same queries as Match using an R-tree over stop
// locations. Worth it once a route carries many stops.
type StopIndex struct {
	stops     []Stop
	tolerance float64
	tree      rtree.RTreeG[int]
}

func NewStopIndex(stops []Stop, tolerance float64) *StopIndex {
	idx := &StopIndex{
		stops:     append([]Stop(nil), stops...),
		tolerance: tolerance,
	}
	for i, s := range idx.stops {
		p := [2]float64{s.Location[0], s.Location[1]}
		idx.tree.Insert(p, p, i)
	}
	return idx
}

// Match returns the lowest-ordinal stop whose tolerance square holds pos.
func (idx *StopIndex) Match(pos Coordinate) (Stop, bool) {
	min := [2]float64{pos[0] - idx.tolerance, pos[1] - idx.tolerance}
	max := [2]float64{pos[0] + idx.tolerance, pos[1] + idx.tolerance}
	best := -1
	idx.tree.Search(min, max, func(_, _ [2]float64, i int) bool {
		// box search is inclusive; the tolerance test is strict
		if within(pos, idx.stops[i].Location, idx.tolerance) && (best < 0 || i < best) {
			best = i
		}
		return true
	})
	if best < 0 {
		return Stop{}, false
	}
	return idx.stops[best], true
}

func (idx *StopIndex) Len() int { return idx.tree.Len() }
