package route

import (
	"math"
	"strconv"

	"github.com/paulmach/orb/planar"
)

// Densify inserts evenly spaced points between route vertices. Distances are
// planar, in degrees.
//
// Each segment of length d is cut into n = max(1, floor(d/spacing)) parts and
// the n-1 interior points are rounded to 6 decimals, so a step is shorter
// than 2*spacing. Vertices are emitted as authored. Adjacent identical
// vertices collapse into one point.
//
// Routes with fewer than two points, and non-positive or non-finite spacing,
// return a copy of the input.
func Densify(r Route, spacing float64) Path {
	if len(r) < 2 || !(spacing > 0) || math.IsInf(spacing, 0) {
		return append(Path(nil), r...)
	}

	out := make(Path, 0, estimateLen(r, spacing))
	out = append(out, r[0])
	for i := 0; i+1 < len(r); i++ {
		a, b := r[i], r[i+1]
		if a == b {
			continue
		}
		d := planar.Distance(a, b)
		n := int(math.Floor(d / spacing))
		if n < 1 {
			n = 1
		}
		for j := 1; j < n; j++ {
			ratio := float64(j) / float64(n)
			out = append(out, Coordinate{
				round6(a[0] + ratio*(b[0]-a[0])),
				round6(a[1] + ratio*(b[1]-a[1])),
			})
		}
		out = append(out, b)
	}
	return out
}

func estimateLen(r Route, spacing float64) int {
	total := 0.0
	for i := 0; i+1 < len(r); i++ {
		total += planar.Distance(r[i], r[i+1])
	}
	est := int(total/spacing) + len(r)
	// guard against absurd spacing/length ratios
	if est > 1<<20 {
		est = 1 << 20
	}
	return est
}

// round6 rounds the exact binary value to 6 decimals, half to even. Scaling by
// 1e6 first would round twice and can flip near-ties.
func round6(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 6, 64), 64)
	return r
}
