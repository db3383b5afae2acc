package route

import "math"

// Matcher finds the stop, if any, whose tolerance square contains a position.
type Matcher interface {
	Match(pos Coordinate) (Stop, bool)
}

// Match returns the first stop in order whose square tolerance region contains
// pos: both |Δlon| and |Δlat| must be strictly below tolerance.
func Match(pos Coordinate, stops []Stop, tolerance float64) (Stop, bool) {
	for _, s := range stops {
		if within(pos, s.Location, tolerance) {
			return s, true
		}
	}
	return Stop{}, false
}

func within(pos, loc Coordinate, tolerance float64) bool {
	return math.Abs(pos[0]-loc[0]) < tolerance && math.Abs(pos[1]-loc[1]) < tolerance
}

// LinearMatcher scans stops in order on every call.
type LinearMatcher struct {
	Stops     []Stop
	Tolerance float64
}

func (m LinearMatcher) Match(pos Coordinate) (Stop, bool) {
	return Match(pos, m.Stops, m.Tolerance)
}
