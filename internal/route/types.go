package route

import (
	"errors"

	"github.com/paulmach/orb"
)

// ErrDegenerateRoute marks a route with fewer than two vertices. It is a warning,
// not a failure: such routes are walked as-is.
var ErrDegenerateRoute = errors.New("route has fewer than two points")

// Coordinate is a [longitude, latitude] pair in decimal degrees.
type Coordinate = orb.Point

// Route is the ordered vertex list as authored.
type Route []Coordinate

// Path is a densified route, walked one point per step.
type Path []Coordinate

// Stop is a named location the agent pauses at, such as a bin.
type Stop struct {
	ID       string
	Name     string
	Location Coordinate
}

// C builds a Coordinate from longitude and latitude.
func C(lon, lat float64) Coordinate { return Coordinate{lon, lat} }

// Degenerate reports whether r has fewer than two vertices.
func (r Route) Degenerate() bool { return len(r) < 2 }
