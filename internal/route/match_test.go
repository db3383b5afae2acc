package route

import (
	"math/rand"
	"testing"
)

func TestMatch(t *testing.T) {
	a := Stop{ID: "a", Location: C(0, 0)}
	b := Stop{ID: "b", Location: C(0.0001, 0.0001)}

	tests := []struct {
		name   string
		pos    Coordinate
		stops  []Stop
		tol    float64
		wantID string
		wantOK bool
	}{
		{"far away", C(0.01, 0.01), []Stop{a}, 0.0005, "", false},
		{"inside square", C(0.0004, -0.0004), []Stop{a}, 0.0005, "a", true},
		{"corner of square counts", C(0.00049, 0.00049), []Stop{a}, 0.0005, "a", true},
		{"boundary is exclusive", C(0.5, 0), []Stop{a}, 0.5, "", false},
		{"first in order wins", C(0.00005, 0.00005), []Stop{a, b}, 0.0005, "a", true},
		{"order reversed", C(0.00005, 0.00005), []Stop{b, a}, 0.0005, "b", true},
		{"no stops", C(0, 0), nil, 0.0005, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.pos, tt.stops, tt.tol)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got.ID != tt.wantID {
				t.Errorf("stop = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestMatchOnDensifiedPath(t *testing.T) {
	p := Densify(Route{C(0, 0), C(0, 2)}, 1)
	stops := []Stop{{ID: "mid", Location: C(0, 1)}}
	var hits []int
	for i, pos := range p {
		if _, ok := Match(pos, stops, 0.5); ok {
			hits = append(hits, i)
		}
	}
	if len(hits) != 1 || hits[0] != 1 {
		t.Fatalf("hits = %v, want [1]", hits)
	}
}

func TestStopIndexAgreesWithMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var stops []Stop
	for i := 0; i < 200; i++ {
		stops = append(stops, Stop{
			ID:       string(rune('A' + i%26)),
			Name:     "s",
			Location: C(rng.Float64()*0.01, rng.Float64()*0.01),
		})
	}
	const tol = 0.0008
	idx := NewStopIndex(stops, tol)
	if idx.Len() != len(stops) {
		t.Fatalf("Len = %d, want %d", idx.Len(), len(stops))
	}
	for i := 0; i < 2000; i++ {
		pos := C(rng.Float64()*0.012-0.001, rng.Float64()*0.012-0.001)
		want, wantOK := Match(pos, stops, tol)
		got, gotOK := idx.Match(pos)
		if gotOK != wantOK || got != want {
			t.Fatalf("pos %v: index = (%v, %v), linear = (%v, %v)", pos, got, gotOK, want, wantOK)
		}
	}
}

func TestStopIndexBoundaryExclusive(t *testing.T) {
	idx := NewStopIndex([]Stop{{ID: "a", Location: C(0, 0)}}, 0.5)
	if _, ok := idx.Match(C(0.5, 0)); ok {
		t.Fatal("point on the tolerance boundary matched")
	}
	if s, ok := idx.Match(C(0.25, -0.25)); !ok || s.ID != "a" {
		t.Fatalf("got (%v, %v), want a", s, ok)
	}
}

func TestSampleStopsAreReached(t *testing.T) {
	p := Densify(SampleRoute(), 0.0002)
	m := LinearMatcher{Stops: SampleStops(), Tolerance: 0.0005}
	seen := map[string]bool{}
	for _, pos := range p {
		if s, ok := m.Match(pos); ok {
			seen[s.ID] = true
		}
	}
	for _, s := range SampleStops() {
		if !seen[s.ID] {
			t.Errorf("stop %s never matched", s.ID)
		}
	}
}
