package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"collector-simulator/internal/route"
)

type State int

const (
	Traveling State = iota
	AtStop
	Done
)

func (s State) String() string {
	switch s {
	case Traveling:
		return "traveling"
	case AtStop:
		return "at_stop"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SimulationState is the walker's per-run state. It lives for one Run call.
type SimulationState struct {
	Index int
	State State
	Stop  *route.Stop
}

// Transition is emitted every time the walker changes state.
type Transition struct {
	From, To State
	Index    int
	Stop     *route.Stop
}

// Ack is what the tracking service said about a position report.
type Ack struct {
	Message string
}

// Reporter delivers the agent's position to the outside world.
type Reporter interface {
	ReportPosition(ctx context.Context, pos route.Coordinate) (Ack, error)
}

type ReporterFunc func(ctx context.Context, pos route.Coordinate) (Ack, error)

func (f ReporterFunc) ReportPosition(ctx context.Context, pos route.Coordinate) (Ack, error) {
	return f(ctx, pos)
}

// StopObserver is told when the agent arrives at and departs from a stop.
type StopObserver interface {
	OnArrival(ctx context.Context, stop route.Stop)
	OnDeparture(ctx context.Context, stop route.Stop)
}

// Metrics is the subset of instrumentation the walker feeds.
type Metrics interface {
	StepInc()
	ReportErrInc()
	StopReachedInc(stopID string)
	DwellObserve(d time.Duration)
	SetState(s State)
	SetProgress(index, total int)
}

// Config holds the walker's tunables. Distances are in coordinate degrees.
type Config struct {
	SpacingFactor    float64
	ArrivalTolerance float64
	SpeedMultiplier  float64
	Dwell            time.Duration
	// StepUnit is the time unit the inter-step delay 1/SpeedMultiplier is
	// expressed in. Zero means one second.
	StepUnit time.Duration
}

// ConfigError rejects a tunable before the walk starts.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Validate reports every bad field, joined. Use errors.As to get a *ConfigError.
func (c Config) Validate() error {
	var errs []error
	positive := func(field string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, &ConfigError{Field: field, Value: v, Reason: "must be finite"})
		} else if v <= 0 {
			errs = append(errs, &ConfigError{Field: field, Value: v, Reason: "must be > 0"})
		}
	}
	positive("spacing factor", c.SpacingFactor)
	positive("arrival tolerance", c.ArrivalTolerance)
	positive("speed multiplier", c.SpeedMultiplier)
	if v := c.SpeedMultiplier; v > 0 && float64(c.unit())/v >= math.MaxInt64 {
		errs = append(errs, &ConfigError{Field: "speed multiplier", Value: v, Reason: "step interval overflows"})
	}
	if c.Dwell < 0 {
		errs = append(errs, &ConfigError{Field: "dwell", Value: c.Dwell.Seconds(), Reason: "must be >= 0"})
	}
	if c.StepUnit < 0 {
		errs = append(errs, &ConfigError{Field: "step unit", Value: c.StepUnit.Seconds(), Reason: "must be >= 0"})
	}
	return errors.Join(errs...)
}

// Interval is the wait between two consecutive steps. Only meaningful for a
// config that passed Validate.
func (c Config) Interval() time.Duration {
	return time.Duration(float64(c.unit()) / c.SpeedMultiplier)
}

func (c Config) unit() time.Duration {
	if c.StepUnit == 0 {
		return time.Second
	}
	return c.StepUnit
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	Steps          int
	ReportFailures int
	StopsVisited   []string
	DistanceMeters float64
	Elapsed        time.Duration
	Warnings       []error
}
