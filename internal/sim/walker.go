package sim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geo"

	"collector-simulator/internal/route"
)

// Walker steps an agent along a densified route, one point at a time.
type Walker struct {
	cfg      Config
	path     route.Path
	matcher  route.Matcher
	reporter Reporter
	observer StopObserver
	metrics  Metrics
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	onTrans  func(Transition)
	warnings []error
}

type Option func(*Walker)

// WithMatcher replaces the default linear stop scan, e.g. with a route.StopIndex.
func WithMatcher(m route.Matcher) Option { return func(w *Walker) { w.matcher = m } }

func WithObserver(o StopObserver) Option { return func(w *Walker) { w.observer = o } }

func WithMetrics(m Metrics) Option { return func(w *Walker) { w.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(w *Walker) { w.log = l } }

// WithSleep swaps the blocking wait used between steps and during dwell.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Walker) { w.sleep = f }
}

func WithTransitions(f func(Transition)) Option { return func(w *Walker) { w.onTrans = f } }

// New validates cfg, densifies r and returns a walker ready to Run.
func New(cfg Config, r route.Route, stops []route.Stop, reporter Reporter, opts ...Option) (*Walker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reporter == nil {
		return nil, errors.New("sim: reporter is required")
	}
	w := &Walker{
		cfg:      cfg,
		path:     route.Densify(r, cfg.SpacingFactor),
		matcher:  route.LinearMatcher{Stops: stops, Tolerance: cfg.ArrivalTolerance},
		reporter: reporter,
		log:      slog.Default(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	if r.Degenerate() {
		w.warnings = append(w.warnings, route.ErrDegenerateRoute)
		w.log.Warn("degenerate route, walking it as-is", "points", len(r))
	}
	return w, nil
}

// Path returns the densified trajectory the walker will follow.
func (w *Walker) Path() route.Path { return w.path }

// Run walks the whole path. Report failures are logged and counted but never
// stop the walk; only ctx cancellation ends a run early.
func (w *Walker) Run(ctx context.Context) (Summary, error) {
	sum := Summary{Warnings: w.warnings}
	start := time.Now()

	st := &SimulationState{State: Traveling}
	if w.metrics != nil {
		w.metrics.SetState(Traveling)
	}
	total := len(w.path)
	interval := w.cfg.Interval()
	w.log.Info("starting route",
		"points", total,
		"speed", w.cfg.SpeedMultiplier,
		"interval", interval,
		"dwell", w.cfg.Dwell,
	)

	for i, pos := range w.path {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}
		st.Index = i
		if i > 0 {
			sum.DistanceMeters += geo.Distance(w.path[i-1], pos)
		}

		w.report(ctx, i, pos, &sum)

		if stop, ok := w.matcher.Match(pos); ok {
			if err := w.dwell(ctx, st, stop, &sum); err != nil {
				sum.Elapsed = time.Since(start)
				return sum, err
			}
		}

		if i < total-1 {
			if err := w.sleep(ctx, interval); err != nil {
				sum.Elapsed = time.Since(start)
				return sum, err
			}
		}
	}

	w.transition(st, Done, nil)
	sum.Elapsed = time.Since(start)
	w.log.Info("route completed",
		"steps", sum.Steps,
		"report_failures", sum.ReportFailures,
		"stops", len(sum.StopsVisited),
		"distance_m", sum.DistanceMeters,
		"elapsed", sum.Elapsed,
	)
	return sum, nil
}

func (w *Walker) report(ctx context.Context, i int, pos route.Coordinate, sum *Summary) {
	sum.Steps++
	if w.metrics != nil {
		w.metrics.StepInc()
		w.metrics.SetProgress(i, len(w.path))
	}
	ack, err := w.reporter.ReportPosition(ctx, pos)
	if err != nil {
		sum.ReportFailures++
		if w.metrics != nil {
			w.metrics.ReportErrInc()
		}
		w.log.Error("report position failed",
			"position", i+1, "of", len(w.path),
			"lon", pos.Lon(), "lat", pos.Lat(),
			"err", err,
		)
		return
	}
	w.log.Info("position reported",
		"position", i+1, "of", len(w.path),
		"lon", pos.Lon(), "lat", pos.Lat(),
		"server", ack.Message,
	)
}

// dwell runs the AtStop leg of the state machine. A cancelled ctx ends the
// dwell without a departure callback.
func (w *Walker) dwell(ctx context.Context, st *SimulationState, stop route.Stop, sum *Summary) error {
	w.transition(st, AtStop, &stop)
	sum.StopsVisited = append(sum.StopsVisited, stop.ID)
	if w.metrics != nil {
		w.metrics.StopReachedInc(stop.ID)
	}
	w.log.Info("reached stop",
		"stop", stop.Name, "id", stop.ID,
		"lon", stop.Location.Lon(), "lat", stop.Location.Lat(),
		"pause", w.cfg.Dwell,
	)
	if w.observer != nil {
		w.observer.OnArrival(ctx, stop)
	}

	began := time.Now()
	err := w.sleep(ctx, w.cfg.Dwell)
	if w.metrics != nil {
		w.metrics.DwellObserve(time.Since(began))
	}
	if err != nil {
		return err
	}

	if w.observer != nil {
		w.observer.OnDeparture(ctx, stop)
	}
	w.log.Info("resuming route", "stop", stop.Name)
	w.transition(st, Traveling, nil)
	return nil
}

func (w *Walker) transition(st *SimulationState, to State, stop *route.Stop) {
	t := Transition{From: st.State, To: to, Index: st.Index, Stop: stop}
	st.State = to
	st.Stop = stop
	if w.metrics != nil {
		w.metrics.SetState(to)
	}
	w.log.Debug("state change", "from", t.From, "to", t.To, "index", t.Index)
	if w.onTrans != nil {
		w.onTrans(t)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
