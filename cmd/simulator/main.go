package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/valyala/fasthttp"

	"collector-simulator/internal/collector"
	"collector-simulator/internal/config"
	"collector-simulator/internal/db"
	"collector-simulator/internal/logging"
	"collector-simulator/internal/metrics"
	"collector-simulator/internal/publisher"
	"collector-simulator/internal/route"
	"collector-simulator/internal/session"
	"collector-simulator/internal/sim"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("simulator failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	walkerCfg := cfg.Sim.Walker()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.Metrics.Addr != "" {
		mcol = metrics.NewCollector(walkerCfg.SpeedMultiplier, walkerCfg.Interval(), walkerCfg.Dwell)
		srv := mcol.Serve(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	r, stops, err := loadRoute(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("route loaded", "source", cfg.Route.Source, "vertices", len(r), "stops", len(stops))

	api := collector.New(cfg.API.URL, cfg.API.Timeout)
	resolver := &session.Resolver{Auth: api, TTL: cfg.Valkey.TokenTTL, Log: log}
	if cfg.Valkey.Addr != "" {
		store, err := session.NewValkeyStore(cfg.Valkey.Addr)
		if err != nil {
			log.Warn("token cache unavailable", "err", err)
		} else {
			defer store.Close()
			resolver.Store = store
		}
	}
	token, err := resolver.Resolve(ctx, cfg.API.Token, cfg.API.Username, cfg.API.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	api.SetToken(token)

	if !cfg.Bins.SkipReset {
		levels, _ := config.ParseBinResets(cfg.Bins.Reset)
		log.Info("resetting bins before the run", "bins", config.FormatBinResets(levels))
		if err := api.ResetBinFillLevels(ctx, levels); err != nil {
			log.Warn("some bins could not be reset, proceeding with simulation anyway", "err", err)
		}
	}

	var apiReporter sim.Reporter = timedReporter{api, mcol}
	if resolver.Store != nil && cfg.API.Token == "" {
		apiReporter = &unauthorizedReporter{r: apiReporter, onUnauthorized: func(ctx context.Context) {
			log.Warn("tracking API rejected the token, dropping it from the cache so the next run logs in again")
			if err := resolver.Invalidate(ctx, cfg.API.Username); err != nil {
				log.Warn("token cache delete failed", "err", err)
			}
		}}
	}
	reporters := sim.MultiReporter{apiReporter}
	var observers sim.Observers
	if cfg.NATS.URL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATS.URL, publisher.Options{
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			AgentID:       cfg.API.Username,
			Stream:        cfg.NATS.Stream,
			LogSubjects:   cfg.NATS.LogSubjects,
		}, wrapPublisherMetrics(mcol))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
		reporters = append(reporters, pub)
		observers = append(observers, pub)
	}

	opts := []sim.Option{sim.WithLogger(log), sim.WithObserver(observers)}
	if cfg.Sim.UseIndex {
		opts = append(opts, sim.WithMatcher(route.NewStopIndex(stops, walkerCfg.ArrivalTolerance)))
	}
	if mcol != nil {
		opts = append(opts, sim.WithMetrics(&walkerMetrics{c: mcol}))
	}
	w, err := sim.New(walkerCfg, r, stops, reporters, opts...)
	if err != nil {
		return err
	}
	if mcol != nil {
		mcol.RoutePoints.Set(float64(len(w.Path())))
	}

	sum, err := w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("simulation interrupted", "steps", sum.Steps, "elapsed", sum.Elapsed)
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("route simulation completed",
		"steps", sum.Steps,
		"report_failures", sum.ReportFailures,
		"stops_visited", sum.StopsVisited,
	)
	return nil
}

func loadRoute(ctx context.Context, cfg *config.Config) (route.Route, []route.Stop, error) {
	switch cfg.Route.Source {
	case config.SourceGeoJSON:
		return route.LoadGeoJSON(cfg.Route.File)
	case config.SourcePostgres:
		sqlDB, err := db.Open(cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		return db.LoadRoute(ctx, sqlDB, cfg.Route.ID)
	default:
		return route.SampleRoute(), route.SampleStops(), nil
	}
}

// unauthorizedReporter calls onUnauthorized once, on the first 401 from the
// tracking API.
type unauthorizedReporter struct {
	r              sim.Reporter
	onUnauthorized func(ctx context.Context)
	once           sync.Once
}

func (u *unauthorizedReporter) ReportPosition(ctx context.Context, pos route.Coordinate) (sim.Ack, error) {
	ack, err := u.r.ReportPosition(ctx, pos)
	var serr *collector.StatusError
	if errors.As(err, &serr) && serr.Status == fasthttp.StatusUnauthorized {
		u.once.Do(func() { u.onUnauthorized(ctx) })
	}
	return ack, err
}

// timedReporter records report latency for the tracking API.
type timedReporter struct {
	r sim.Reporter
	c *metrics.Collector
}

func (t timedReporter) ReportPosition(ctx context.Context, pos route.Coordinate) (sim.Ack, error) {
	start := time.Now()
	ack, err := t.r.ReportPosition(ctx, pos)
	if t.c != nil {
		t.c.ReportDuration.Observe(time.Since(start).Seconds())
	}
	return ack, err
}

// walkerMetrics adapts our Collector to the sim.Metrics interface.
type walkerMetrics struct{ c *metrics.Collector }

var allStates = []string{sim.Traveling.String(), sim.AtStop.String(), sim.Done.String()}

func (w *walkerMetrics) StepInc()                     { w.c.Steps.Inc() }
func (w *walkerMetrics) ReportErrInc()                { w.c.ReportErrors.Inc() }
func (w *walkerMetrics) StopReachedInc(stopID string) { w.c.StopsReached.WithLabelValues(stopID).Inc() }
func (w *walkerMetrics) DwellObserve(d time.Duration) { w.c.DwellDuration.Observe(d.Seconds()) }
func (w *walkerMetrics) SetState(s sim.State)         { w.c.SetState(s.String(), allStates...) }
func (w *walkerMetrics) SetProgress(index, total int) {
	w.c.RouteIndex.Set(float64(index))
	w.c.RoutePoints.Set(float64(total))
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
