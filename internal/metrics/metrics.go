package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Steps          prometheus.Counter
	ReportErrors   prometheus.Counter
	StopsReached   *prometheus.CounterVec // stop label
	State          *prometheus.GaugeVec   // state label, 1 for the current state
	RouteIndex     prometheus.Gauge
	RoutePoints    prometheus.Gauge
	DwellDuration  prometheus.Histogram
	ReportDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	SpeedMultiplier prometheus.Gauge
	StepInterval    prometheus.Gauge // seconds
	DwellSeconds    prometheus.Gauge
}

func NewCollector(speedMultiplier float64, stepInterval, dwell time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_steps_total",
			Help: "Total route points processed.",
		}),
		ReportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_report_errors_total",
			Help: "Total position reports that failed.",
		}),
		StopsReached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_stops_reached_total",
			Help: "Total arrivals at stops.",
		}, []string{"stop"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simulator_state",
			Help: "1 for the walker's current state, 0 otherwise.",
		}, []string{"state"}),
		RouteIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_route_index",
			Help: "Index of the current point in the densified route.",
		}),
		RoutePoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_route_points",
			Help: "Number of points in the densified route.",
		}),
		DwellDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_dwell_duration_seconds",
			Help:    "Time spent paused at stops.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_report_duration_seconds",
			Help:    "Duration of a position report to the tracking API.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_speed_multiplier",
			Help: "Current speed multiplier.",
		}),
		StepInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_step_interval_seconds",
			Help: "Wait between route points in seconds.",
		}),
		DwellSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_dwell_seconds",
			Help: "Configured pause at each stop in seconds.",
		}),
	}

	reg.MustRegister(
		c.Steps, c.ReportErrors, c.StopsReached, c.State,
		c.RouteIndex, c.RoutePoints, c.DwellDuration, c.ReportDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.SpeedMultiplier, c.StepInterval, c.DwellSeconds,
	)

	c.SpeedMultiplier.Set(speedMultiplier)
	c.StepInterval.Set(stepInterval.Seconds())
	c.DwellSeconds.Set(dwell.Seconds())

	return c
}

// SetState marks current as the only active value of the state gauge.
func (c *Collector) SetState(current string, all ...string) {
	for _, s := range all {
		c.State.WithLabelValues(s).Set(0)
	}
	c.State.WithLabelValues(current).Set(1)
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "err", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}
