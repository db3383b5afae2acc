package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"collector-simulator/internal/route"
	"collector-simulator/internal/sim"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type Options struct {
	// SubjectPrefix heads every subject: <prefix>.<agent>.<event>.
	SubjectPrefix string
	AgentID       string
	// Stream, when set, makes publishes go through JetStream into a stream
	// covering <prefix>.>, created or updated on connect.
	Stream      string
	LogSubjects bool
}

// NATSPublisher mirrors the walk onto NATS. It satisfies sim.Reporter and
// sim.StopObserver.
type NATSPublisher struct {
	nc      *nats.Conn
	publish func(subject string, data []byte) error
	opts    Options
	metrics PublisherMetrics
	log     *slog.Logger
	now     func() time.Time
}

func NewNATSPublisher(url string, opts Options, m PublisherMetrics) (*NATSPublisher, error) {
	log := slog.Default().With("component", "nats")
	nc, err := nats.Connect(url,
		nats.Name("collector-simulator"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(nc.IsConnected())
	}

	p := newPublisher(nc.Publish, opts, m, log)
	p.nc = nc
	if opts.Stream != "" {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		cfg := &nats.StreamConfig{
			Name:     opts.Stream,
			Subjects: []string{subjectToken(p.opts.SubjectPrefix) + ".>"},
			MaxAge:   24 * time.Hour,
			Storage:  nats.FileStorage,
		}
		if _, err := js.AddStream(cfg); err != nil {
			// stream may already exist
			if _, err := js.UpdateStream(cfg); err != nil {
				nc.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
		p.publish = func(subject string, data []byte) error {
			_, err := js.Publish(subject, data)
			return err
		}
	}
	return p, nil
}

func newPublisher(publish func(string, []byte) error, opts Options, m PublisherMetrics, log *slog.Logger) *NATSPublisher {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = "collector"
	}
	if opts.AgentID == "" {
		opts.AgentID = "sim"
	}
	return &NATSPublisher{publish: publish, opts: opts, metrics: m, log: log, now: time.Now}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

type PositionMessage struct {
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
	Lon       float64   `json:"lon"`
	Lat       float64   `json:"lat"`
}

type StopMessage struct {
	AgentID   string    `json:"agentId"`
	Event     string    `json:"event"`
	StopID    string    `json:"stopId"`
	StopName  string    `json:"stopName"`
	Timestamp time.Time `json:"timestamp"`
	Lon       float64   `json:"lon"`
	Lat       float64   `json:"lat"`
}

func (p *NATSPublisher) ReportPosition(ctx context.Context, pos route.Coordinate) (sim.Ack, error) {
	msg := PositionMessage{
		AgentID:   p.opts.AgentID,
		Timestamp: p.now(),
		Lon:       pos.Lon(),
		Lat:       pos.Lat(),
	}
	if err := p.send(p.subject("position"), msg); err != nil {
		return sim.Ack{}, err
	}
	return sim.Ack{}, nil
}

func (p *NATSPublisher) OnArrival(ctx context.Context, stop route.Stop) {
	p.stopEvent("arrival", stop)
}

func (p *NATSPublisher) OnDeparture(ctx context.Context, stop route.Stop) {
	p.stopEvent("departure", stop)
}

func (p *NATSPublisher) stopEvent(event string, stop route.Stop) {
	msg := StopMessage{
		AgentID:   p.opts.AgentID,
		Event:     event,
		StopID:    stop.ID,
		StopName:  stop.Name,
		Timestamp: p.now(),
		Lon:       stop.Location.Lon(),
		Lat:       stop.Location.Lat(),
	}
	if err := p.send(p.subject(event), msg); err != nil {
		p.log.Error("publish stop event failed", "event", event, "stop", stop.ID, "err", err)
	}
}

func (p *NATSPublisher) subject(event string) string {
	return fmt.Sprintf("%s.%s.%s", subjectToken(p.opts.SubjectPrefix), subjectToken(p.opts.AgentID), event)
}

func (p *NATSPublisher) send(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.opts.LogSubjects {
		p.log.Debug("nats publish", "subject", subject)
	}
	start := time.Now()
	err = p.publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
