package sim

import (
	"context"
	"errors"

	"collector-simulator/internal/route"
)

// MultiReporter reports to every member in order. The first non-empty
// message wins the Ack; member errors are joined.
type MultiReporter []Reporter

func (m MultiReporter) ReportPosition(ctx context.Context, pos route.Coordinate) (Ack, error) {
	var ack Ack
	var errs []error
	for _, r := range m {
		a, err := r.ReportPosition(ctx, pos)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ack.Message == "" {
			ack = a
		}
	}
	return ack, errors.Join(errs...)
}

// Observers forwards stop events to every member in order.
type Observers []StopObserver

func (o Observers) OnArrival(ctx context.Context, stop route.Stop) {
	for _, ob := range o {
		ob.OnArrival(ctx, stop)
	}
}

func (o Observers) OnDeparture(ctx context.Context, stop route.Stop) {
	for _, ob := range o {
		ob.OnDeparture(ctx, stop)
	}
}
