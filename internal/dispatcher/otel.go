package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/bookmarks/internal/dispatcher"

// meter reads the global provider, a no-op until the CLI installs one.
func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// initMetrics creates the lane instruments. The queue gauge is observed
// from the buffered lanes at collection time.
func (d *Dispatcher) initMetrics(m metric.Meter) error {
	var err error
	if d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Events waiting on a lane"),
	); err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	if _, err = m.RegisterCallback(d.observeLanes, d.queueSize); err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	if d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Events handled by a lane"),
	); err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Events rejected by a full non-blocking lane"),
	); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeLanes(_ context.Context, o metric.Observer) error {
	for lane, n := range d.QueueLengths() {
		o.ObserveInt64(d.queueSize, int64(n), metric.WithAttributes(attribute.String("command", lane)))
	}
	return nil
}
