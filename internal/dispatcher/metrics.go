package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	processed metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
	latency   metric.Float64Histogram
	queueSize metric.Int64ObservableGauge
}

// newMetrics creates the dispatcher instruments on m. depths is polled by
// the queue size gauge.
func newMetrics(m metric.Meter, depths func(observe func(command string, depth int))) (*metrics, error) {
	var (
		out  metrics
		errs []error
	)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	out.processed = counter("dispatcher.events.processed", "Queued events handled")
	out.failed = counter("dispatcher.events.failed", "Queued events whose handler returned an error")
	out.dropped = counter("dispatcher.events.dropped", "Events rejected because their queue was full")

	var err error
	out.latency, err = m.Float64Histogram("dispatcher.latency",
		metric.WithDescription("Time spent in Dispatch per command"),
		metric.WithUnit("ms"))
	errs = append(errs, err)

	out.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting per buffered command"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("creating dispatcher instruments: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		depths(func(command string, depth int) {
			o.ObserveInt64(out.queueSize, int64(depth), metric.WithAttributes(attribute.String("command", command)))
		})
		return nil
	}, out.queueSize)
	if err != nil {
		return nil, fmt.Errorf("registering queue size callback: %w", err)
	}
	return &out, nil
}
