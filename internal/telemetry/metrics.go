package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the inbox instruments. A nil *Metrics records nothing.
type Metrics struct {
	inboundIngested  metric.Int64Counter
	inboundDuplicate metric.Int64Counter
	statusUpdates    metric.Int64Counter
	outboundSent     metric.Int64Counter
	outboundFailed   metric.Int64Counter
	streams          metric.Int64UpDownCounter
	eventsDropped    metric.Int64Counter
}

// NewMetrics registers the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationScope)
	}
	m := &Metrics{}
	var err error
	if m.inboundIngested, err = meter.Int64Counter("inbox.inbound.ingested",
		metric.WithDescription("Inbound messages stored")); err != nil {
		return nil, err
	}
	if m.inboundDuplicate, err = meter.Int64Counter("inbox.inbound.duplicates",
		metric.WithDescription("Inbound redeliveries collapsed by provider message id")); err != nil {
		return nil, err
	}
	if m.statusUpdates, err = meter.Int64Counter("inbox.status.updates",
		metric.WithDescription("Provider status callbacks applied")); err != nil {
		return nil, err
	}
	if m.outboundSent, err = meter.Int64Counter("inbox.outbound.sent",
		metric.WithDescription("Outbound messages accepted by the provider")); err != nil {
		return nil, err
	}
	if m.outboundFailed, err = meter.Int64Counter("inbox.outbound.failed",
		metric.WithDescription("Outbound messages rejected by the provider")); err != nil {
		return nil, err
	}
	if m.streams, err = meter.Int64UpDownCounter("inbox.stream.connections",
		metric.WithDescription("Open live stream connections")); err != nil {
		return nil, err
	}
	if m.eventsDropped, err = meter.Int64Counter("inbox.bus.dropped",
		metric.WithDescription("Bus events dropped for slow subscribers")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) InboundIngested(ctx context.Context, messageType string) {
	if m == nil {
		return
	}
	m.inboundIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("type", messageType)))
}

func (m *Metrics) InboundDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.inboundDuplicate.Add(ctx, 1)
}

func (m *Metrics) StatusUpdated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.statusUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) OutboundSent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.outboundSent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) OutboundFailed(ctx context.Context, kind string, status int) {
	if m == nil {
		return
	}
	m.outboundFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Int("http.status", status),
	))
}

func (m *Metrics) StreamOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.streams.Add(ctx, 1)
}

func (m *Metrics) StreamClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.streams.Add(ctx, -1)
}

func (m *Metrics) EventDropped(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventType)))
}
