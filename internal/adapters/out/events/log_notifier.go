// Package events holds the event notifier adapters: a structured-log
// notifier, a metrics decorator and a fan-out over several notifiers.
package events

import (
	"context"
	"errors"
	"log/slog"

	"fulfillment/internal/core/ports"
	"fulfillment/internal/metrics"
)

// LogNotifier writes every event as one structured log line.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "EventNotifier")}
}

func (n *LogNotifier) Publish(ctx context.Context, event ports.Event) error {
	attrs := []any{
		"source", event.Source,
		"type", event.Type,
		"tenant", event.Key.TenantID(),
		"order", event.Key.OrderID(),
		"occurredAt", event.OccurredAt,
	}
	for k, v := range event.Payload {
		attrs = append(attrs, k, v)
	}
	n.logger.InfoContext(ctx, "event published", attrs...)
	return nil
}

// Fanout publishes to every notifier and joins their errors.
type Fanout []ports.EventNotifier

func (f Fanout) Publish(ctx context.Context, event ports.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MetricsNotifier counts events and stage durations before delegating.
type MetricsNotifier struct {
	next    ports.EventNotifier
	metrics *metrics.Metrics
}

func NewMetricsNotifier(next ports.EventNotifier, m *metrics.Metrics) *MetricsNotifier {
	return &MetricsNotifier{next: next, metrics: m}
}

func (n *MetricsNotifier) Publish(ctx context.Context, event ports.Event) error {
	if err := n.next.Publish(ctx, event); err != nil {
		n.metrics.EventPublishFailures.WithLabelValues(event.Type).Inc()
		return err
	}

	n.metrics.EventsPublished.WithLabelValues(event.Source, event.Type).Inc()

	switch event.Type {
	case ports.EventStageCompleted:
		stage, _ := event.Payload["stage"].(string)
		if seconds, ok := number(event.Payload["durationSeconds"]); ok {
			n.metrics.StageDuration.WithLabelValues(stage).Observe(seconds)
		}
	case ports.EventDeliverySlotReserved, ports.EventDeliverySlotReleased:
		if inFlight, ok := number(event.Payload["inFlight"]); ok {
			n.metrics.DeliveryInFlight.Set(inFlight)
		}
	}
	return nil
}

// number accepts the integer types used by publishers and the float64 that
// payloads decode to after a JSON round trip through the outbox.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
