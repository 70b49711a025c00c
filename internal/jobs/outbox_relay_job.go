package jobs

import (
	"context"
	"log/slog"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/metrics"
)

const (
	defaultRelayBatch      = 100
	defaultOutboxRetention = 24 * time.Hour
)

type EventOutbox interface {
	Relay(ctx context.Context, next ports.EventNotifier, batch int) (int, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRelayJob forwards stored events to the downstream notifier and
// prunes events published longer ago than the retention.
type OutboxRelayJob struct {
	*cronJob
	outbox    EventOutbox
	next      ports.EventNotifier
	clock     kernel.Clock
	batch     int
	retention time.Duration
}

func NewOutboxRelayJob(
	outbox EventOutbox,
	next ports.EventNotifier,
	clock kernel.Clock,
	schedule string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *OutboxRelayJob {
	if clock == nil {
		clock = kernel.SystemClock{}
	}
	j := &OutboxRelayJob{
		outbox:    outbox,
		next:      next,
		clock:     clock,
		batch:     defaultRelayBatch,
		retention: defaultOutboxRetention,
	}
	j.cronJob = newCronJob("outbox_relay_job", schedule, j.relay, m, logger)
	return j
}

func (j *OutboxRelayJob) relay(ctx context.Context) error {
	relayed, err := j.outbox.Relay(ctx, j.next, j.batch)
	if err != nil {
		return err
	}
	if relayed > 0 {
		j.logger.DebugContext(ctx, "outbox events relayed", "count", relayed)
	}

	_, err = j.outbox.Prune(ctx, j.clock.Now().Add(-j.retention))
	return err
}
