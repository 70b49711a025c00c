package jobs

import (
	"context"
	"log/slog"

	"fulfillment/internal/core/application/admission"
	"fulfillment/internal/metrics"
)

type CapacityMonitor interface {
	Heartbeat(ctx context.Context) (int, error)
	RedeliverGrants(ctx context.Context) (int, error)
	Snapshot(ctx context.Context) (admission.Snapshot, error)
}

// CapacityHeartbeatJob heartbeats parked capacity waiters so durable
// continuations are not timed out, retries grants nobody acknowledged and
// refreshes the delivery gauges.
type CapacityHeartbeatJob struct {
	*cronJob
	capacity CapacityMonitor
}

func NewCapacityHeartbeatJob(
	capacity CapacityMonitor,
	schedule string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CapacityHeartbeatJob {
	j := &CapacityHeartbeatJob{capacity: capacity}
	j.cronJob = newCronJob("capacity_heartbeat_job", schedule, j.beat, m, logger)
	return j
}

func (j *CapacityHeartbeatJob) beat(ctx context.Context) error {
	if _, err := j.capacity.Heartbeat(ctx); err != nil {
		return err
	}
	redelivered, err := j.capacity.RedeliverGrants(ctx)
	if err != nil {
		return err
	}
	if redelivered > 0 {
		j.logger.InfoContext(ctx, "capacity grants redelivered", "count", redelivered)
	}

	snap, err := j.capacity.Snapshot(ctx)
	if err != nil {
		return err
	}
	if j.metrics != nil {
		j.metrics.DeliveryInFlight.Set(float64(snap.InFlight))
		j.metrics.DeliveryWaiting.Set(float64(snap.Waiting))
	}
	return nil
}
