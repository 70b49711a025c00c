package jobs

import (
	"context"
	"log/slog"
	"time"

	"fulfillment/internal/metrics"
)

// DefaultStaleReservationAge is how long a delivery slot may be held before
// it is reclaimed.
const DefaultStaleReservationAge = 30 * time.Minute

type ReservationReaper interface {
	ReapStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// StaleReservationJob reclaims slots held by orders that never released them.
type StaleReservationJob struct {
	*cronJob
	reaper ReservationReaper
	maxAge time.Duration
}

func NewStaleReservationJob(
	reaper ReservationReaper,
	maxAge time.Duration,
	schedule string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *StaleReservationJob {
	if maxAge <= 0 {
		maxAge = DefaultStaleReservationAge
	}
	j := &StaleReservationJob{reaper: reaper, maxAge: maxAge}
	j.cronJob = newCronJob("stale_reservation_job", schedule, j.reap, m, logger)
	return j
}

func (j *StaleReservationJob) reap(ctx context.Context) error {
	reaped, err := j.reaper.ReapStale(ctx, j.maxAge)
	if err != nil {
		return err
	}
	if reaped > 0 {
		j.logger.WarnContext(ctx, "stale delivery reservations released", "count", reaped, "maxAge", j.maxAge)
	}
	return nil
}
