package jobs

import (
	"context"
	"log/slog"

	"fulfillment/internal/metrics"
)

type TokenSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
	Redeliver(ctx context.Context) (int, error)
}

// TokenSweepJob expires overdue tokens and retries unacknowledged resolutions.
type TokenSweepJob struct {
	*cronJob
	sweeper TokenSweeper
}

func NewTokenSweepJob(sweeper TokenSweeper, schedule string, m *metrics.Metrics, logger *slog.Logger) *TokenSweepJob {
	j := &TokenSweepJob{sweeper: sweeper}
	j.cronJob = newCronJob("token_sweep_job", schedule, j.sweep, m, logger)
	return j
}

func (j *TokenSweepJob) sweep(ctx context.Context) error {
	expired, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		return err
	}
	redelivered, err := j.sweeper.Redeliver(ctx)
	if err != nil {
		return err
	}

	if expired > 0 || redelivered > 0 {
		j.logger.InfoContext(ctx, "tokens swept", "expired", expired, "redelivered", redelivered)
	}
	return nil
}
