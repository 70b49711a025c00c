package jobs

import (
	"context"
	"log/slog"

	"fulfillment/internal/metrics"

	"github.com/robfig/cron/v3"
)

// cronJob runs one function on a cron schedule.
type cronJob struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
	cron     *cron.Cron
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func newCronJob(
	name, schedule string,
	run func(ctx context.Context) error,
	m *metrics.Metrics,
	logger *slog.Logger,
) *cronJob {
	logger = logger.With("component", name)
	cl := cronLogger{logger: logger}
	return &cronJob{
		name:     name,
		schedule: schedule,
		run:      run,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		metrics: m,
		logger:  logger,
	}
}

// Run executes the job once.
func (j *cronJob) Run(ctx context.Context) error {
	err := j.run(ctx)
	if j.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		j.metrics.JobRuns.WithLabelValues(j.name, result).Inc()
	}
	return err
}

func (j *cronJob) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx := context.Background()
		if err := j.Run(ctx); err != nil {
			j.logger.ErrorContext(ctx, "job run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.InfoContext(context.Background(), "job started", "schedule", j.schedule)
	return nil
}

// Stop waits for a running tick to finish.
func (j *cronJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.InfoContext(context.Background(), "job stopped")
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
