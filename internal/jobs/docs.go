// Package jobs provides scheduled background tasks for the fulfillment service.
//
// Jobs are cron-based (github.com/robfig/cron/v3, seconds precision) and each
// one can also be run once through Run, which is how the sweep command and
// tests drive them.
//
// # Available Jobs
//
//  1. TokenSweepJob - expires overdue confirmation and capacity-wait tokens and
//     redelivers resolutions whose continuation has not acknowledged them
//  2. CapacityHeartbeatJob - keeps parked capacity waiters alive and refreshes
//     the delivery gauges
//  3. StaleReservationJob - releases delivery reservations older than a max age
//  4. OutboxRelayJob - forwards stored events downstream and prunes old ones
//
// # Usage
//
//	manager := jobs.NewJobManager(
//		jobs.NewTokenSweepJob(waiter, "*/5 * * * * *", m, logger),
//		jobs.NewCapacityHeartbeatJob(controller, "*/30 * * * * *", m, logger),
//	)
//	if err := manager.StartAll(); err != nil {
//		return err
//	}
//	defer manager.StopAll()
//
// # Error Handling
//
// A failed run is logged and counted in fulfillment_job_runs_total with
// result="error"; the next tick retries. Overlapping runs are skipped.
package jobs
