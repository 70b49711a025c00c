// Package stages implements the per-order stage state machine.
//
// Every operation runs in its own unit of work: the order is loaded, the
// transition is checked against the lifecycle, step records and the order
// are written with conditional updates and the event is published only after
// commit. A failed publish is logged and never undoes the transition.
package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"
)

// Completion is the result of CompleteStage.
type Completion struct {
	Step            *step.Step
	DurationSeconds int64
}

// Machine is the stage state machine. Safe for concurrent use.
type Machine struct {
	uowFactory ports.UnitOfWorkFactory
	notifier   ports.EventNotifier
	clock      kernel.Clock
	logger     *slog.Logger
}

func NewMachine(
	uowFactory ports.UnitOfWorkFactory,
	notifier ports.EventNotifier,
	clock kernel.Clock,
	logger *slog.Logger,
) (*Machine, error) {
	if uowFactory == nil {
		return nil, errs.NewValueIsRequiredError("uowFactory")
	}
	if notifier == nil {
		return nil, errs.NewValueIsRequiredError("notifier")
	}
	if clock == nil {
		clock = kernel.SystemClock{}
	}

	return &Machine{
		uowFactory: uowFactory,
		notifier:   notifier,
		clock:      clock,
		logger:     logger.With("component", "StageMachine"),
	}, nil
}

// StartStage moves the order into stage and records a new step.
//
// stage must be the immediate successor of the order's current stage, must
// not already be in progress and its predecessor must be finished. Entering
// DELIVERED writes a DONE record, completes the order and publishes
// OrderDelivered after StageStarted.
func (m *Machine) StartStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (*step.Step, error) {
	if err := stage.Validate(); err != nil {
		return nil, err
	}

	uow := m.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	o, err := uow.OrderRepository().Get(ctx, key)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	expected := o.CurrentStage()
	if err := o.Advance(stage, now); err != nil {
		return nil, err
	}

	if err := m.checkStageIsFree(ctx, uow.StepRepository(), key, stage); err != nil {
		return nil, err
	}

	var record *step.Step
	if stage == order.StageDelivered {
		record, err = step.NewDoneStep(key, stage, now, actor)
	} else {
		record, err = step.NewStep(key, stage, now, actor)
	}
	if err != nil {
		return nil, err
	}

	if err := uow.StepRepository().Add(ctx, record); err != nil {
		return nil, conflictAsTransition(err, expected, stage, "stage is already in progress")
	}
	if err := uow.OrderRepository().UpdateIfStage(ctx, o, expected); err != nil {
		return nil, conflictAsTransition(err, expected, stage, "order moved concurrently")
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, errs.NewStoreUnavailableError(err)
	}

	m.logger.InfoContext(ctx, "stage started",
		"order", key.String(), "stage", stage.String(), "actor", record.AssignedTo())

	m.publish(ctx, ports.SourceStages, ports.EventStageStarted, key, map[string]any{
		"stage":      stage.String(),
		"startedAt":  record.StartedAt().Format(time.RFC3339Nano),
		"assignedTo": record.AssignedTo(),
	}, now)

	if stage == order.StageDelivered {
		m.publish(ctx, ports.SourceOrders, ports.EventOrderDelivered, key, map[string]any{
			"stage":       stage.String(),
			"status":      o.Status().String(),
			"deliveredAt": now.Format(time.RFC3339Nano),
			"completedBy": record.CompletedBy(),
		}, now)
	}
	return record, nil
}

// CompleteStage finishes the most recently started record of stage.
//
// Fails with StageNotFound when the stage has no record or its latest record
// is already finished, and with InvalidTransition when it expired.
func (m *Machine) CompleteStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (Completion, error) {
	if err := stage.Validate(); err != nil {
		return Completion{}, err
	}

	uow := m.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return Completion{}, errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	records, err := uow.StepRepository().ListByStage(ctx, key, stage)
	if err != nil {
		return Completion{}, err
	}

	latest := step.Latest(records)
	switch {
	case latest == nil:
		return Completion{}, errs.NewStageNotFoundError(key.String(), stage.String(), "no record")
	case latest.Status() == step.Expired:
		return Completion{}, errs.NewInvalidTransitionError(
			latest.Status().String(), step.Completed.String(), fmt.Sprintf("%s step expired", stage))
	case latest.Status() != step.InProgress:
		return Completion{}, errs.NewStageNotFoundError(key.String(), stage.String(), "no in-progress record")
	}

	now := m.clock.Now()
	duration, err := latest.Complete(now, actor)
	if err != nil {
		return Completion{}, err
	}

	if err := uow.StepRepository().UpdateIfStatus(ctx, latest, step.InProgress); err != nil {
		if errors.Is(err, errs.ErrConcurrentUpdate) {
			return Completion{}, errs.NewStageNotFoundError(key.String(), stage.String(), "completed concurrently")
		}
		return Completion{}, err
	}
	if err := uow.Commit(ctx); err != nil {
		return Completion{}, errs.NewStoreUnavailableError(err)
	}

	m.logger.InfoContext(ctx, "stage completed",
		"order", key.String(), "stage", stage.String(), "durationSeconds", duration)

	m.publish(ctx, ports.SourceStages, ports.EventStageCompleted, key, map[string]any{
		"stage":           stage.String(),
		"startedAt":       latest.StartedAt().Format(time.RFC3339Nano),
		"completedAt":     latest.FinishedAt().Format(time.RFC3339Nano),
		"durationSeconds": duration,
		"completedBy":     latest.CompletedBy(),
	}, now)

	return Completion{Step: latest, DurationSeconds: duration}, nil
}

// AdvanceAutomatic completes the predecessor of stage when it is still in
// progress and then starts stage, both as the system actor.
func (m *Machine) AdvanceAutomatic(ctx context.Context, key kernel.OrderKey, stage order.Stage) (*step.Step, error) {
	if prev, ok := stage.Previous(); ok && prev.IsWorking() {
		_, err := m.CompleteStage(ctx, key, prev, step.SystemActor)
		if err != nil && !errors.Is(err, errs.ErrStageNotFound) {
			return nil, err
		}
	}

	return m.StartStage(ctx, key, stage, step.SystemActor)
}

// ExpireStage closes the in-progress record of stage as EXPIRED and marks the
// order EXPIRED.
func (m *Machine) ExpireStage(ctx context.Context, key kernel.OrderKey, stage order.Stage) error {
	return m.terminate(ctx, key, stage, ports.EventStageExpired, "", func(o *order.Order, now time.Time) error {
		return o.Expire(now)
	})
}

// FailStage closes the in-progress record of stage as EXPIRED and marks the
// order FAILED.
func (m *Machine) FailStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, reason string) error {
	return m.terminate(ctx, key, stage, ports.EventStageFailed, reason, func(o *order.Order, now time.Time) error {
		return o.Fail(now)
	})
}

func (m *Machine) terminate(
	ctx context.Context,
	key kernel.OrderKey,
	stage order.Stage,
	eventType, reason string,
	finish func(*order.Order, time.Time) error,
) error {
	if err := stage.Validate(); err != nil {
		return err
	}

	uow := m.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	o, err := uow.OrderRepository().Get(ctx, key)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	records, err := uow.StepRepository().ListByStage(ctx, key, stage)
	if err != nil {
		return err
	}
	if latest := step.Latest(records); latest != nil && latest.Status() == step.InProgress {
		if err := latest.Expire(now); err != nil {
			return err
		}
		if err := uow.StepRepository().UpdateIfStatus(ctx, latest, step.InProgress); err != nil {
			return conflictAsTransition(err, stage, stage, "step finished concurrently")
		}
	}

	current := o.CurrentStage()
	if err := finish(o, now); err != nil {
		return err
	}
	if err := uow.OrderRepository().UpdateIfStage(ctx, o, current); err != nil {
		return conflictAsTransition(err, current, current, "order moved concurrently")
	}
	if err := uow.Commit(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}

	m.logger.WarnContext(ctx, "stage terminated",
		"order", key.String(), "stage", stage.String(), "status", o.Status().String(), "reason", reason)

	payload := map[string]any{
		"stage":  stage.String(),
		"status": o.Status().String(),
		"at":     now.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	m.publish(ctx, ports.SourceStages, eventType, key, payload, now)
	return nil
}

// checkStageIsFree rejects a start while stage or its predecessor is in progress.
func (m *Machine) checkStageIsFree(ctx context.Context, steps ports.StepRepository, key kernel.OrderKey, stage order.Stage) error {
	inProgress := func(s order.Stage) (bool, error) {
		records, err := steps.ListByStage(ctx, key, s)
		if err != nil {
			return false, err
		}
		for _, r := range records {
			if r.Status() == step.InProgress {
				return true, nil
			}
		}
		return false, nil
	}

	busy, err := inProgress(stage)
	if err != nil {
		return err
	}
	if busy {
		return errs.NewInvalidTransitionError(stage.String(), stage.String(), "stage is already in progress")
	}

	if prev, ok := stage.Previous(); ok && prev.IsWorking() {
		busy, err := inProgress(prev)
		if err != nil {
			return err
		}
		if busy {
			return errs.NewInvalidTransitionError(prev.String(), stage.String(),
				fmt.Sprintf("%s is still in progress", prev))
		}
	}
	return nil
}

func (m *Machine) publish(ctx context.Context, source, eventType string, key kernel.OrderKey, payload map[string]any, at time.Time) {
	event := ports.Event{Source: source, Type: eventType, Key: key, Payload: payload, OccurredAt: at}
	if err := m.notifier.Publish(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish event",
			"order", key.String(), "event", eventType, "error", errs.NewNotifierUnavailableError(err))
	}
}

func conflictAsTransition(err error, from, to order.Stage, reason string) error {
	if errors.Is(err, errs.ErrConcurrentUpdate) {
		return errs.NewInvalidTransitionError(from.String(), to.String(), reason)
	}
	return err
}
