// Package orchestration drives one order through its whole lifecycle by
// composing the stage machine, the confirmation waiter and the admission
// controller. Each order runs on its own goroutine and suspends only while
// waiting for a confirmation or a delivery slot.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fulfillment/internal/core/application/admission"
	"fulfillment/internal/core/application/stages"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"
)

// ErrAlreadyRunning is returned by Launch for an order that is already driven.
var ErrAlreadyRunning = errors.New("orchestration already running")

type StageMachine interface {
	StartStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (*step.Step, error)
	CompleteStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (stages.Completion, error)
	AdvanceAutomatic(ctx context.Context, key kernel.OrderKey, stage order.Stage) (*step.Step, error)
	ExpireStage(ctx context.Context, key kernel.OrderKey, stage order.Stage) error
	FailStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, reason string) error
}

type ConfirmationWaiter interface {
	WaitForConfirmation(
		ctx context.Context, key kernel.OrderKey, scope token.Scope, continuationToken string, timeout time.Duration,
	) (*token.Token, error)
}

type AdmissionController interface {
	RequestDeliverySlot(ctx context.Context, key kernel.OrderKey, continuationToken string) (admission.Admission, error)
	ReleaseDeliverySlot(ctx context.Context, key kernel.OrderKey) (admission.Release, error)
}

// Driver is the in-process orchestration driver.
type Driver struct {
	machine   StageMachine
	waiter    ConfirmationWaiter
	admission AdmissionController
	awaiter   ports.ContinuationAwaiter
	plan      Plan
	logger    *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]struct{}
}

func NewDriver(
	machine StageMachine,
	waiter ConfirmationWaiter,
	admissionController AdmissionController,
	awaiter ports.ContinuationAwaiter,
	plan Plan,
	logger *slog.Logger,
) (*Driver, error) {
	if machine == nil {
		return nil, errs.NewValueIsRequiredError("machine")
	}
	if waiter == nil {
		return nil, errs.NewValueIsRequiredError("waiter")
	}
	if admissionController == nil {
		return nil, errs.NewValueIsRequiredError("admission")
	}
	if awaiter == nil {
		return nil, errs.NewValueIsRequiredError("awaiter")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		machine:   machine,
		waiter:    waiter,
		admission: admissionController,
		awaiter:   awaiter,
		plan:      plan,
		logger:    logger.With("component", "OrchestrationDriver"),
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]struct{}),
	}, nil
}

// Launch drives key on its own goroutine. The run outlives the caller's
// request and stops only on Close.
func (d *Driver) Launch(_ context.Context, key kernel.OrderKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	if _, ok := d.running[key.String()]; ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	d.running[key.String()] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.running, key.String())
			d.mu.Unlock()
		}()

		if err := d.Run(d.ctx, key); err != nil {
			d.logger.ErrorContext(d.ctx, "orchestration failed", "order", key.String(), "error", err)
			return
		}
		d.logger.InfoContext(d.ctx, "orchestration finished", "order", key.String())
	}()
	return nil
}

// Wait blocks until every launched run has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Close cancels running orchestrations and waits for them.
func (d *Driver) Close() {
	d.cancel()
	d.wg.Wait()
}

// Run drives key from its current stage to DELIVERED and returns when the
// order is COMPLETED or a stage failed. A TokenExpired or a rejection is
// reported as an error after the order was marked EXPIRED or FAILED.
func (d *Driver) Run(ctx context.Context, key kernel.OrderKey) (err error) {
	holdsSlot := false
	defer func() {
		if err == nil || !holdsSlot {
			return
		}
		if _, releaseErr := d.admission.ReleaseDeliverySlot(context.WithoutCancel(ctx), key); releaseErr != nil {
			d.logger.ErrorContext(ctx, "failed to release delivery slot", "order", key.String(), "error", releaseErr)
		}
	}()

	for _, stage := range []order.Stage{order.StageCooking, order.StagePackaging, order.StageDelivery} {
		if stage == order.StageDelivery {
			if err := d.acquireSlot(ctx, key); err != nil {
				return err
			}
			holdsSlot = true
		}

		if _, err := d.machine.AdvanceAutomatic(ctx, key, stage); err != nil {
			return err
		}

		if d.plan.IsManual(stage) {
			if err := d.awaitConfirmation(ctx, key, stage); err != nil {
				return err
			}
		}
	}

	if _, err := d.machine.CompleteStage(ctx, key, order.StageDelivery, step.SystemActor); err != nil &&
		!errors.Is(err, errs.ErrStageNotFound) {
		return err
	}
	if _, err := d.admission.ReleaseDeliverySlot(ctx, key); err != nil {
		return err
	}
	holdsSlot = false

	_, err = d.machine.StartStage(ctx, key, order.StageDelivered, step.SystemActor)
	return err
}

func (d *Driver) acquireSlot(ctx context.Context, key kernel.OrderKey) error {
	a, err := d.admission.RequestDeliverySlot(ctx, key, kernel.NewUUID().String())
	if err != nil {
		return err
	}
	if a.CanProceed {
		return nil
	}

	d.logger.InfoContext(ctx, "waiting for delivery slot", "order", key.String(), "position", a.QueuePosition)
	outcome, err := d.awaiter.Await(ctx, a.Handle)
	if err != nil {
		return err
	}
	if outcome.Success {
		return nil
	}

	if err := d.machine.ExpireStage(ctx, key, order.StagePackaging); err != nil {
		d.logger.ErrorContext(ctx, "failed to expire order", "order", key.String(), "error", err)
	}
	return errs.NewTokenExpiredError(key.String(), token.CapacityScope.String())
}

func (d *Driver) awaitConfirmation(ctx context.Context, key kernel.OrderKey, stage order.Stage) error {
	t, err := d.waiter.WaitForConfirmation(ctx, key, token.StageScope(stage), kernel.NewUUID().String(), d.plan.TimeoutFor(stage))
	if err != nil {
		return err
	}

	outcome, err := d.awaiter.Await(ctx, t.Handle())
	if err != nil {
		return err
	}

	switch {
	case outcome.Success:
		_, err := d.machine.CompleteStage(ctx, key, stage, outcome.Actor)
		if err != nil && !errors.Is(err, errs.ErrStageNotFound) {
			return err
		}
		return nil
	case outcome.FailureKind == ports.FailureConfirmationRejected:
		if err := d.machine.FailStage(ctx, key, stage, outcome.Cause); err != nil {
			return err
		}
		return errs.NewConfirmationRejectedError(key.String(), stage.String(), outcome.Cause)
	default:
		if err := d.machine.ExpireStage(ctx, key, stage); err != nil {
			return err
		}
		return errs.NewTokenExpiredError(key.String(), stage.String())
	}
}
