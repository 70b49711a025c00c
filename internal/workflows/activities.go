package workflows

import (
	"context"
	"errors"
	"time"

	"fulfillment/internal/adapters/out/temporal"
	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"
)

// Activities bind the fulfillment services to Temporal. Await activities
// return activity.ErrResultPending and are completed later through the
// temporal continuations adapter.
type Activities struct {
	Machine   orchestration.StageMachine
	Waiter    orchestration.ConfirmationWaiter
	Admission orchestration.AdmissionController
}

// StageRequest addresses one stage of one order.
type StageRequest struct {
	TenantID string      `json:"tenantId"`
	OrderID  string      `json:"orderId"`
	Stage    order.Stage `json:"stage"`
	Actor    string      `json:"actor,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

func (r StageRequest) key() (kernel.OrderKey, error) {
	return kernel.NewOrderKey(r.TenantID, r.OrderID)
}

// ConfirmationRequest suspends the workflow until a stage is confirmed.
type ConfirmationRequest struct {
	StageRequest
	Timeout time.Duration `json:"timeout"`
}

func (a *Activities) AdvanceStage(ctx context.Context, req StageRequest) error {
	key, err := req.key()
	if err != nil {
		return nonRetryable(err)
	}
	_, err = a.Machine.AdvanceAutomatic(ctx, key, req.Stage)
	return classify(err)
}

func (a *Activities) StartStage(ctx context.Context, req StageRequest) error {
	key, err := req.key()
	if err != nil {
		return nonRetryable(err)
	}
	_, err = a.Machine.StartStage(ctx, key, req.Stage, actorOrSystem(req.Actor))
	return classify(err)
}

// CompleteStage tolerates a stage already completed by an earlier attempt.
func (a *Activities) CompleteStage(ctx context.Context, req StageRequest) error {
	key, err := req.key()
	if err != nil {
		return nonRetryable(err)
	}
	_, err = a.Machine.CompleteStage(ctx, key, req.Stage, actorOrSystem(req.Actor))
	if errors.Is(err, errs.ErrStageNotFound) {
		return nil
	}
	return classify(err)
}

func (a *Activities) ExpireStage(ctx context.Context, req StageRequest) error {
	key, err := req.key()
	if err != nil {
		return nonRetryable(err)
	}
	return classify(a.Machine.ExpireStage(ctx, key, req.Stage))
}

func (a *Activities) FailStage(ctx context.Context, req StageRequest) error {
	key, err := req.key()
	if err != nil {
		return nonRetryable(err)
	}
	return classify(a.Machine.FailStage(ctx, key, req.Stage, req.Reason))
}

// AwaitConfirmation registers a confirmation token bound to this activity's
// task token and leaves the activity pending.
func (a *Activities) AwaitConfirmation(ctx context.Context, req ConfirmationRequest) (ports.Outcome, error) {
	key, err := req.key()
	if err != nil {
		return ports.Outcome{}, nonRetryable(err)
	}

	contToken := temporal.EncodeTaskToken(activity.GetInfo(ctx).TaskToken)
	if _, err := a.Waiter.WaitForConfirmation(ctx, key, token.StageScope(req.Stage), contToken, req.Timeout); err != nil {
		return ports.Outcome{}, classify(err)
	}

	activity.GetLogger(ctx).Info("waiting for confirmation", "order", key.String(), "stage", req.Stage.String())
	return ports.Outcome{}, activity.ErrResultPending
}

// RequestDeliverySlot completes immediately when a slot is free and stays
// pending while the order waits for capacity.
func (a *Activities) RequestDeliverySlot(ctx context.Context, req StageRequest) (ports.Outcome, error) {
	key, err := req.key()
	if err != nil {
		return ports.Outcome{}, nonRetryable(err)
	}

	info := activity.GetInfo(ctx)
	adm, err := a.Admission.RequestDeliverySlot(ctx, key, temporal.EncodeTaskToken(info.TaskToken))
	if err != nil {
		return ports.Outcome{}, classify(err)
	}
	if adm.CanProceed {
		return ports.Outcome{Success: true, Actor: step.SystemActor, At: info.StartedTime, QueuePosition: adm.QueuePosition}, nil
	}

	activity.GetLogger(ctx).Info("waiting for delivery capacity", "order", key.String(), "position", adm.QueuePosition)
	return ports.Outcome{}, activity.ErrResultPending
}

func (a *Activities) ReleaseDeliverySlot(ctx context.Context, req StageRequest) error {
	key, err := req.key()
	if err != nil {
		return nonRetryable(err)
	}
	_, err = a.Admission.ReleaseDeliverySlot(ctx, key)
	return classify(err)
}

// classify leaves infrastructure failures retryable and turns domain
// rejections into non-retryable application errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var unavailable *errs.UnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	return nonRetryable(err)
}

func nonRetryable(err error) error {
	return sdktemporal.NewNonRetryableApplicationError(err.Error(), errorType(err), err)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, errs.ErrTokenExpired):
		return ports.FailureTokenExpired
	case errors.Is(err, errs.ErrConfirmationRejected):
		return ports.FailureConfirmationRejected
	case errors.Is(err, errs.ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, errs.ErrStageNotFound):
		return "StageNotFound"
	case errors.Is(err, errs.ErrObjectNotFound):
		return "NotFound"
	default:
		return "Invalid"
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return step.SystemActor
	}
	return actor
}
