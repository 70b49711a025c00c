// Package workflows runs the order lifecycle as a durable Temporal workflow.
// It is the out-of-process counterpart of orchestration.Driver: the same
// stage sequence, with confirmations and capacity waits carried by
// asynchronously completed activities.
package workflows

import (
	"errors"
	"time"

	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/ports"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const TaskQueue = "FULFILLMENT_TASK_QUEUE"

// ConfirmationGrace is added to a confirmation timeout before Temporal gives
// up on the pending activity. The sweep normally resolves it first.
const ConfirmationGrace = 5 * time.Minute

// WorkflowID is the deterministic workflow id of an order.
func WorkflowID(tenantID, orderID string) string {
	return "fulfillment-" + tenantID + "-" + orderID
}

type Input struct {
	TenantID string             `json:"tenantId"`
	OrderID  string             `json:"orderId"`
	Plan     orchestration.Plan `json:"plan"`
	// CapacityWait bounds the pending delivery slot activity.
	CapacityWait time.Duration `json:"capacityWait"`
}

type Result struct {
	FinalStage string `json:"finalStage"`
	Outcome    string `json:"outcome"`
}

const (
	OutcomeDelivered = "DELIVERED"
	OutcomeExpired   = "EXPIRED"
	OutcomeRejected  = "REJECTED"
)

// FulfillmentWorkflow drives an order from CREATED to DELIVERED.
func FulfillmentWorkflow(ctx workflow.Context, in Input) (Result, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("fulfillment started", "tenant", in.TenantID, "order", in.OrderID)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	})

	var a *Activities
	req := func(stage order.Stage) StageRequest {
		return StageRequest{TenantID: in.TenantID, OrderID: in.OrderID, Stage: stage}
	}

	holdingSlot := false
	defer func() {
		if !holdingSlot {
			return
		}
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		if err := workflow.ExecuteActivity(dctx, a.ReleaseDeliverySlot, req(order.StageDelivery)).Get(dctx, nil); err != nil {
			logger.Error("failed to release delivery slot", "order", in.OrderID, "error", err)
		}
	}()

	for _, stage := range []order.Stage{order.StageCooking, order.StagePackaging, order.StageDelivery} {
		if stage == order.StageDelivery {
			outcome, err := awaitSlot(ctx, a, req(stage), in.CapacityWait)
			if err != nil {
				if kind := failureKind(err); kind == ports.FailureTokenExpired {
					expire(ctx, a, req(order.StagePackaging))
					return Result{FinalStage: order.StagePackaging.String(), Outcome: OutcomeExpired}, nil
				}
				return Result{}, err
			}
			holdingSlot = true
			logger.Info("delivery slot granted", "order", in.OrderID, "position", outcome.QueuePosition)
		}

		if err := workflow.ExecuteActivity(ctx, a.AdvanceStage, req(stage)).Get(ctx, nil); err != nil {
			return Result{}, err
		}
		if !in.Plan.IsManual(stage) {
			continue
		}

		outcome, err := awaitConfirmation(ctx, a, ConfirmationRequest{StageRequest: req(stage), Timeout: in.Plan.TimeoutFor(stage)})
		switch failureKind(err) {
		case "":
			if err != nil {
				return Result{}, err
			}
			complete := req(stage)
			complete.Actor = outcome.Actor
			if err := workflow.ExecuteActivity(ctx, a.CompleteStage, complete).Get(ctx, nil); err != nil {
				return Result{}, err
			}
		case ports.FailureConfirmationRejected:
			fail := req(stage)
			fail.Reason = failureMessage(err)
			if err := workflow.ExecuteActivity(ctx, a.FailStage, fail).Get(ctx, nil); err != nil {
				return Result{}, err
			}
			return Result{FinalStage: stage.String(), Outcome: OutcomeRejected}, nil
		default:
			expire(ctx, a, req(stage))
			return Result{FinalStage: stage.String(), Outcome: OutcomeExpired}, nil
		}
	}

	if err := workflow.ExecuteActivity(ctx, a.CompleteStage, req(order.StageDelivery)).Get(ctx, nil); err != nil {
		return Result{}, err
	}
	if err := workflow.ExecuteActivity(ctx, a.ReleaseDeliverySlot, req(order.StageDelivery)).Get(ctx, nil); err != nil {
		return Result{}, err
	}
	holdingSlot = false

	if err := workflow.ExecuteActivity(ctx, a.StartStage, req(order.StageDelivered)).Get(ctx, nil); err != nil {
		return Result{}, err
	}

	logger.Info("fulfillment finished", "order", in.OrderID)
	return Result{FinalStage: order.StageDelivered.String(), Outcome: OutcomeDelivered}, nil
}

// Await activities run once: a retry would register a second token for the
// same wait.
func awaitOptions(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout + ConfirmationGrace,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	})
}

func awaitConfirmation(ctx workflow.Context, a *Activities, req ConfirmationRequest) (ports.Outcome, error) {
	var outcome ports.Outcome
	err := workflow.ExecuteActivity(awaitOptions(ctx, req.Timeout), a.AwaitConfirmation, req).Get(ctx, &outcome)
	return outcome, err
}

func awaitSlot(ctx workflow.Context, a *Activities, req StageRequest, wait time.Duration) (ports.Outcome, error) {
	var outcome ports.Outcome
	err := workflow.ExecuteActivity(awaitOptions(ctx, wait), a.RequestDeliverySlot, req).Get(ctx, &outcome)
	return outcome, err
}

func expire(ctx workflow.Context, a *Activities, req StageRequest) {
	if err := workflow.ExecuteActivity(ctx, a.ExpireStage, req).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("failed to expire stage", "order", req.OrderID, "stage", req.Stage.String(), "error", err)
	}
}

// failureKind returns the application error type of err, TokenExpired for
// an activity timeout and "" for nil or other errors.
func failureKind(err error) string {
	if err == nil {
		return ""
	}
	var appErr *sdktemporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case ports.FailureTokenExpired, ports.FailureConfirmationRejected:
			return appErr.Type()
		}
	}
	var timeoutErr *sdktemporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return ports.FailureTokenExpired
	}
	return ""
}

func failureMessage(err error) string {
	var appErr *sdktemporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
