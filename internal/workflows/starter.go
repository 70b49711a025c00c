package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/domain/model/kernel"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// WorkflowExecutor is the subset of client.Client used to start workflows.
type WorkflowExecutor interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Starter launches one FulfillmentWorkflow per order.
type Starter struct {
	executor     WorkflowExecutor
	taskQueue    string
	plan         orchestration.Plan
	capacityWait time.Duration
}

func NewStarter(executor WorkflowExecutor, plan orchestration.Plan, capacityWait time.Duration) *Starter {
	return &Starter{executor: executor, taskQueue: TaskQueue, plan: plan, capacityWait: capacityWait}
}

// WithTaskQueue overrides the default task queue. Workers must poll the same queue.
func (s *Starter) WithTaskQueue(queue string) *Starter {
	if queue != "" {
		s.taskQueue = queue
	}
	return s
}

func (s *Starter) Launch(ctx context.Context, key kernel.OrderKey) error {
	opts := client.StartWorkflowOptions{
		ID:                                       WorkflowID(key.TenantID(), key.OrderID()),
		TaskQueue:                                s.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}

	in := Input{TenantID: key.TenantID(), OrderID: key.OrderID(), Plan: s.plan, CapacityWait: s.capacityWait}
	if _, err := s.executor.ExecuteWorkflow(ctx, opts, FulfillmentWorkflow, in); err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return fmt.Errorf("%w: %s", orchestration.ErrAlreadyRunning, key)
		}
		return err
	}
	return nil
}
