package ports

import (
	"context"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
)

// StepRepository stores stage step records. Records are never deleted.
type StepRepository interface {
	// Add inserts a new record. Inserting a second IN_PROGRESS record for the
	// same (order, stage) fails with errs.ErrConcurrentUpdate.
	Add(ctx context.Context, record *step.Step) error

	// ListByStage returns the records of one stage ordered by startedAt, then insertion.
	ListByStage(ctx context.Context, key kernel.OrderKey, stage order.Stage) ([]*step.Step, error)

	// List returns all records of an order ordered by startedAt, then insertion.
	List(ctx context.Context, key kernel.OrderKey) ([]*step.Step, error)

	// UpdateIfStatus persists the record only if the stored status still equals
	// expected. Returns errs.ErrConcurrentUpdate otherwise.
	UpdateIfStatus(ctx context.Context, record *step.Step, expected step.Status) error
}
