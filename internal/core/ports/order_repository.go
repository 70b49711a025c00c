// Package ports defines the contracts between the fulfillment core and its
// infrastructure: repositories and the unit of work, the event notifier, the
// capacity queue and the continuation mechanism that resumes suspended
// orchestrations.
package ports

import (
	"context"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
)

// OrderRepository defines the persistence contract for order aggregates.
type OrderRepository interface {
	// Add persists a new order. Adding an existing key fails.
	Add(ctx context.Context, aggregate *order.Order) error

	// Get retrieves an order by key.
	// Returns an ObjectNotFoundError when no such order exists.
	Get(ctx context.Context, key kernel.OrderKey) (*order.Order, error)

	// UpdateIfStage persists the order only if the stored current stage still
	// equals expected. Returns errs.ErrConcurrentUpdate otherwise.
	//
	// Example:
	//   expected := o.CurrentStage()
	//   if err := o.Advance(order.StageCooking, now); err != nil {
	//       return err
	//   }
	//   if err := repo.UpdateIfStage(ctx, o, expected); errors.Is(err, errs.ErrConcurrentUpdate) {
	//       // another transition won
	//   }
	UpdateIfStage(ctx context.Context, aggregate *order.Order, expected order.Stage) error

	// ListByCustomer returns the tenant's orders placed by customerID, oldest first.
	ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*order.Order, error)
}
