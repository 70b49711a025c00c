// Package commands contains business operations that modify system state.
// Every command follows the same pattern: validation, transaction management,
// persistence, then side effects (events, orchestration launch) after commit.
package commands

import (
	"context"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/ports"
)

type (
	// TxManager handles database transaction lifecycle.
	TxManager interface {
		Begin(ctx context.Context) error
		Commit(ctx context.Context) error
		Rollback(ctx context.Context) error
	}

	// OrderRepoFactory provides access to the order repository within a transaction.
	OrderRepoFactory interface {
		OrderRepository() ports.OrderRepository
	}

	// OrderUoW manages transactions for order-only operations.
	OrderUoW interface {
		TxManager
		OrderRepoFactory
	}

	// OrderUoWFactory creates new order unit of work instances.
	OrderUoWFactory interface {
		Create() OrderUoW
	}

	// Launcher starts the lifecycle orchestration of an order, in process or
	// as a durable workflow.
	Launcher interface {
		Launch(ctx context.Context, key kernel.OrderKey) error
	}
)

// OrderUoWFactoryFunc adapts a function to OrderUoWFactory, typically a
// closure over a full ports.UnitOfWorkFactory.
type OrderUoWFactoryFunc func() OrderUoW

func (f OrderUoWFactoryFunc) Create() OrderUoW {
	return f()
}
