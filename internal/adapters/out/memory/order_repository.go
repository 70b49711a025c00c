package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"
)

type orderRepository struct {
	uow *UnitOfWork
}

func (r *orderRepository) Add(ctx context.Context, aggregate *order.Order) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	return r.uow.with(ctx, func(st *state) error {
		id := aggregate.Key().String()
		if _, exists := st.orders[id]; exists {
			return fmt.Errorf("%w: order %s already exists", errs.ErrConcurrentUpdate, id)
		}
		st.orders[id] = orderFromDomain(aggregate)
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, key kernel.OrderKey) (*order.Order, error) {
	var found *order.Order
	err := r.uow.with(ctx, func(st *state) error {
		rec, ok := st.orders[key.String()]
		if !ok {
			return errs.NewObjectNotFoundError("order", key.String())
		}

		o, err := rec.toDomain()
		found = o
		return err
	})
	return found, err
}

func (r *orderRepository) UpdateIfStage(ctx context.Context, aggregate *order.Order, expected order.Stage) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	return r.uow.with(ctx, func(st *state) error {
		id := aggregate.Key().String()
		rec, ok := st.orders[id]
		if !ok {
			return errs.NewObjectNotFoundError("order", id)
		}
		if rec.stage != expected {
			return fmt.Errorf("%w: order %s is at %s, expected %s", errs.ErrConcurrentUpdate, id, rec.stage, expected)
		}
		st.orders[id] = orderFromDomain(aggregate)
		return nil
	})
}

func (r *orderRepository) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*order.Order, error) {
	var orders []*order.Order
	err := r.uow.with(ctx, func(st *state) error {
		for _, rec := range st.orders {
			if rec.key.TenantID() != tenantID || rec.customerID != customerID {
				continue
			}
			o, err := rec.toDomain()
			if err != nil {
				return err
			}
			orders = append(orders, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(orders, func(a, b *order.Order) int {
		if c := a.CreatedAt().Compare(b.CreatedAt()); c != 0 {
			return c
		}
		return cmp.Compare(a.Key().OrderID(), b.Key().OrderID())
	})
	return orders, nil
}
