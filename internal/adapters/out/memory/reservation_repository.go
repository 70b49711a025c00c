package memory

import (
	"context"
	"fmt"
	"slices"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/reservation"
	"fulfillment/internal/pkg/errs"
)

type reservationRepository struct {
	uow *UnitOfWork
}

// LockCapacity is satisfied by the exclusive store access every transaction holds.
func (r *reservationRepository) LockCapacity(_ context.Context) error {
	if r.uow.tx == nil {
		return ErrNoTransaction
	}
	return nil
}

func (r *reservationRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.uow.with(ctx, func(st *state) error {
		n = len(st.reservations)
		return nil
	})
	return n, err
}

func (r *reservationRepository) Add(ctx context.Context, res reservation.Reservation) error {
	if err := res.Validate(); err != nil {
		return err
	}

	return r.uow.with(ctx, func(st *state) error {
		id := res.Key().String()
		if _, exists := st.reservations[id]; exists {
			return fmt.Errorf("%w: %s already holds a delivery slot", errs.ErrConcurrentUpdate, id)
		}
		st.reservations[id] = res
		return nil
	})
}

func (r *reservationRepository) Get(ctx context.Context, key kernel.OrderKey) (reservation.Reservation, error) {
	var found reservation.Reservation
	err := r.uow.with(ctx, func(st *state) error {
		res, ok := st.reservations[key.String()]
		if !ok {
			return errs.NewObjectNotFoundError("reservation", key.String())
		}
		found = res
		return nil
	})
	return found, err
}

func (r *reservationRepository) Delete(ctx context.Context, key kernel.OrderKey) error {
	return r.uow.with(ctx, func(st *state) error {
		delete(st.reservations, key.String())
		return nil
	})
}

func (r *reservationRepository) List(ctx context.Context) ([]reservation.Reservation, error) {
	var all []reservation.Reservation
	err := r.uow.with(ctx, func(st *state) error {
		for _, res := range st.reservations {
			all = append(all, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(all, func(a, b reservation.Reservation) int {
		return a.ReservedAt().Compare(b.ReservedAt())
	})
	return all, nil
}
