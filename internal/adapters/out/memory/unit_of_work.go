package memory

import (
	"context"
	"errors"

	"fulfillment/internal/core/ports"
)

// ErrNoTransaction is returned by Commit and Rollback without a preceding Begin.
var ErrNoTransaction = errors.New("no active transaction")

// UnitOfWorkFactory creates units of work over one Store.
type UnitOfWorkFactory struct {
	store *Store
}

func NewUnitOfWorkFactory(store *Store) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{store: store}
}

func (f *UnitOfWorkFactory) Create() ports.UnitOfWork {
	return &UnitOfWork{store: f.store}
}

// UnitOfWork holds the store exclusively between Begin and Commit/Rollback.
// Repository calls outside a transaction read and write committed state directly.
type UnitOfWork struct {
	store *Store
	tx    *state
}

// Begin waits for exclusive access to the store or for ctx to end.
func (uow *UnitOfWork) Begin(ctx context.Context) error {
	if uow.tx != nil {
		return nil
	}

	select {
	case uow.store.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	uow.tx = uow.store.data.clone()
	return nil
}

func (uow *UnitOfWork) Commit(_ context.Context) error {
	if uow.tx == nil {
		return ErrNoTransaction
	}

	uow.store.data = uow.tx
	uow.tx = nil
	uow.store.unlock()
	return nil
}

func (uow *UnitOfWork) Rollback(_ context.Context) error {
	if uow.tx == nil {
		return ErrNoTransaction
	}

	uow.tx = nil
	uow.store.unlock()
	return nil
}

func (uow *UnitOfWork) OrderRepository() ports.OrderRepository {
	return &orderRepository{uow: uow}
}

func (uow *UnitOfWork) StepRepository() ports.StepRepository {
	return &stepRepository{uow: uow}
}

func (uow *UnitOfWork) TokenRepository() ports.TokenRepository {
	return &tokenRepository{uow: uow}
}

func (uow *UnitOfWork) ReservationRepository() ports.ReservationRepository {
	return &reservationRepository{uow: uow}
}

// with runs fn against the transaction state, or against committed state
// under the store lock when no transaction is active.
func (uow *UnitOfWork) with(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if uow.tx != nil {
		return fn(uow.tx)
	}

	uow.store.lock()
	defer uow.store.unlock()
	return fn(uow.store.data)
}
