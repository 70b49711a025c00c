package ports

import (
	"context"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/reservation"
)

// ReservationRepository holds the authoritative set of delivery reservations.
type ReservationRepository interface {
	// LockCapacity serializes admission decisions until the surrounding
	// transaction ends. It must be called inside Begin/Commit.
	LockCapacity(ctx context.Context) error

	// Count returns the number of reservations held.
	Count(ctx context.Context) (int, error)

	// Add stores a reservation. An order holds at most one.
	Add(ctx context.Context, r reservation.Reservation) error

	// Get returns the order's reservation or an ObjectNotFoundError.
	Get(ctx context.Context, key kernel.OrderKey) (reservation.Reservation, error)

	// Delete removes the order's reservation. Deleting a missing reservation is not an error.
	Delete(ctx context.Context, key kernel.OrderKey) error

	// List returns all reservations ordered by reservedAt.
	List(ctx context.Context) ([]reservation.Reservation, error)
}
