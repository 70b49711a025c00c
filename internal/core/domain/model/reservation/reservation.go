// Package reservation models delivery capacity reservations: one per order
// currently holding a DELIVERY slot.
package reservation

import (
	"errors"
	"strings"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/pkg/errs"
	"fulfillment/internal/pkg/guard"
)

var ErrReservationIsNotConstructed = errors.New("Reservation must be created via NewReservation constructor")

// Reservation is an order's claim on one delivery slot. Handle identifies the
// reservation marker on the capacity queue so release can remove it directly.
type Reservation struct {
	key        kernel.OrderKey
	handle     string
	reservedAt time.Time

	guard guard.ConstructorGuard
}

func NewReservation(key kernel.OrderKey, handle string, reservedAt time.Time) (Reservation, error) {
	var handleErr error
	if strings.TrimSpace(handle) == "" {
		handleErr = errs.NewValueIsRequiredError("queue handle")
	}
	if err := errors.Join(key.Validate(), handleErr); err != nil {
		return Reservation{}, err
	}

	return Reservation{
		key:        key,
		handle:     handle,
		reservedAt: reservedAt.UTC(),
		guard:      guard.NewConstructorGuard(),
	}, nil
}

func (r Reservation) Validate() error {
	return r.guard.Validate(ErrReservationIsNotConstructed)
}

func (r Reservation) Key() kernel.OrderKey {
	return r.key
}

func (r Reservation) Handle() string {
	return r.handle
}

func (r Reservation) ReservedAt() time.Time {
	return r.reservedAt
}

// IsStale reports whether the reservation is older than maxAge at now.
func (r Reservation) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.reservedAt) > maxAge
}
