// Package reservationrepo stores delivery slot reservations.
package reservationrepo

import (
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/reservation"
)

type ReservationDTO struct {
	TenantID   string    `gorm:"primaryKey;size:64"`
	OrderID    string    `gorm:"primaryKey;size:64"`
	Handle     string    `gorm:"not null"`
	ReservedAt time.Time `gorm:"not null;index"`
}

func (ReservationDTO) TableName() string {
	return "delivery_reservations"
}

func fromDomain(r reservation.Reservation) ReservationDTO {
	return ReservationDTO{
		TenantID:   r.Key().TenantID(),
		OrderID:    r.Key().OrderID(),
		Handle:     r.Handle(),
		ReservedAt: r.ReservedAt(),
	}
}

func toDomain(dto ReservationDTO) (reservation.Reservation, error) {
	key, err := kernel.NewOrderKey(dto.TenantID, dto.OrderID)
	if err != nil {
		return reservation.Reservation{}, err
	}
	return reservation.NewReservation(key, dto.Handle, dto.ReservedAt)
}
