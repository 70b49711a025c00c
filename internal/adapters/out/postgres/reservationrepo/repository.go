package reservationrepo

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/reservation"
	"fulfillment/internal/pkg/errs"

	"gorm.io/gorm"
)

// capacityLockKey identifies the transaction-scoped advisory lock that
// serializes admission decisions across processes.
const capacityLockKey int64 = 0x0de11e5

// ErrNoTransaction is returned by LockCapacity outside a transaction.
var ErrNoTransaction = errors.New("capacity lock requires an active transaction")

// GormReservationRepository implements ports.ReservationRepository using GORM.
type GormReservationRepository struct {
	db   *gorm.DB
	inTx bool
}

func NewGormReservationRepository(db *gorm.DB, inTx bool) *GormReservationRepository {
	return &GormReservationRepository{db: db, inTx: inTx}
}

// LockCapacity takes pg_advisory_xact_lock, released when the transaction ends.
func (r *GormReservationRepository) LockCapacity(ctx context.Context) error {
	if !r.inTx {
		return ErrNoTransaction
	}
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", capacityLockKey).Error
}

func (r *GormReservationRepository) Count(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ReservationDTO{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormReservationRepository) Add(ctx context.Context, res reservation.Reservation) error {
	if err := res.Validate(); err != nil {
		return err
	}

	dto := fromDomain(res)
	if err := r.db.WithContext(ctx).Create(&dto).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: order %s already holds a delivery slot", errs.ErrConcurrentUpdate, res.Key())
		}
		return err
	}
	return nil
}

func (r *GormReservationRepository) Get(ctx context.Context, key kernel.OrderKey) (reservation.Reservation, error) {
	var dto ReservationDTO
	err := r.byKey(ctx, key).First(&dto).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reservation.Reservation{}, errs.NewObjectNotFoundError("reservation", key.String())
		}
		return reservation.Reservation{}, err
	}
	return toDomain(dto)
}

func (r *GormReservationRepository) Delete(ctx context.Context, key kernel.OrderKey) error {
	return r.byKey(ctx, key).Delete(&ReservationDTO{}).Error
}

func (r *GormReservationRepository) List(ctx context.Context) ([]reservation.Reservation, error) {
	var dtos []ReservationDTO
	if err := r.db.WithContext(ctx).Order("reserved_at, tenant_id, order_id").Find(&dtos).Error; err != nil {
		return nil, err
	}

	reservations := make([]reservation.Reservation, 0, len(dtos))
	for _, dto := range dtos {
		res, err := toDomain(dto)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, nil
}

func (r *GormReservationRepository) byKey(ctx context.Context, key kernel.OrderKey) *gorm.DB {
	return r.db.WithContext(ctx).Where("tenant_id = ? AND order_id = ?", key.TenantID(), key.OrderID())
}
