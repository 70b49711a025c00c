// Package queuerepo keeps capacity queue markers in the capacity_queue table.
package queuerepo

import (
	"context"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/pkg/errs"

	"gorm.io/gorm"
)

type MarkerDTO struct {
	Handle     string    `gorm:"primaryKey;size:36"`
	Payload    []byte    `gorm:"type:jsonb;not null"`
	EnqueuedAt time.Time `gorm:"not null;index"`
}

func (MarkerDTO) TableName() string {
	return "capacity_queue"
}

// GormCapacityQueue implements ports.CapacityQueue. It runs outside the
// admission transaction: markers are a projection of the reservations.
type GormCapacityQueue struct {
	db    *gorm.DB
	clock kernel.Clock
}

func NewGormCapacityQueue(db *gorm.DB, clock kernel.Clock) *GormCapacityQueue {
	return &GormCapacityQueue{db: db, clock: clock}
}

func (q *GormCapacityQueue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	dto := MarkerDTO{
		Handle:     kernel.NewUUID().String(),
		Payload:    payload,
		EnqueuedAt: q.clock.Now().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(&dto).Error; err != nil {
		return "", err
	}
	return dto.Handle, nil
}

func (q *GormCapacityQueue) Dequeue(ctx context.Context, handle string) error {
	result := q.db.WithContext(ctx).Where("handle = ?", handle).Delete(&MarkerDTO{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.NewObjectNotFoundError("queue marker", handle)
	}
	return nil
}

func (q *GormCapacityQueue) ApproximateDepth(ctx context.Context) (int, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&MarkerDTO{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
