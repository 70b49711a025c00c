package steprepo

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/pkg/errs"

	"gorm.io/gorm"
)

// GormStepRepository implements ports.StepRepository using GORM.
type GormStepRepository struct {
	db *gorm.DB
}

func NewGormStepRepository(db *gorm.DB) *GormStepRepository {
	return &GormStepRepository{db: db}
}

func (r *GormStepRepository) Add(ctx context.Context, record *step.Step) error {
	if err := record.Validate(); err != nil {
		return err
	}

	dto := fromDomain(record)
	if err := r.db.WithContext(ctx).Create(&dto).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s %s already in progress", errs.ErrConcurrentUpdate, record.Key(), record.Stage())
		}
		return err
	}
	return nil
}

func (r *GormStepRepository) ListByStage(ctx context.Context, key kernel.OrderKey, stage order.Stage) ([]*step.Step, error) {
	return r.list(r.forOrder(ctx, key).Where("stage = ?", stage.String()))
}

func (r *GormStepRepository) List(ctx context.Context, key kernel.OrderKey) ([]*step.Step, error) {
	return r.list(r.forOrder(ctx, key))
}

// UpdateIfStatus matches the record by (order, stage, startedAt) and writes
// it only while its stored status equals expected.
func (r *GormStepRepository) UpdateIfStatus(ctx context.Context, record *step.Step, expected step.Status) error {
	if err := record.Validate(); err != nil {
		return err
	}

	dto := fromDomain(record)
	match := r.forOrder(ctx, record.Key()).Model(&StepDTO{}).
		Where("stage = ? AND started_at = ?", dto.Stage, dto.StartedAt)

	result := match.Session(&gorm.Session{}).
		Where("status = ?", expected.String()).
		Updates(map[string]any{
			"status":       dto.Status,
			"finished_at":  dto.FinishedAt,
			"completed_by": dto.CompletedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := match.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errs.NewObjectNotFoundError("step", record.SortKey())
	}
	return fmt.Errorf("%w: %s %s is no longer %s", errs.ErrConcurrentUpdate, record.Key(), record.Stage(), expected)
}

func (r *GormStepRepository) forOrder(ctx context.Context, key kernel.OrderKey) *gorm.DB {
	return r.db.WithContext(ctx).Where("tenant_id = ? AND order_id = ?", key.TenantID(), key.OrderID())
}

func (r *GormStepRepository) list(query *gorm.DB) ([]*step.Step, error) {
	var dtos []StepDTO
	if err := query.Order("started_at, id").Find(&dtos).Error; err != nil {
		return nil, err
	}

	steps := make([]*step.Step, 0, len(dtos))
	for _, dto := range dtos {
		s, err := toDomain(dto)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}
