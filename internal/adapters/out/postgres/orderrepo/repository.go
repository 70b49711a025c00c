package orderrepo

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"

	"gorm.io/gorm"
)

// GormOrderRepository implements ports.OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Add inserts a new order. The db must be opened with TranslateError so a
// duplicate key surfaces as gorm.ErrDuplicatedKey.
func (r *GormOrderRepository) Add(ctx context.Context, aggregate *order.Order) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	dto := fromDomain(aggregate)
	if err := r.db.WithContext(ctx).Create(&dto).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: order %s already exists", errs.ErrConcurrentUpdate, aggregate.Key())
		}
		return err
	}
	return nil
}

func (r *GormOrderRepository) Get(ctx context.Context, key kernel.OrderKey) (*order.Order, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var dto OrderDTO
	err := r.db.WithContext(ctx).
		First(&dto, "tenant_id = ? AND order_id = ?", key.TenantID(), key.OrderID()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewObjectNotFoundError("order", key.String())
		}
		return nil, err
	}

	return toDomain(dto)
}

// UpdateIfStage writes the order only while the stored stage equals expected.
func (r *GormOrderRepository) UpdateIfStage(ctx context.Context, aggregate *order.Order, expected order.Stage) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	dto := fromDomain(aggregate)
	result := r.db.WithContext(ctx).Model(&OrderDTO{}).
		Where("tenant_id = ? AND order_id = ? AND current_stage = ?", dto.TenantID, dto.OrderID, expected.String()).
		Updates(map[string]any{
			"current_stage": dto.CurrentStage,
			"status":        dto.Status,
			"updated_at":    dto.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, aggregate.Key()); err != nil {
		return err
	}
	return fmt.Errorf("%w: order %s left stage %s", errs.ErrConcurrentUpdate, aggregate.Key(), expected)
}

func (r *GormOrderRepository) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*order.Order, error) {
	var dtos []OrderDTO
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Order("created_at, order_id").
		Find(&dtos).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*order.Order, 0, len(dtos))
	for _, dto := range dtos {
		o, err := toDomain(dto)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
