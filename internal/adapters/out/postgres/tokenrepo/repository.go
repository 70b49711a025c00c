package tokenrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/pkg/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTokenRepository implements ports.TokenRepository using GORM.
type GormTokenRepository struct {
	db *gorm.DB
}

func NewGormTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{db: db}
}

func (r *GormTokenRepository) Get(ctx context.Context, key kernel.OrderKey, scope token.Scope) (*token.Token, error) {
	var dto TokenDTO
	err := r.byID(ctx, key, scope).First(&dto).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewObjectNotFoundError("token", id(key, scope))
		}
		return nil, err
	}
	return toDomain(dto)
}

// Put upserts the token. The conflict branch only fires while the stored
// token is terminal, so a pending token is never overwritten.
func (r *GormTokenRepository) Put(ctx context.Context, t *token.Token) error {
	if err := t.Validate(); err != nil {
		return err
	}

	dto := fromDomain(t)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "order_id"}, {Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"handle", "status", "created_at", "expires_at", "resolved_by", "resolved_at", "reason", "delivered",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "tokens.status <> ?", Vars: []any{token.Pending.String()}},
		}},
	}).Create(&dto)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: token %s is still pending", errs.ErrConcurrentUpdate, id(t.Key(), t.Scope()))
	}
	return nil
}

// UpdateIfStatus writes the token while the stored row still has the expected
// status and the same handle.
func (r *GormTokenRepository) UpdateIfStatus(ctx context.Context, t *token.Token, expected token.Status) error {
	if err := t.Validate(); err != nil {
		return err
	}

	dto := fromDomain(t)
	result := r.byID(ctx, t.Key(), t.Scope()).Model(&TokenDTO{}).
		Where("status = ? AND handle = ?", expected.String(), dto.Handle).
		Updates(map[string]any{
			"status":      dto.Status,
			"resolved_by": dto.ResolvedBy,
			"resolved_at": dto.ResolvedAt,
			"reason":      dto.Reason,
			"delivered":   dto.Delivered,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, t.Key(), t.Scope()); err != nil {
		return err
	}
	return fmt.Errorf("%w: token %s is no longer %s", errs.ErrConcurrentUpdate, id(t.Key(), t.Scope()), expected)
}

func (r *GormTokenRepository) Delete(ctx context.Context, key kernel.OrderKey, scope token.Scope) error {
	return r.byID(ctx, key, scope).Delete(&TokenDTO{}).Error
}

func (r *GormTokenRepository) ListOverdue(ctx context.Context, now time.Time) ([]*token.Token, error) {
	return r.list(r.db.WithContext(ctx).Where("status = ? AND expires_at < ?", token.Pending.String(), now))
}

func (r *GormTokenRepository) ListPending(ctx context.Context, scope token.Scope) ([]*token.Token, error) {
	return r.list(r.db.WithContext(ctx).Where("status = ? AND scope = ?", token.Pending.String(), scope.String()))
}

func (r *GormTokenRepository) ListUndelivered(ctx context.Context) ([]*token.Token, error) {
	return r.list(r.db.WithContext(ctx).Where("status <> ? AND NOT delivered", token.Pending.String()))
}

func (r *GormTokenRepository) ListByOrder(ctx context.Context, key kernel.OrderKey) ([]*token.Token, error) {
	return r.list(r.db.WithContext(ctx).Where("tenant_id = ? AND order_id = ?", key.TenantID(), key.OrderID()))
}

func (r *GormTokenRepository) byID(ctx context.Context, key kernel.OrderKey, scope token.Scope) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ? AND scope = ?", key.TenantID(), key.OrderID(), scope.String())
}

func (r *GormTokenRepository) list(query *gorm.DB) ([]*token.Token, error) {
	var dtos []TokenDTO
	if err := query.Order("created_at, tenant_id, order_id, scope").Find(&dtos).Error; err != nil {
		return nil, err
	}

	tokens := make([]*token.Token, 0, len(dtos))
	for _, dto := range dtos {
		t, err := toDomain(dto)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func id(key kernel.OrderKey, scope token.Scope) string {
	return key.String() + "#" + scope.String()
}
