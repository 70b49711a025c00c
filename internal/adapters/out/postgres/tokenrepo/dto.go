// Package tokenrepo maps confirmation and capacity-wait tokens to the tokens table.
package tokenrepo

import (
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/token"
)

// TokenDTO is one row of tokens, keyed by (order, scope).
type TokenDTO struct {
	TenantID   string     `gorm:"primaryKey;size:64"`
	OrderID    string     `gorm:"primaryKey;size:64"`
	Scope      string     `gorm:"primaryKey;size:16"`
	Handle     string     `gorm:"not null"`
	Status     string     `gorm:"size:32;not null;index:idx_tokens_status_expires"`
	CreatedAt  time.Time  `gorm:"autoCreateTime:false;not null"`
	ExpiresAt  time.Time  `gorm:"not null;index:idx_tokens_status_expires"`
	ResolvedBy string     `gorm:"size:64"`
	ResolvedAt *time.Time
	Reason     string
	Delivered  bool `gorm:"not null;default:false"`
}

func (TokenDTO) TableName() string {
	return "tokens"
}

func fromDomain(t *token.Token) TokenDTO {
	return TokenDTO{
		TenantID:   t.Key().TenantID(),
		OrderID:    t.Key().OrderID(),
		Scope:      t.Scope().String(),
		Handle:     t.Handle(),
		Status:     t.Status().String(),
		CreatedAt:  t.CreatedAt(),
		ExpiresAt:  t.ExpiresAt(),
		ResolvedBy: t.ResolvedBy(),
		ResolvedAt: t.ResolvedAt(),
		Reason:     t.Reason(),
		Delivered:  t.Delivered(),
	}
}

func toDomain(dto TokenDTO) (*token.Token, error) {
	key, err := kernel.NewOrderKey(dto.TenantID, dto.OrderID)
	if err != nil {
		return nil, err
	}
	scope, err := token.ParseScope(dto.Scope)
	if err != nil {
		return nil, err
	}
	status, err := token.ParseStatus(dto.Status)
	if err != nil {
		return nil, err
	}

	return token.RestoreToken(key, scope, dto.Handle, status, dto.CreatedAt, dto.ExpiresAt,
		dto.ResolvedBy, dto.ResolvedAt, dto.Reason, dto.Delivered)
}
