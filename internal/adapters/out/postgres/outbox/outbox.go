// Package outbox persists published events so a relay can forward them to
// downstream notifiers with at-least-once delivery.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/ports"

	"gorm.io/gorm"
)

type EventDTO struct {
	ID          string         `gorm:"primaryKey;size:36"`
	Source      string         `gorm:"size:64;not null"`
	Type        string         `gorm:"size:64;not null"`
	TenantID    string         `gorm:"size:64;not null"`
	OrderID     string         `gorm:"size:64;not null"`
	Payload     map[string]any `gorm:"type:jsonb;serializer:json"`
	OccurredAt  time.Time      `gorm:"not null;index:idx_outbox_pending,where:published_at IS NULL"`
	PublishedAt *time.Time
	Attempts    int `gorm:"not null;default:0"`
}

func (EventDTO) TableName() string {
	return "outbox_events"
}

// Outbox implements ports.EventNotifier by inserting into outbox_events.
type Outbox struct {
	db     *gorm.DB
	clock  kernel.Clock
	logger *slog.Logger
}

func New(db *gorm.DB, clock kernel.Clock, logger *slog.Logger) *Outbox {
	return &Outbox{db: db, clock: clock, logger: logger.With("component", "Outbox")}
}

func (o *Outbox) Publish(ctx context.Context, event ports.Event) error {
	dto := EventDTO{
		ID:         kernel.NewUUID().String(),
		Source:     event.Source,
		Type:       event.Type,
		TenantID:   event.Key.TenantID(),
		OrderID:    event.Key.OrderID(),
		Payload:    event.Payload,
		OccurredAt: event.OccurredAt.UTC(),
	}
	return o.db.WithContext(ctx).Create(&dto).Error
}

// Relay forwards up to batch unpublished events to next in occurrence order
// and marks them published. It stops at the first failure so ordering holds.
func (o *Outbox) Relay(ctx context.Context, next ports.EventNotifier, batch int) (int, error) {
	var dtos []EventDTO
	err := o.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("occurred_at, id").
		Limit(batch).
		Find(&dtos).Error
	if err != nil {
		return 0, err
	}

	relayed := 0
	for _, dto := range dtos {
		event, convErr := toEvent(dto)
		if convErr != nil {
			o.logger.ErrorContext(ctx, "dropping malformed outbox event", "id", dto.ID, "error", convErr)
			_ = o.markPublished(ctx, dto.ID)
			continue
		}

		if pubErr := next.Publish(ctx, event); pubErr != nil {
			o.db.WithContext(ctx).Model(&EventDTO{}).Where("id = ?", dto.ID).
				UpdateColumn("attempts", gorm.Expr("attempts + 1"))
			return relayed, pubErr
		}
		if markErr := o.markPublished(ctx, dto.ID); markErr != nil {
			return relayed, markErr
		}
		relayed++
	}
	return relayed, nil
}

// Prune deletes events published before cutoff.
func (o *Outbox) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result := o.db.WithContext(ctx).Where("published_at < ?", cutoff).Delete(&EventDTO{})
	return result.RowsAffected, result.Error
}

func (o *Outbox) markPublished(ctx context.Context, id string) error {
	now := o.clock.Now().UTC()
	return o.db.WithContext(ctx).Model(&EventDTO{}).Where("id = ?", id).Update("published_at", now).Error
}

func toEvent(dto EventDTO) (ports.Event, error) {
	key, err := kernel.NewOrderKey(dto.TenantID, dto.OrderID)
	if err != nil {
		return ports.Event{}, err
	}
	if dto.Type == "" {
		return ports.Event{}, errors.New("event type is empty")
	}
	return ports.Event{
		Source:     dto.Source,
		Type:       dto.Type,
		Key:        key,
		Payload:    dto.Payload,
		OccurredAt: dto.OccurredAt,
	}, nil
}
