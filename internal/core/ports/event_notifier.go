package ports

import (
	"context"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
)

// Event sources.
const (
	SourceStages = "fulfillment.stages"
	SourceOrders = "fulfillment.orders"
)

// Event types.
const (
	EventOrderCreated              = "OrderCreated"
	EventStageStarted              = "StageStarted"
	EventStageCompleted            = "StageCompleted"
	EventStageExpired              = "StageExpired"
	EventStageFailed               = "StageFailed"
	EventOrderDelivered            = "OrderDelivered"
	EventStageConfirmationPending  = "StageConfirmationPending"
	EventStageConfirmed            = "StageConfirmed"
	EventStageConfirmationRejected = "StageConfirmationRejected"
	EventStageConfirmationExpired  = "StageConfirmationExpired"
	EventDeliverySlotReserved      = "DeliverySlotReserved"
	EventDeliveryCapacityWaiting   = "DeliveryCapacityWaiting"
	EventDeliverySlotReleased      = "DeliverySlotReleased"
)

// Event is a domain notification published after a state change committed.
type Event struct {
	Source     string
	Type       string
	Key        kernel.OrderKey
	Payload    map[string]any
	OccurredAt time.Time
}

// EventNotifier publishes events. Publishing is fire-and-forget for callers:
// failures are logged and never undo the change that produced the event.
type EventNotifier interface {
	Publish(ctx context.Context, event Event) error
}
