package commands

import (
	"context"
	"errors"
	"log/slog"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"
)

// CreateOrderCommandHandler stores the order, publishes OrderCreated and
// optionally launches its orchestration.
type CreateOrderCommandHandler struct {
	uowFactory OrderUoWFactory
	notifier   ports.EventNotifier
	launcher   Launcher
	clock      kernel.Clock
	logger     *slog.Logger
}

// NewCreateOrderCommandHandler accepts a nil launcher when orders are driven externally.
func NewCreateOrderCommandHandler(
	uowFactory OrderUoWFactory,
	notifier ports.EventNotifier,
	launcher Launcher,
	clock kernel.Clock,
	logger *slog.Logger,
) CreateOrderCommandHandler {
	return CreateOrderCommandHandler{
		uowFactory: uowFactory,
		notifier:   notifier,
		launcher:   launcher,
		clock:      clock,
		logger:     logger.With("component", "CreateOrderCommandHandler"),
	}
}

// Handle returns errs.ErrInvalidTransition when the key is already taken.
// A failed launch is returned after the order is committed; the order stays
// in CREATED and can be driven through the stage endpoints.
func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	now := h.clock.Now()
	o, err := order.NewOrder(cmd.Key(), cmd.CustomerID(), cmd.Items(), now)
	if err != nil {
		return err
	}

	uow := h.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	if err = uow.OrderRepository().Add(ctx, o); err != nil {
		if errors.Is(err, errs.ErrConcurrentUpdate) {
			return errs.NewInvalidTransitionError("", order.StageCreated.String(), "order already exists")
		}
		return err
	}

	if err = uow.Commit(ctx); err != nil {
		return errs.NewStoreUnavailableError(err)
	}

	h.logger.InfoContext(ctx, "order created", "order", cmd.Key().String(), "total", o.Total())
	event := ports.Event{
		Source: ports.SourceOrders,
		Type:   ports.EventOrderCreated,
		Key:    cmd.Key(),
		Payload: map[string]any{
			"customerId": o.CustomerID(),
			"total":      o.Total(),
			"items":      len(o.Items()),
		},
		OccurredAt: now,
	}
	if pubErr := h.notifier.Publish(ctx, event); pubErr != nil {
		h.logger.WarnContext(ctx, "failed to publish event",
			"type", event.Type, "error", errs.NewNotifierUnavailableError(pubErr))
	}

	if cmd.AutoStart() && h.launcher != nil {
		return h.launcher.Launch(ctx, cmd.Key())
	}
	return nil
}
