package commands

import (
	"errors"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/pkg/errs"
	"fulfillment/internal/pkg/guard"
)

var ErrCreateOrderCommandIsNotConstructed = errors.New(
	"CreateOrderCommand must be created via NewCreateOrderCommand constructor",
)

// CreateOrderCommand registers a new order in stage CREATED.
//
// Example:
//
//	key, _ := kernel.NewOrderKey("pardos", "ord-1")
//	item, _ := order.NewLineItem("pollo-1/4", 2, 2590)
//	cmd, err := NewCreateOrderCommand(key, "cust-7", []order.LineItem{item}, true)
//	if err != nil {
//	    return fmt.Errorf("invalid order data: %w", err)
//	}
//	if err := handler.Handle(ctx, cmd); err != nil {
//	    return fmt.Errorf("failed to create order: %w", err)
//	}
type CreateOrderCommand struct { //nolint:recvcheck //using for validation
	key        kernel.OrderKey
	customerID string
	items      []order.LineItem
	autoStart  bool

	guard guard.ConstructorGuard
}

// NewCreateOrderCommand validates the key and requires at least one item.
// autoStart asks the handler to launch the lifecycle once the order is stored.
func NewCreateOrderCommand(
	key kernel.OrderKey,
	customerID string,
	items []order.LineItem,
	autoStart bool,
) (CreateOrderCommand, error) {
	cmd := CreateOrderCommand{
		customerID: customerID,
		autoStart:  autoStart,
		guard:      guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		cmd.setKey(key),
		cmd.setItems(items),
	); err != nil {
		return CreateOrderCommand{}, err
	}

	return cmd, nil
}

func (c CreateOrderCommand) Validate() error {
	return c.guard.Validate(ErrCreateOrderCommandIsNotConstructed)
}

func (c CreateOrderCommand) Key() kernel.OrderKey {
	return c.key
}

func (c CreateOrderCommand) CustomerID() string {
	return c.customerID
}

func (c CreateOrderCommand) Items() []order.LineItem {
	return c.items
}

func (c CreateOrderCommand) AutoStart() bool {
	return c.autoStart
}

func (c *CreateOrderCommand) setKey(key kernel.OrderKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	c.key = key
	return nil
}

func (c *CreateOrderCommand) setItems(items []order.LineItem) error {
	if len(items) == 0 {
		return errs.NewValueIsRequiredError("items")
	}

	c.items = append([]order.LineItem(nil), items...)
	return nil
}
