package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/pkg/errs"
)

var (
	// ErrOrderIsNotConstructed is returned when an Order instance was not created through
	// NewOrder or RestoreOrder.
	ErrOrderIsNotConstructed = errors.New("Order must be created via NewOrder constructor")
)

// Order is the aggregate root of a food order moving through the fulfillment lifecycle.
//
// Order follows these invariants:
//   - Identified by a valid OrderKey
//   - Has at least one line item; total is the sum of line subtotals
//   - currentStage only advances to its immediate successor
//   - Reaching DELIVERED completes the order
//   - Once Completed, Expired or Failed nothing changes
//
// Orders are never deleted by the orchestrator.
type Order struct {
	key        kernel.OrderKey
	customerID string
	items      []LineItem
	total      int64

	currentStage Stage
	status       Status

	createdAt time.Time
	updatedAt time.Time

	isConstructed bool
}

// NewOrder creates an order in stage CREATED with status CREATED.
//
// Example:
//
//	key, _ := kernel.NewOrderKey("pardos", "ord-1")
//	item, _ := order.NewLineItem("pollo-1/4", 2, 2590)
//	o, err := order.NewOrder(key, "cust-7", []order.LineItem{item}, clock.Now())
//	if err != nil {
//	    return err
//	}
//	fmt.Println(o.Total()) // 5180
func NewOrder(key kernel.OrderKey, customerID string, items []LineItem, createdAt time.Time) (*Order, error) {
	o := &Order{
		currentStage:  StageCreated,
		status:        Created,
		createdAt:     createdAt.UTC(),
		updatedAt:     createdAt.UTC(),
		isConstructed: true,
	}

	if err := errors.Join(
		o.setKey(key),
		o.setCustomerID(customerID),
		o.setItems(items),
	); err != nil {
		return nil, err
	}

	return o, nil
}

// RestoreOrder rebuilds an order from persistence, validating stage and status.
func RestoreOrder(
	key kernel.OrderKey,
	customerID string,
	items []LineItem,
	currentStage Stage,
	status Status,
	createdAt, updatedAt time.Time,
) (*Order, error) {
	o := &Order{
		createdAt:     createdAt.UTC(),
		updatedAt:     updatedAt.UTC(),
		isConstructed: true,
	}

	if err := errors.Join(
		o.setKey(key),
		o.setCustomerID(customerID),
		o.setItems(items),
		currentStage.Validate(),
		status.Validate(),
	); err != nil {
		return nil, err
	}

	o.currentStage = currentStage
	o.status = status
	return o, nil
}

// Validate ensures the Order was built by NewOrder or RestoreOrder.
func (o *Order) Validate() error {
	if o == nil || !o.isConstructed {
		return ErrOrderIsNotConstructed
	}
	return nil
}

func (o *Order) Key() kernel.OrderKey {
	return o.key
}

func (o *Order) CustomerID() string {
	return o.customerID
}

// Items returns a copy of the line items.
func (o *Order) Items() []LineItem {
	items := make([]LineItem, len(o.items))
	copy(items, o.items)
	return items
}

// Total is the order total in minor currency units.
func (o *Order) Total() int64 {
	return o.total
}

func (o *Order) CurrentStage() Stage {
	return o.currentStage
}

func (o *Order) Status() Status {
	return o.status
}

func (o *Order) CreatedAt() time.Time {
	return o.createdAt
}

func (o *Order) UpdatedAt() time.Time {
	return o.updatedAt
}

// Advance moves the order into stage, which must be the immediate successor
// of the current stage.
//
// Entering a working stage sets InProgress; entering DELIVERED sets Completed.
// Terminal orders reject every move with an InvalidTransitionError.
func (o *Order) Advance(stage Stage, now time.Time) error {
	if o.status.IsTerminal() {
		return errs.NewInvalidTransitionError(
			o.currentStage.String(), stage.String(), fmt.Sprintf("order is %s", o.status),
		)
	}

	if err := o.currentStage.ValidateSuccessor(stage); err != nil {
		return err
	}

	var (
		next Status
		err  error
	)
	if stage == StageDelivered {
		next, err = o.status.Complete()
	} else {
		next, err = o.status.Start()
	}
	if err != nil {
		return err
	}

	o.currentStage = stage
	o.status = next
	o.updatedAt = now.UTC()
	return nil
}

// Expire marks the order Expired at its current stage.
func (o *Order) Expire(now time.Time) error {
	next, err := o.status.Expire()
	if err != nil {
		return err
	}
	o.status = next
	o.updatedAt = now.UTC()
	return nil
}

// Fail marks the order Failed at its current stage.
func (o *Order) Fail(now time.Time) error {
	next, err := o.status.Fail()
	if err != nil {
		return err
	}
	o.status = next
	o.updatedAt = now.UTC()
	return nil
}

func (o *Order) setKey(key kernel.OrderKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	o.key = key
	return nil
}

func (o *Order) setCustomerID(customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errs.NewValueIsRequiredError("customerId")
	}
	o.customerID = customerID
	return nil
}

func (o *Order) setItems(items []LineItem) error {
	if len(items) == 0 {
		return errs.NewValueIsRequiredError("items")
	}

	var total int64
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return errs.NewValueIsInvalidErrorWithCause(fmt.Sprintf("items[%d]", i), err)
		}
		total += item.Subtotal()
	}

	o.items = make([]LineItem, len(items))
	copy(o.items, items)
	o.total = total
	return nil
}
