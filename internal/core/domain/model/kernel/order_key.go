package kernel

import (
	"errors"
	"fmt"
	"strings"

	"fulfillment/internal/pkg/errs"
	"fulfillment/internal/pkg/guard"
)

var ErrOrderKeyIsNotConstructed = errors.New("OrderKey must be created via NewOrderKey constructor")

const (
	tenantPrefix = "TENANT#"
	orderPrefix  = "#ORDER#"
)

// OrderKey is the opaque (tenant, order) pair that identifies an order and
// everything recorded against it. Tenants are not interpreted beyond the key.
//
// Example:
//
//	key, err := kernel.NewOrderKey("pardos-lima", "ord-1001")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(key) // TENANT#pardos-lima#ORDER#ord-1001
type OrderKey struct {
	tenantID string
	orderID  string

	guard guard.ConstructorGuard
}

// NewOrderKey validates that both parts are present and free of the key separator.
func NewOrderKey(tenantID, orderID string) (OrderKey, error) {
	key := OrderKey{guard: guard.NewConstructorGuard()}
	if err := errors.Join(
		key.setTenantID(tenantID),
		key.setOrderID(orderID),
	); err != nil {
		return OrderKey{}, err
	}
	return key, nil
}

// ParseOrderKey is the inverse of OrderKey.String.
func ParseOrderKey(s string) (OrderKey, error) {
	rest, ok := strings.CutPrefix(s, tenantPrefix)
	if !ok {
		return OrderKey{}, errs.NewValueIsInvalidErrorWithCause("order key", fmt.Errorf("%q has no tenant prefix", s))
	}
	tenantID, orderID, ok := strings.Cut(rest, orderPrefix)
	if !ok {
		return OrderKey{}, errs.NewValueIsInvalidErrorWithCause("order key", fmt.Errorf("%q has no order part", s))
	}
	return NewOrderKey(tenantID, orderID)
}

func (k OrderKey) Validate() error {
	return k.guard.Validate(ErrOrderKeyIsNotConstructed)
}

func (k OrderKey) TenantID() string {
	return k.tenantID
}

func (k OrderKey) OrderID() string {
	return k.orderID
}

func (k OrderKey) IsEqual(other OrderKey) bool {
	return k.tenantID == other.tenantID && k.orderID == other.orderID
}

// String renders the partition key TENANT#<tenant>#ORDER#<order>.
func (k OrderKey) String() string {
	return tenantPrefix + k.tenantID + orderPrefix + k.orderID
}

func (k *OrderKey) setTenantID(tenantID string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return errs.NewValueIsRequiredError("tenantId")
	}
	if strings.Contains(tenantID, "#") {
		return errs.NewValueIsInvalidErrorWithCause("tenantId", errors.New("must not contain '#'"))
	}
	k.tenantID = tenantID
	return nil
}

func (k *OrderKey) setOrderID(orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errs.NewValueIsRequiredError("orderId")
	}
	if strings.Contains(orderID, "#") {
		return errs.NewValueIsInvalidErrorWithCause("orderId", errors.New("must not contain '#'"))
	}
	k.orderID = orderID
	return nil
}
