package order

import (
	"errors"
	"fmt"
	"strings"

	"fulfillment/internal/pkg/errs"
	"fulfillment/internal/pkg/guard"
)

var ErrLineItemIsNotConstructed = errors.New("LineItem must be created via NewLineItem constructor")

// LineItem is one product line of an order. Prices are in minor currency units.
type LineItem struct {
	productID string
	quantity  int
	unitPrice int64

	guard guard.ConstructorGuard
}

// NewLineItem requires a product id, a positive quantity and a non-negative price.
func NewLineItem(productID string, quantity int, unitPrice int64) (LineItem, error) {
	productID = strings.TrimSpace(productID)

	var problems []error
	if productID == "" {
		problems = append(problems, errs.NewValueIsRequiredError("productId"))
	}
	if quantity <= 0 {
		problems = append(problems, errs.NewValueIsInvalidErrorWithCause(
			"quantity", fmt.Errorf("%d is not greater than 0", quantity)))
	}
	if unitPrice < 0 {
		problems = append(problems, errs.NewValueIsInvalidErrorWithCause(
			"price", fmt.Errorf("%d is negative", unitPrice)))
	}
	if err := errors.Join(problems...); err != nil {
		return LineItem{}, err
	}

	return LineItem{
		productID: productID,
		quantity:  quantity,
		unitPrice: unitPrice,
		guard:     guard.NewConstructorGuard(),
	}, nil
}

func (l LineItem) Validate() error {
	return l.guard.Validate(ErrLineItemIsNotConstructed)
}

func (l LineItem) ProductID() string {
	return l.productID
}

func (l LineItem) Quantity() int {
	return l.quantity
}

func (l LineItem) UnitPrice() int64 {
	return l.unitPrice
}

// Subtotal is quantity times unit price.
func (l LineItem) Subtotal() int64 {
	return int64(l.quantity) * l.unitPrice
}
