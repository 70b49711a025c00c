package queries

import (
	"errors"
	"strings"
	"time"

	"fulfillment/internal/pkg/errs"
	"fulfillment/internal/pkg/guard"
)

var ErrListOrdersByCustomerQueryIsNotConstructed = errors.New(
	"ListOrdersByCustomerQuery must be created via NewListOrdersByCustomerQuery constructor",
)

// ListOrdersByCustomerQuery reads every order one customer placed with a tenant.
type ListOrdersByCustomerQuery struct {
	tenantID   string
	customerID string
	guard      guard.ConstructorGuard
}

func NewListOrdersByCustomerQuery(tenantID, customerID string) (ListOrdersByCustomerQuery, error) {
	tenantID = strings.TrimSpace(tenantID)
	customerID = strings.TrimSpace(customerID)

	var problems []error
	if tenantID == "" {
		problems = append(problems, errs.NewValueIsRequiredError("tenantId"))
	}
	if customerID == "" {
		problems = append(problems, errs.NewValueIsRequiredError("customerId"))
	}
	if err := errors.Join(problems...); err != nil {
		return ListOrdersByCustomerQuery{}, err
	}

	return ListOrdersByCustomerQuery{
		tenantID:   tenantID,
		customerID: customerID,
		guard:      guard.NewConstructorGuard(),
	}, nil
}

func (q ListOrdersByCustomerQuery) Validate() error {
	return q.guard.Validate(ErrListOrdersByCustomerQueryIsNotConstructed)
}

func (q ListOrdersByCustomerQuery) TenantID() string {
	return q.tenantID
}

func (q ListOrdersByCustomerQuery) CustomerID() string {
	return q.customerID
}

type ListOrdersByCustomerQueryResponse struct {
	Orders []OrderSummaryView `json:"orders"`
}

// OrderSummaryView is an order without its steps and tokens.
type OrderSummaryView struct {
	TenantID     string         `json:"tenantId"`
	OrderID      string         `json:"orderId"`
	CustomerID   string         `json:"customerId"`
	Items        []LineItemView `json:"items"`
	Total        int64          `json:"total"`
	CurrentStage string         `json:"currentStage"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
