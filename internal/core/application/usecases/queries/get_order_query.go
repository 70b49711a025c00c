package queries

import (
	"errors"
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/pkg/guard"
)

var ErrGetOrderQueryIsNotConstructed = errors.New(
	"GetOrderQuery must be created via NewGetOrderQuery constructor",
)

// GetOrderQuery reads one order together with its stage history and tokens.
//
// Example:
//
//	key, _ := kernel.NewOrderKey("pardos", "ord-1")
//	query, _ := NewGetOrderQuery(key)
//	view, err := handler.Handle(ctx, query)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(view.CurrentStage, len(view.Steps))
type GetOrderQuery struct {
	key   kernel.OrderKey
	guard guard.ConstructorGuard
}

func NewGetOrderQuery(key kernel.OrderKey) (GetOrderQuery, error) {
	if err := key.Validate(); err != nil {
		return GetOrderQuery{}, err
	}
	return GetOrderQuery{key: key, guard: guard.NewConstructorGuard()}, nil
}

func (q GetOrderQuery) Validate() error {
	return q.guard.Validate(ErrGetOrderQueryIsNotConstructed)
}

func (q GetOrderQuery) Key() kernel.OrderKey {
	return q.key
}

// GetOrderQueryResponse is the read model of an order.
type GetOrderQueryResponse struct {
	TenantID     string         `json:"tenantId"`
	OrderID      string         `json:"orderId"`
	CustomerID   string         `json:"customerId"`
	Items        []LineItemView `json:"items"`
	Total        int64          `json:"total"`
	CurrentStage string         `json:"currentStage"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Steps        []StepView     `json:"steps"`
	Tokens       []TokenView    `json:"tokens"`
}

type LineItemView struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type StepView struct {
	Stage           string     `json:"stage"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	DurationSeconds int64      `json:"durationSeconds"`
	AssignedTo      string     `json:"assignedTo,omitempty"`
	CompletedBy     string     `json:"completedBy,omitempty"`
}

type TokenView struct {
	Scope      string     `json:"scope"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}
