package queries

import (
	"context"

	"fulfillment/internal/core/ports"
)

type ListOrdersByCustomerQueryHandler struct {
	uowFactory ports.UnitOfWorkFactory
}

func NewListOrdersByCustomerQueryHandler(uowFactory ports.UnitOfWorkFactory) ListOrdersByCustomerQueryHandler {
	return ListOrdersByCustomerQueryHandler{uowFactory: uowFactory}
}

// Handle returns an empty list for a customer without orders.
func (h ListOrdersByCustomerQueryHandler) Handle(
	ctx context.Context,
	query ListOrdersByCustomerQuery,
) (ListOrdersByCustomerQueryResponse, error) {
	if err := query.Validate(); err != nil {
		return ListOrdersByCustomerQueryResponse{}, err
	}

	orders, err := h.uowFactory.Create().OrderRepository().ListByCustomer(ctx, query.TenantID(), query.CustomerID())
	if err != nil {
		return ListOrdersByCustomerQueryResponse{}, err
	}

	resp := ListOrdersByCustomerQueryResponse{Orders: make([]OrderSummaryView, 0, len(orders))}
	for _, o := range orders {
		full := toResponse(o, nil, nil)
		resp.Orders = append(resp.Orders, OrderSummaryView{
			TenantID:     full.TenantID,
			OrderID:      full.OrderID,
			CustomerID:   full.CustomerID,
			Items:        full.Items,
			Total:        full.Total,
			CurrentStage: full.CurrentStage,
			Status:       full.Status,
			CreatedAt:    full.CreatedAt,
			UpdatedAt:    full.UpdatedAt,
		})
	}
	return resp, nil
}
