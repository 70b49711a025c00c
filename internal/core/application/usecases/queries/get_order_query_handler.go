// Package queries contains read-only operations that build views for the HTTP API.
package queries

import (
	"context"

	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/core/ports"
)

// GetOrderQueryHandler reads through the repositories of a unit of work
// without opening a transaction, so it works with every storage backend.
type GetOrderQueryHandler struct {
	uowFactory ports.UnitOfWorkFactory
}

func NewGetOrderQueryHandler(uowFactory ports.UnitOfWorkFactory) GetOrderQueryHandler {
	return GetOrderQueryHandler{uowFactory: uowFactory}
}

// Handle returns an ObjectNotFoundError for an unknown order.
func (h GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (GetOrderQueryResponse, error) {
	if err := query.Validate(); err != nil {
		return GetOrderQueryResponse{}, err
	}

	uow := h.uowFactory.Create()
	o, err := uow.OrderRepository().Get(ctx, query.Key())
	if err != nil {
		return GetOrderQueryResponse{}, err
	}
	steps, err := uow.StepRepository().List(ctx, query.Key())
	if err != nil {
		return GetOrderQueryResponse{}, err
	}
	tokens, err := uow.TokenRepository().ListByOrder(ctx, query.Key())
	if err != nil {
		return GetOrderQueryResponse{}, err
	}

	return toResponse(o, steps, tokens), nil
}

func toResponse(o *order.Order, steps []*step.Step, tokens []*token.Token) GetOrderQueryResponse {
	resp := GetOrderQueryResponse{
		TenantID:     o.Key().TenantID(),
		OrderID:      o.Key().OrderID(),
		CustomerID:   o.CustomerID(),
		Items:        make([]LineItemView, 0, len(o.Items())),
		Total:        o.Total(),
		CurrentStage: o.CurrentStage().String(),
		Status:       o.Status().String(),
		CreatedAt:    o.CreatedAt(),
		UpdatedAt:    o.UpdatedAt(),
		Steps:        make([]StepView, 0, len(steps)),
		Tokens:       make([]TokenView, 0, len(tokens)),
	}

	for _, item := range o.Items() {
		resp.Items = append(resp.Items, LineItemView{
			ProductID: item.ProductID(),
			Quantity:  item.Quantity(),
			UnitPrice: item.UnitPrice(),
		})
	}
	for _, s := range steps {
		resp.Steps = append(resp.Steps, StepView{
			Stage:           s.Stage().String(),
			Status:          s.Status().String(),
			StartedAt:       s.StartedAt(),
			FinishedAt:      s.FinishedAt(),
			DurationSeconds: s.DurationSeconds(),
			AssignedTo:      s.AssignedTo(),
			CompletedBy:     s.CompletedBy(),
		})
	}
	for _, t := range tokens {
		resp.Tokens = append(resp.Tokens, TokenView{
			Scope:      t.Scope().String(),
			Status:     t.Status().String(),
			CreatedAt:  t.CreatedAt(),
			ExpiresAt:  t.ExpiresAt(),
			ResolvedBy: t.ResolvedBy(),
			ResolvedAt: t.ResolvedAt(),
			Reason:     t.Reason(),
		})
	}
	return resp
}
