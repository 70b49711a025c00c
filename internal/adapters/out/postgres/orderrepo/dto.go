// Package orderrepo maps order aggregates to the orders table.
package orderrepo

import (
	"time"

	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
)

// OrderDTO is one row of the orders table. The (tenant_id, order_id) pair is
// the partition key of every fulfillment table.
type OrderDTO struct {
	TenantID     string        `gorm:"primaryKey;size:64;index:idx_orders_customer,priority:1"`
	OrderID      string        `gorm:"primaryKey;size:64"`
	CustomerID   string        `gorm:"size:64;not null;index:idx_orders_customer,priority:2"`
	Items        []LineItemDTO `gorm:"type:jsonb;serializer:json;not null"`
	CurrentStage string        `gorm:"size:16;not null;index"`
	Status       string        `gorm:"size:16;not null"`
	CreatedAt    time.Time     `gorm:"autoCreateTime:false;not null"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime:false;not null"`
}

func (OrderDTO) TableName() string {
	return "orders"
}

// LineItemDTO is stored inside the items JSON column.
type LineItemDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

func fromDomain(o *order.Order) OrderDTO {
	items := make([]LineItemDTO, 0, len(o.Items()))
	for _, item := range o.Items() {
		items = append(items, LineItemDTO{
			ProductID: item.ProductID(),
			Quantity:  item.Quantity(),
			UnitPrice: item.UnitPrice(),
		})
	}

	return OrderDTO{
		TenantID:     o.Key().TenantID(),
		OrderID:      o.Key().OrderID(),
		CustomerID:   o.CustomerID(),
		Items:        items,
		CurrentStage: o.CurrentStage().String(),
		Status:       o.Status().String(),
		CreatedAt:    o.CreatedAt(),
		UpdatedAt:    o.UpdatedAt(),
	}
}

func toDomain(dto OrderDTO) (*order.Order, error) {
	key, err := kernel.NewOrderKey(dto.TenantID, dto.OrderID)
	if err != nil {
		return nil, err
	}

	items := make([]order.LineItem, 0, len(dto.Items))
	for _, item := range dto.Items {
		li, itemErr := order.NewLineItem(item.ProductID, item.Quantity, item.UnitPrice)
		if itemErr != nil {
			return nil, itemErr
		}
		items = append(items, li)
	}

	stage, err := order.ParseStage(dto.CurrentStage)
	if err != nil {
		return nil, err
	}
	status, err := order.ParseStatus(dto.Status)
	if err != nil {
		return nil, err
	}

	return order.RestoreOrder(key, dto.CustomerID, items, stage, status, dto.CreatedAt, dto.UpdatedAt)
}
