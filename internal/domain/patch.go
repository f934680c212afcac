package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderPatch — частичная запись заказа из любого источника.
// nil-поле означает, что источник это поле не прислал.
type OrderPatch struct {
	ID           string
	CustomerName *string
	CustomerID   *string
	Total        *decimal.Decimal
	Status       *OrderStatus
	LineItems    []LineItem
	ItemsCount   *int
	Active       *bool
	CreatedAt    *time.Time
	UpdatedAt    *time.Time
}

// Order собирает полную запись из патча; отсутствующие поля остаются нулевыми.
// Используется для страницы списка, которая заменяет коллекцию целиком.
func (p OrderPatch) Order() Order {
	order := Order{ID: p.ID}
	if p.CustomerName != nil {
		order.CustomerName = *p.CustomerName
	}
	if p.CustomerID != nil {
		order.CustomerID = *p.CustomerID
	}
	if p.Total != nil {
		order.Total = *p.Total
	}
	if p.Status != nil {
		order.Status = *p.Status
	}
	if len(p.LineItems) > 0 {
		order.LineItems = append([]LineItem(nil), p.LineItems...)
	}
	switch {
	case p.ItemsCount != nil && *p.ItemsCount > 0:
		order.ItemsCount = *p.ItemsCount
	case len(p.LineItems) > 0:
		order.ItemsCount = CountItems(p.LineItems)
	}
	if p.Active != nil {
		order.Active = *p.Active
	}
	if p.CreatedAt != nil {
		order.CreatedAt = *p.CreatedAt
	}
	if p.UpdatedAt != nil {
		order.UpdatedAt = *p.UpdatedAt
	}
	return order
}

// StatusPatch строит патч, который меняет только статус.
func StatusPatch(id string, status OrderStatus) OrderPatch {
	return OrderPatch{ID: id, Status: &status}
}

// CustomerPatch строит патч, который трогает только имя и ключ клиента.
func CustomerPatch(id string, customer Customer) OrderPatch {
	name := customer.Name
	customerID := customer.ID
	return OrderPatch{ID: id, CustomerName: &name, CustomerID: &customerID}
}
