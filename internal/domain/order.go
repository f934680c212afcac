package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает видимый пользователю статус заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ждёт обработки.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing — заказ собирается.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusDelivered — заказ получен клиентом.
	OrderStatusDelivered OrderStatus = "Delivered"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	raw = strings.TrimSpace(raw)
	for _, status := range orderStatuses {
		if strings.EqualFold(raw, string(status)) {
			return status, true
		}
	}
	return "", false
}

// OrderStatusFromIndex переводит числовой код бэкенда (0..3) в статус.
func OrderStatusFromIndex(idx int) (OrderStatus, bool) {
	if idx < 0 || idx >= len(orderStatuses) {
		return "", false
	}
	return orderStatuses[idx], true
}

// Valid сообщает, является ли статус одним из известных.
func (s OrderStatus) Valid() bool {
	for _, status := range orderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// LineItem представляет одну позицию заказа.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitValue decimal.Decimal
	LineTotal decimal.Decimal
}

// Order — нормализованная запись заказа, с которой работает движок списка.
type Order struct {
	ID string
	// CustomerName может содержать как отображаемое имя, так и id-заглушку.
	CustomerName string
	CustomerID   string
	Total        decimal.Decimal
	Status       OrderStatus
	LineItems    []LineItem
	ItemsCount   int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key возвращает нормализованный ключ заказа.
func (o Order) Key() string {
	return Key(o.ID)
}

// Clone возвращает копию заказа с собственным срезом позиций.
func (o Order) Clone() Order {
	if o.LineItems != nil {
		items := make([]LineItem, len(o.LineItems))
		copy(items, o.LineItems)
		o.LineItems = items
	}
	return o
}

// CustomerRef возвращает внешний ключ клиента, по которому можно получить имя.
// Пустая строка означает, что разрешать нечего.
func (o Order) CustomerRef() string {
	if id := strings.TrimSpace(o.CustomerID); id != "" {
		return id
	}
	if IsIDShaped(o.CustomerName) {
		return strings.TrimSpace(o.CustomerName)
	}
	return ""
}

// NeedsCustomerName сообщает, что вместо имени клиента у заказа только ключ.
func (o Order) NeedsCustomerName() bool {
	name := strings.TrimSpace(o.CustomerName)
	if name != "" && !IsIDShaped(name) {
		return false
	}
	return o.CustomerRef() != ""
}

// NeedsDetail сообщает, что в списочной записи не хватает полей деталей.
func (o Order) NeedsDetail() bool {
	return strings.TrimSpace(o.CustomerID) == "" || len(o.LineItems) == 0
}

// CountItems считает количество единиц по позициям: сумма quantity,
// а если она нулевая — число позиций.
func CountItems(items []LineItem) int {
	sum := 0
	for _, item := range items {
		sum += item.Quantity
	}
	if sum == 0 {
		return len(items)
	}
	return sum
}

// Customer — запись справочника клиентов.
type Customer struct {
	ID    string
	Name  string
	Email string
}

// Key возвращает нормализованный ключ клиента.
func (c Customer) Key() string {
	return Key(c.ID)
}
