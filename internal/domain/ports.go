package domain

import "context"

// OrderAPI описывает REST-клиент бэкенда заказов.
type OrderAPI interface {
	// ListOrders возвращает одну страницу заказов.
	ListOrders(ctx context.Context, query ListQuery) ([]OrderPatch, error)
	// GetOrder возвращает полную запись заказа или ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (OrderPatch, error)
	// UpdateOrder отправляет изменение заказа.
	UpdateOrder(ctx context.Context, id string, update OrderUpdate) error
	// DeleteOrder удаляет заказ.
	DeleteOrder(ctx context.Context, id string) error
	// GetCustomer возвращает клиента или ErrCustomerNotFound.
	GetCustomer(ctx context.Context, id string) (Customer, error)
}

// Session представляет внешний коллаборатор аутентификации.
type Session interface {
	IsAuthenticated() bool
	Loading() bool
	Token() string
	Role() string
	TenantID() string
}

// PermissionChecker проверяет права роли.
type PermissionChecker interface {
	RoleHasManagementAccess(role string) bool
}

// PermissionFunc адаптирует функцию к PermissionChecker.
type PermissionFunc func(role string) bool

// RoleHasManagementAccess вызывает f(role).
func (f PermissionFunc) RoleHasManagementAccess(role string) bool {
	return f(role)
}

// PushEvent — событие push-канала об изменении заказа.
type PushEvent struct {
	Name    string
	OrderID string
	// Status пустой, если событие не несёт нового статуса.
	Status string
}

// PushHandler обрабатывает событие push-канала.
type PushHandler func(event PushEvent)

// PushChannel открывает соединение с сервером push-инвалидаций.
type PushChannel interface {
	Connect(ctx context.Context, url, token string) (PushConnection, error)
}

// PushConnection — постоянное соединение с каналом изменений.
type PushConnection interface {
	Subscribe(eventName string, handler PushHandler)
	Unsubscribe(eventName string)
	// OnReconnecting вызывается при потере соединения перед попытками переподключения.
	OnReconnecting(func(err error))
	// OnReconnected вызывается после успешного переподключения.
	OnReconnected(func())
	// OnClosed вызывается, когда соединение закрыто окончательно.
	OnClosed(func(err error))
	Start(ctx context.Context) error
	Stop() error
}
