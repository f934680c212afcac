package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, если заказа нет ни в коллекции, ни на бэкенде.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCustomerNotFound возвращается, если клиент по ключу не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrNotAuthenticated — операция требует активной сессии.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPermissionDenied — у роли нет прав управления заказами.
	ErrPermissionDenied = errors.New("you do not have permission to manage orders")
	// ErrNoLineItems — заказ должен содержать хотя бы одну позицию.
	ErrNoLineItems = errors.New("order must contain at least one line item")
	// ErrOperationInProgress — по заказу уже выполняется изменение или удаление.
	ErrOperationInProgress = errors.New("operation already in progress for this order")
	// ErrInvalidPage — номер страницы меньше 1.
	ErrInvalidPage = errors.New("page number must be >= 1")
	// ErrInvalidPageSize — размер страницы должен быть положительным.
	ErrInvalidPageSize = errors.New("page size must be > 0")
	// ErrInvalidStatus — неизвестный статус заказа.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrLiveUpdatesUnavailable — push-канал недоступен, работаем через ручное обновление.
	ErrLiveUpdatesUnavailable = errors.New("live updates unavailable")
	// ErrSuperseded — ответ устарел: страница, фильтр или экран уже сменились.
	ErrSuperseded = errors.New("response superseded")
	// ErrNotMounted — экран не смонтирован.
	ErrNotMounted = errors.New("screen is not mounted")
)

// IsPermissionError проверяет, является ли ошибка отказом авторизации на клиенте.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNotAuthenticated)
}
