package domain

import "time"

// Filter задаёт критерии выборки списка заказов.
type Filter struct {
	// ActiveOnly == nil — фильтр по активности не применяется.
	ActiveOnly *bool
	From       *time.Time
	To         *time.Time
}

// Normalize приводит границы дат к границам суток: From — начало дня,
// To — начало следующего дня (исключающая граница).
func (f Filter) Normalize() Filter {
	out := f
	if f.From != nil {
		from := startOfDay(*f.From)
		out.From = &from
	}
	if f.To != nil {
		to := startOfDay(*f.To).AddDate(0, 0, 1)
		out.To = &to
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ListQuery — параметры одного постраничного запроса.
type ListQuery struct {
	Page       int
	PageSize   int
	Descending bool
	Filter     Filter
}

// OrderUpdate — тело запроса на изменение заказа.
type OrderUpdate struct {
	Status    OrderStatus
	LineItems []LineItem
}
