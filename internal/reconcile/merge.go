// Package reconcile решает, какие поля входящей записи перезаписывают текущее
// состояние заказа, а какие защищены от затирания фоновыми источниками.
package reconcile

import (
	"strings"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

// Source определяет происхождение входящей записи.
type Source string

const (
	// SourceList — страница списка.
	SourceList Source = "list"
	// SourceDetail — фоновая или модальная загрузка заказа по id.
	SourceDetail Source = "detail"
	// SourceNameLookup — разрешение имени клиента.
	SourceNameLookup Source = "name_lookup"
	// SourcePush — событие push-канала, адресованное конкретному заказу.
	SourcePush Source = "push"
	// SourceMutation — подтверждённое бэкендом локальное изменение.
	SourceMutation Source = "mutation"
)

// HasStatusAuthority сообщает, может ли источник менять статус заказа.
func (s Source) HasStatusAuthority() bool {
	return s == SourcePush || s == SourceMutation
}

// Merge накладывает incoming на current по полям и возвращает новую запись.
// current не изменяется.
func Merge(current domain.Order, incoming domain.OrderPatch, src Source) domain.Order {
	merged := current.Clone()

	// Детальный эндпоинт может вернуть устаревший статус, поэтому статус
	// принимаем только от push-событий и подтверждённых мутаций.
	if incoming.Status != nil && incoming.Status.Valid() {
		if src.HasStatusAuthority() || merged.Status == "" {
			merged.Status = *incoming.Status
		}
	}

	if merged.ItemsCount <= 0 {
		switch {
		case len(incoming.LineItems) > 0:
			merged.ItemsCount = domain.CountItems(incoming.LineItems)
		case incoming.ItemsCount != nil && *incoming.ItemsCount > 0:
			merged.ItemsCount = *incoming.ItemsCount
		}
	}

	if incoming.CustomerName != nil {
		name := strings.TrimSpace(*incoming.CustomerName)
		if name != "" && !domain.IsIDShaped(name) {
			merged.CustomerName = name
		}
	}

	if incoming.CustomerID != nil && strings.TrimSpace(*incoming.CustomerID) != "" {
		merged.CustomerID = strings.TrimSpace(*incoming.CustomerID)
	}
	if incoming.Active != nil {
		merged.Active = *incoming.Active
	}
	if incoming.Total != nil {
		merged.Total = *incoming.Total
	}
	if len(incoming.LineItems) > 0 {
		merged.LineItems = append([]domain.LineItem(nil), incoming.LineItems...)
	}
	if incoming.CreatedAt != nil && !incoming.CreatedAt.IsZero() {
		merged.CreatedAt = *incoming.CreatedAt
	}
	if incoming.UpdatedAt != nil && !incoming.UpdatedAt.IsZero() {
		merged.UpdatedAt = *incoming.UpdatedAt
	}

	return merged
}
