package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/reconcile"
)

// OrderCollection — рабочая коллекция заказов экрана и открытая карточка заказа.
// Живёт от монтирования до размонтирования экрана; источник истины — бэкенд.
type OrderCollection struct {
	mu      sync.RWMutex
	keys    []string
	items   map[string]domain.Order
	detail  *domain.Order
	version uint64
	changed chan struct{}
}

// NewOrderCollection возвращает пустую коллекцию.
func NewOrderCollection() *OrderCollection {
	return &OrderCollection{
		items:   make(map[string]domain.Order),
		changed: make(chan struct{}, 1),
	}
}

// Replace заменяет содержимое коллекции страницей заказов, сохраняя порядок.
// Открытая карточка не закрывается.
func (c *OrderCollection) Replace(orders []domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.keys = make([]string, 0, len(orders))
	c.items = make(map[string]domain.Order, len(orders))
	for _, order := range orders {
		key := order.Key()
		if _, dup := c.items[key]; dup {
			continue
		}
		c.keys = append(c.keys, key)
		// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
		c.items[key] = order.Clone()
	}
	c.touchLocked()
}

// List возвращает копию коллекции в порядке страницы.
func (c *OrderCollection) List() []domain.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Order, 0, len(c.keys))
	for _, key := range c.keys {
		result = append(result, c.items[key].Clone())
	}
	return result
}

// Len возвращает число заказов в коллекции.
func (c *OrderCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Get возвращает заказ по id.
func (c *OrderCollection) Get(id string) (domain.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order, ok := c.items[domain.Key(id)]
	if !ok {
		return domain.Order{}, false
	}
	return order.Clone(), true
}

// Apply сливает патч с заказом коллекции и с открытой карточкой, если она
// показывает тот же заказ. Возвращает false, если заказа нет ни там, ни там.
func (c *OrderCollection) Apply(patch domain.OrderPatch, src reconcile.Source) (domain.Order, bool) {
	key := domain.Key(patch.ID)

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		result  domain.Order
		applied bool
	)
	if current, ok := c.items[key]; ok {
		result = reconcile.Merge(current, patch, src)
		c.items[key] = result
		applied = true
	}
	if c.detail != nil && c.detail.Key() == key {
		merged := reconcile.Merge(*c.detail, patch, src)
		c.detail = &merged
		if !applied {
			result = merged
			applied = true
		}
	}
	if applied {
		c.touchLocked()
		return result.Clone(), true
	}
	return domain.Order{}, false
}

// Remove удаляет заказ и закрывает карточку, если она показывала его.
func (c *OrderCollection) Remove(id string) bool {
	key := domain.Key(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	if _, ok := c.items[key]; ok {
		delete(c.items, key)
		for i, k := range c.keys {
			if k == key {
				c.keys = append(c.keys[:i], c.keys[i+1:]...)
				break
			}
		}
		removed = true
	}
	if c.detail != nil && c.detail.Key() == key {
		c.detail = nil
		removed = true
	}
	if removed {
		c.touchLocked()
	}
	return removed
}

// OpenDetail открывает карточку заказа. Если заказ есть в коллекции, карточка
// сразу показывает его текущее состояние.
func (c *OrderCollection) OpenDetail(id string) domain.Order {
	key := domain.Key(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.items[key]
	if !ok {
		order = domain.Order{ID: id}
	}
	order = order.Clone()
	c.detail = &order
	c.touchLocked()
	return order.Clone()
}

// CloseDetail закрывает карточку.
func (c *OrderCollection) CloseDetail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return
	}
	c.detail = nil
	c.touchLocked()
}

// Detail возвращает открытую карточку.
func (c *OrderCollection) Detail() (domain.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.detail == nil {
		return domain.Order{}, false
	}
	return c.detail.Clone(), true
}

// DetailShows сообщает, открыта ли карточка именно этого заказа.
func (c *OrderCollection) DetailShows(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detail != nil && c.detail.Key() == domain.Key(id)
}

// Version монотонно растёт при каждом изменении.
func (c *OrderCollection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Changed сигнализирует об изменениях; частые изменения схлопываются в один сигнал.
func (c *OrderCollection) Changed() <-chan struct{} {
	return c.changed
}

func (c *OrderCollection) touchLocked() {
	c.version++
	select {
	case c.changed <- struct{}{}:
	default:
	}
}
