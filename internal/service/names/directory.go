// Package names разрешает id-заглушки клиентов в отображаемые имена.
package names

import (
	"sync"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

// Directory хранит справочник уже загруженных клиентов.
// Пополняется только добавлением; очищается целиком через Reset.
type Directory struct {
	mu        sync.RWMutex
	customers []domain.Customer
	byKey     map[string]int
}

// NewDirectory создаёт пустой справочник.
func NewDirectory() *Directory {
	return &Directory{byKey: make(map[string]int)}
}

// Lookup ищет клиента по ключу.
func (d *Directory) Lookup(id string) (domain.Customer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.byKey[domain.Key(id)]
	if !ok {
		return domain.Customer{}, false
	}
	return d.customers[idx], true
}

// Add добавляет клиента. Повторное добавление того же ключа игнорируется.
func (d *Directory) Add(customer domain.Customer) bool {
	key := customer.Key()
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byKey[key]; exists {
		return false
	}
	d.byKey[key] = len(d.customers)
	d.customers = append(d.customers, customer)
	return true
}

// All возвращает копию справочника в порядке добавления.
func (d *Directory) All() []domain.Customer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Customer, len(d.customers))
	copy(out, d.customers)
	return out
}

// Reset очищает справочник.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers = nil
	d.byKey = make(map[string]int)
}
