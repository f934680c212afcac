// Package inflight хранит ключи запросов, которые сейчас выполняются.
package inflight

import (
	"sync"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

// Set представляет потокобезопасное множество нормализованных ключей.
// Ключ присутствует ровно столько, сколько длится его сетевой вызов.
type Set struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSet создаёт пустое множество.
func NewSet() *Set {
	return &Set{keys: make(map[string]struct{})}
}

// TryAcquire занимает ключ. false — запрос по этому ключу уже выполняется.
func (s *Set) TryAcquire(id string) bool {
	key := domain.Key(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.keys[key]; busy {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Release освобождает ключ.
func (s *Set) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, domain.Key(id))
}

// Has сообщает, выполняется ли запрос по ключу.
func (s *Set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[domain.Key(id)]
	return ok
}

// Len возвращает число активных ключей.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
