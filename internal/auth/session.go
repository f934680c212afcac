// Package auth предоставляет сессию только для чтения поверх bearer-токена.
// Подпись не проверяется: токен проверяет бэкенд, здесь нужны только
// роль, tenant и срок действия.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

// ErrInvalidToken — токен не разбирается как JWT.
var ErrInvalidToken = errors.New("invalid token")

// Claims содержит поля токена, которые нужны клиенту.
type Claims struct {
	jwt.RegisteredClaims
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
	// EnterpriseID — имя поля tenant в части токенов бэкенда.
	EnterpriseID string `json:"enterpriseId,omitempty"`
}

// TokenSession реализует domain.Session.
type TokenSession struct {
	now     func() time.Time
	changed chan struct{}

	mu      sync.RWMutex
	token   string
	claims  Claims
	loading bool
}

// NewTokenSession разбирает токен. Пустой токен даёт неаутентифицированную сессию.
func NewTokenSession(token string) (*TokenSession, error) {
	s := &TokenSession{now: time.Now, changed: make(chan struct{}, 1)}
	if err := s.Update(token); err != nil {
		return nil, err
	}
	return s, nil
}

// Update заменяет токен сессии.
func (s *TokenSession) Update(token string) error {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))

	var claims Claims
	if token != "" {
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetLoading отмечает, что сессия ещё восстанавливается.
func (s *TokenSession) SetLoading(loading bool) {
	s.mu.Lock()
	changed := s.loading != loading
	s.loading = loading
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Changed сигнализирует о смене токена или флага загрузки; частые изменения
// схлопываются в один сигнал.
func (s *TokenSession) Changed() <-chan struct{} {
	return s.changed
}

func (s *TokenSession) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// IsAuthenticated сообщает, что токен есть и не истёк.
func (s *TokenSession) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return false
	}
	if s.claims.ExpiresAt != nil && !s.now().Before(s.claims.ExpiresAt.Time) {
		return false
	}
	return true
}

func (s *TokenSession) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *TokenSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Role возвращает роль из claim role, иначе первую из roles.
func (s *TokenSession) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if role := strings.TrimSpace(s.claims.Role); role != "" {
		return role
	}
	for _, role := range s.claims.Roles {
		if role = strings.TrimSpace(role); role != "" {
			return role
		}
	}
	return ""
}

func (s *TokenSession) TenantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims.TenantID != "" {
		return s.claims.TenantID
	}
	return s.claims.EnterpriseID
}

// ExpiresAt возвращает срок действия токена; нулевое время — срок не задан.
func (s *TokenSession) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims.ExpiresAt == nil {
		return time.Time{}
	}
	return s.claims.ExpiresAt.Time
}

var managementRoles = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"manager":       {},
	"owner":         {},
}

// RoleHasManagementAccess сообщает, может ли роль менять и удалять заказы.
func RoleHasManagementAccess(role string) bool {
	_, ok := managementRoles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// Permissions проверяет права по роли сессии.
var Permissions domain.PermissionChecker = domain.PermissionFunc(RoleHasManagementAccess)

var _ domain.Session = (*TokenSession)(nil)
