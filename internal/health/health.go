// Package health отдаёт состояние экрана и push-канала для probe-запросов.
package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderwatch/internal/service/listener"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check содержит результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check() Check
}

// CheckerFunc адаптирует функцию к Checker.
type CheckerFunc func() Check

// Check вызывает f.
func (f CheckerFunc) Check() Check { return f() }

// Handler собирает проверки и отдаёт сводный статус.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
}

// NewHandler создаёт handler.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
	}
}

// Register добавляет проверку.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) run() (Status, map[string]Check) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	overall := StatusHealthy
	checks := make(map[string]Check, len(names))
	for _, name := range names {
		start := time.Now()
		check := checkers[name].Check()
		if check.Name == "" {
			check.Name = name
		}
		check.DurationMs = time.Since(start).Milliseconds()
		checks[name] = check

		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return overall, checks
}

// ServeHTTP отдаёт JSON со всеми проверками. Деградация не меняет код
// ответа: экран работает и без live-обновлений.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	overall, checks := h.run()

	response := Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ScreenState описывает то, что health знает об экране списка.
type ScreenState interface {
	Mounted() bool
	Error() error
	ListenerState() listener.State
}

// NewScreenChecker: экран не смонтирован — unhealthy, последняя операция
// завершилась ошибкой — degraded.
func NewScreenChecker(screen ScreenState) Checker {
	return CheckerFunc(func() Check {
		check := Check{Name: "order_list", Status: StatusHealthy}
		switch {
		case !screen.Mounted():
			check.Status = StatusUnhealthy
			check.Message = "screen is not mounted"
		case screen.Error() != nil:
			check.Status = StatusDegraded
			check.Message = screen.Error().Error()
		}
		return check
	})
}

// NewListenerChecker: push-канал не подключён — degraded, список
// обновляется только вручную.
func NewListenerChecker(screen ScreenState) Checker {
	return CheckerFunc(func() Check {
		state := screen.ListenerState()
		check := Check{Name: "live_updates", Status: StatusHealthy, Message: state.String()}
		if state != listener.StateConnected {
			check.Status = StatusDegraded
		}
		return check
	})
}
