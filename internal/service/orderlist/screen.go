// Package orderlist собирает компоненты синхронизации в экран списка заказов:
// загрузку страниц, фоновое обогащение, push-инвалидации и мутации.
package orderlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/inflight"
	"github.com/vladislavdragonenkov/orderwatch/internal/metrics"
	"github.com/vladislavdragonenkov/orderwatch/internal/service/fetcher"
	"github.com/vladislavdragonenkov/orderwatch/internal/service/listener"
	"github.com/vladislavdragonenkov/orderwatch/internal/service/mutation"
	"github.com/vladislavdragonenkov/orderwatch/internal/service/names"
	"github.com/vladislavdragonenkov/orderwatch/internal/service/prefetch"
	"github.com/vladislavdragonenkov/orderwatch/internal/storage/memory"
)

const (
	defaultReloadMinInterval = 2 * time.Second

	reloadMount  = "mount"
	reloadPage   = "page"
	reloadFilter = "filter"
	reloadManual = "refresh"
)

// Dependencies содержит внешние коллабораторы экрана.
type Dependencies struct {
	API         domain.OrderAPI
	Session     domain.Session
	Permissions domain.PermissionChecker
	// Push == nil отключает live-обновления без баннера.
	Push    domain.PushChannel
	Metrics *metrics.SyncMetrics
	Logger  *log.Entry
}

// Config задаёт параметры экрана.
type Config struct {
	PageSize   int
	Descending bool
	Filter     domain.Filter

	PushURL      string
	EventAliases []string
	// ReloadMinInterval ограничивает перезагрузки от push-событий и
	// переподключений. 0 — значение по умолчанию, отрицательное — без ограничения.
	ReloadMinInterval time.Duration

	PrefetchConcurrency int
}

// Screen — список заказов с живой синхронизацией. Рабочая коллекция
// создаётся при Mount и отбрасывается при Unmount.
type Screen struct {
	deps      Dependencies
	cfg       Config
	logger    *log.Entry
	directory *names.Directory

	refreshKey atomic.Uint64
	loading    atomic.Int32
	changes    chan struct{}

	mu      sync.Mutex
	current *mount

	stateMu sync.RWMutex
	lastErr error
	banner  string
}

// mount — всё, что живёт от Mount до Unmount.
type mount struct {
	ctx    context.Context
	cancel context.CancelFunc

	collection     *memory.OrderCollection
	fetcher        *fetcher.Fetcher
	resolver       *names.Resolver
	prefetcher     *prefetch.Prefetcher
	listener       *listener.Listener
	coordinator    *mutation.Coordinator
	detailInFlight *inflight.Set

	reloads chan string
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// track регистрирует фоновую задачу; после закрытия mount задача не запускается.
func (m *mount) track(task func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		task()
	}()
	return true
}

func (m *mount) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// NewScreen создаёт экран. Справочник клиентов переживает перемонтирование.
func NewScreen(deps Dependencies, cfg Config) *Screen {
	if deps.Logger == nil {
		deps.Logger = log.WithField("component", "order-list")
	}
	if cfg.ReloadMinInterval == 0 {
		cfg.ReloadMinInterval = defaultReloadMinInterval
	}
	return &Screen{
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger,
		directory: names.NewDirectory(),
		changes:   make(chan struct{}, 1),
	}
}

// Mount создаёт коллекцию, загружает первую страницу и подключает
// push-канал. Ошибка первой загрузки возвращается, но экран остаётся
// смонтированным: повторить можно через Refresh. Недоступность push-канала
// только выставляет баннер.
func (s *Screen) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil
	}
	m := s.newMount(ctx)
	s.current = m
	s.mu.Unlock()

	m.track(func() { s.forwardChanges(m) })
	m.track(func() { s.reloadLoop(m) })

	if m.listener != nil {
		s.startListener(m)
	}

	s.logger.WithFields(log.Fields{
		"page_size": s.cfg.PageSize,
		"push":      m.listener != nil,
	}).Info("order list mounted")
	return s.load(ctx, m, reloadMount)
}

// SessionChanged сверяет push-канал с сессией: при потере аутентификации
// слушатель останавливается, когда сессия готова, а слушатель не запущен,
// он подключается. Без смонтированного экрана ничего не делает.
func (s *Screen) SessionChanged() error {
	m := s.mounted()
	if m == nil || m.listener == nil {
		return nil
	}

	session := s.deps.Session
	ready := session != nil && !session.Loading() && session.IsAuthenticated()
	switch {
	case !ready && m.listener.Running():
		s.logger.Info("live updates stopped: session lost")
		return m.listener.Stop()
	case ready && !m.listener.Running():
		s.startListener(m)
	}
	return nil
}

// startListener подключает push-канал; неудача только выставляет баннер.
func (s *Screen) startListener(m *mount) {
	err := m.listener.Start(m.ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotAuthenticated):
		s.logger.Debug("live updates skipped: session is not ready")
	default:
		s.setBanner(domain.ErrLiveUpdatesUnavailable.Error())
		s.logger.WithError(err).Warn("live updates unavailable")
	}
}

func (s *Screen) newMount(ctx context.Context) *mount {
	runCtx, cancel := context.WithCancel(ctx)
	collection := memory.NewOrderCollection()

	m := &mount{
		ctx:            runCtx,
		cancel:         cancel,
		collection:     collection,
		detailInFlight: inflight.NewSet(),
		reloads:        make(chan string, 1),
		limiter:        newReloadLimiter(s.cfg.ReloadMinInterval),
	}

	m.fetcher = fetcher.New(s.deps.API, collection,
		fetcher.WithPageSize(s.cfg.PageSize),
		fetcher.WithDescending(s.cfg.Descending),
		fetcher.WithFilter(s.cfg.Filter),
		fetcher.WithLogger(s.logger.WithField("component", "order-fetcher")),
		fetcher.WithMetrics(s.deps.Metrics),
	)
	m.resolver = names.NewResolver(s.deps.API, collection, s.directory,
		names.WithLogger(s.logger.WithField("component", "name-resolver")),
		names.WithMetrics(s.deps.Metrics),
		names.WithInFlight(inflight.NewSet()),
		names.WithErrorHandler(func(orderID string, err error) {
			s.setError(fmt.Errorf("resolve customer of order %s: %w", orderID, err))
		}),
	)
	m.prefetcher = prefetch.New(s.deps.API, collection,
		prefetch.WithLogger(s.logger.WithField("component", "detail-prefetcher")),
		prefetch.WithMetrics(s.deps.Metrics),
		prefetch.WithInFlight(inflight.NewSet()),
		prefetch.WithConcurrency(s.cfg.PrefetchConcurrency),
		prefetch.WithErrorHandler(func(orderID string, err error) {
			s.setError(fmt.Errorf("load details of order %s: %w", orderID, err))
		}),
	)
	m.coordinator = mutation.NewCoordinator(s.deps.API, s.deps.Session, s.deps.Permissions, collection,
		mutation.WithLogger(s.logger.WithField("component", "mutation-coordinator")),
		mutation.WithMetrics(s.deps.Metrics),
	)
	if s.deps.Push != nil {
		m.listener = listener.New(s.deps.Push, s.deps.Session, collection,
			listener.Config{URL: s.cfg.PushURL, Aliases: s.cfg.EventAliases},
			listener.WithLogger(s.logger.WithField("component", "push-listener")),
			listener.WithMetrics(s.deps.Metrics),
			listener.WithInvalidateHandler(func(reason listener.Reason) {
				s.invalidate(m, string(reason))
			}),
			listener.WithStateHandler(s.onListenerState),
		)
	}
	return m
}

func newReloadLimiter(interval time.Duration) *rate.Limiter {
	if interval < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Unmount отключает push-канал, отбрасывает незавершённые ответы и
// останавливает фоновые задачи. Коллекция отбрасывается.
func (s *Screen) Unmount() error {
	s.mu.Lock()
	m := s.current
	s.current = nil
	s.mu.Unlock()
	if m == nil {
		return nil
	}

	var err error
	if m.listener != nil {
		// Старые обработчики снимаются до того, как следующий Mount подключит новые.
		err = m.listener.Stop()
	}
	m.fetcher.Invalidate()
	m.close()

	s.setBanner("")
	s.notify()
	s.logger.Info("order list unmounted")
	return err
}

// Mounted сообщает, смонтирован ли экран.
func (s *Screen) Mounted() bool {
	return s.mounted() != nil
}

func (s *Screen) mounted() *mount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Screen) require() (*mount, error) {
	m := s.mounted()
	if m == nil {
		return nil, domain.ErrNotMounted
	}
	return m, nil
}

// load загружает текущую страницу и запускает фоновое обогащение.
// Вытесненный ответ молча отбрасывается.
func (s *Screen) load(ctx context.Context, m *mount, reason string) error {
	s.loading.Add(1)
	s.notify()
	orders, err := m.fetcher.Load(ctx)
	s.loading.Add(-1)
	s.notify()

	if errors.Is(err, domain.ErrSuperseded) {
		s.logger.WithField("reason", reason).Debug("stale page response dropped")
		return nil
	}
	if err != nil {
		s.setError(err)
		return err
	}

	s.setError(nil)
	s.deps.Metrics.RecordReload(reason)
	m.track(func() { <-m.resolver.ResolveAsync(m.ctx, orders) })
	m.track(func() { <-m.prefetcher.PrefetchAsync(m.ctx, orders) })
	return nil
}

// invalidate вызывается слушателем: ключ обновления растёт на каждое
// событие, а сами перезагрузки схлопываются и ограничиваются по частоте.
func (s *Screen) invalidate(m *mount, reason string) {
	s.refreshKey.Add(1)
	select {
	case m.reloads <- reason:
	default:
	}
}

func (s *Screen) reloadLoop(m *mount) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case reason := <-m.reloads:
			if err := m.limiter.Wait(m.ctx); err != nil {
				return
			}
			// Всё, что пришло во время ожидания, покрывается этой перезагрузкой.
			select {
			case <-m.reloads:
			default:
			}
			if err := s.load(m.ctx, m, reason); err != nil {
				s.logger.WithError(err).WithField("reason", reason).Warn("reload failed")
			}
		}
	}
}

func (s *Screen) forwardChanges(m *mount) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.collection.Changed():
			s.notify()
		}
	}
}

func (s *Screen) onListenerState(state listener.State, err error) {
	switch {
	case state == listener.StateConnected:
		s.setBanner("")
	case state == listener.StateDisconnected && err != nil:
		s.setBanner(domain.ErrLiveUpdatesUnavailable.Error())
	}
}

// Orders возвращает текущую коллекцию; nil, если экран не смонтирован.
func (s *Screen) Orders() []domain.Order {
	m := s.mounted()
	if m == nil {
		return nil
	}
	return m.collection.List()
}

// Order возвращает заказ коллекции по id.
func (s *Screen) Order(id string) (domain.Order, bool) {
	m := s.mounted()
	if m == nil {
		return domain.Order{}, false
	}
	return m.collection.Get(id)
}

// Loading сообщает, идёт ли загрузка страницы.
func (s *Screen) Loading() bool {
	return s.loading.Load() > 0
}

// Error возвращает последнюю ошибку; успешная загрузка страницы её сбрасывает.
func (s *Screen) Error() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastErr
}

// Banner возвращает некритичное предупреждение, например о недоступности
// live-обновлений.
func (s *Screen) Banner() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.banner
}

// RefreshKey возвращает счётчик принудительных перезагрузок.
func (s *Screen) RefreshKey() uint64 {
	return s.refreshKey.Load()
}

// Subscribe возвращает канал уведомлений об изменениях экрана.
// Частые изменения схлопываются в одно уведомление.
func (s *Screen) Subscribe() <-chan struct{} {
	return s.changes
}

// ListenerState возвращает состояние push-канала.
func (s *Screen) ListenerState() listener.State {
	m := s.mounted()
	if m == nil || m.listener == nil {
		return listener.StateDisconnected
	}
	return m.listener.State()
}

// Customers возвращает справочник клиентов.
func (s *Screen) Customers() *names.Directory {
	return s.directory
}

func (s *Screen) setError(err error) {
	s.stateMu.Lock()
	s.lastErr = err
	s.stateMu.Unlock()
	if err != nil {
		s.logger.WithError(err).Warn("order list error")
	}
	s.notify()
}

func (s *Screen) setBanner(banner string) {
	s.stateMu.Lock()
	changed := s.banner != banner
	s.banner = banner
	s.stateMu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Screen) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
