// Package listener держит подписку на push-канал изменений заказов.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/metrics"
	"github.com/vladislavdragonenkov/orderwatch/internal/reconcile"
)

// EventOrderUpdated — каноническое имя события изменения заказа.
const EventOrderUpdated = "OrderUpdated"

// State — состояние соединения слушателя.
type State int

const (
	// StateDisconnected — соединения нет.
	StateDisconnected State = iota
	// StateConnecting — идёт первое подключение.
	StateConnecting
	// StateConnected — события приходят.
	StateConnected
	// StateReconnecting — соединение потеряно, канал переподключается.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Reason — причина инвалидации списка.
type Reason string

const (
	ReasonPush      Reason = "push"
	ReasonReconnect Reason = "reconnect"
)

// Store представляет коллекцию, в которую пишутся статусы из push-событий.
type Store interface {
	Apply(patch domain.OrderPatch, src reconcile.Source) (domain.Order, bool)
}

// Config задаёт параметры слушателя.
type Config struct {
	URL string
	// Aliases — дополнительные имена события, которые сервер может использовать.
	Aliases []string
}

// Options задаёт необязательные зависимости слушателя.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.SyncMetrics
	// OnInvalidate вызывается на каждое событие и на каждое переподключение.
	OnInvalidate func(reason Reason)
	// OnStateChange получает новое состояние; err не nil при потере соединения.
	OnStateChange func(state State, err error)
}

// Option настраивает Listener.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithInvalidateHandler задаёт обработчик инвалидации списка.
func WithInvalidateHandler(handler func(reason Reason)) Option {
	return func(opts *Options) {
		opts.OnInvalidate = handler
	}
}

// WithStateHandler задаёт наблюдателя за состоянием соединения.
func WithStateHandler(handler func(state State, err error)) Option {
	return func(opts *Options) {
		opts.OnStateChange = handler
	}
}

// Listener переводит push-события в патчи статусов и инвалидации списка.
type Listener struct {
	channel domain.PushChannel
	session domain.Session
	store   Store
	url     string
	events  []string

	metrics       *metrics.SyncMetrics
	logger        *log.Entry
	onInvalidate  func(reason Reason)
	onStateChange func(state State, err error)

	// lifecycle сериализует Start и Stop: новые обработчики не подключаются,
	// пока предыдущее соединение не закрыто.
	lifecycle sync.Mutex

	mu    sync.Mutex
	state State
	conn  domain.PushConnection
}

// New создаёт слушателя.
func New(channel domain.PushChannel, session domain.Session, store Store, cfg Config, options ...Option) *Listener {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "push-listener")
	}

	return &Listener{
		channel:       channel,
		session:       session,
		store:         store,
		url:           strings.TrimSpace(cfg.URL),
		events:        EventNames(cfg.Aliases),
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		onInvalidate:  opts.OnInvalidate,
		onStateChange: opts.OnStateChange,
	}
}

// EventNames возвращает каноническое имя события и псевдонимы без
// повторов (без учёта регистра и пробелов).
func EventNames(aliases []string) []string {
	names := []string{EventOrderUpdated}
	seen := map[string]struct{}{strings.ToLower(EventOrderUpdated): {}}
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		key := strings.ToLower(alias)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, alias)
	}
	return names
}

// Events возвращает имена событий, на которые подписывается слушатель.
func (l *Listener) Events() []string {
	return append([]string(nil), l.events...)
}

// State возвращает текущее состояние.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Running сообщает, есть ли открытое соединение.
func (l *Listener) Running() bool {
	return l.currentConn() != nil
}

// Start подключается к каналу. Без активной сессии возвращает
// ErrNotAuthenticated и ничего не делает; ошибка подключения оборачивает
// ErrLiveUpdatesUnavailable.
func (l *Listener) Start(ctx context.Context) error {
	if l.session == nil || l.session.Loading() || !l.session.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}
	if l.channel == nil || l.url == "" {
		return fmt.Errorf("%w: push channel is not configured", domain.ErrLiveUpdatesUnavailable)
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.currentConn() != nil {
		return nil
	}

	l.setState(StateConnecting, nil)
	conn, err := l.channel.Connect(ctx, l.url, l.session.Token())
	if err != nil {
		l.setState(StateDisconnected, err)
		l.logger.WithError(err).Warn("push channel connect failed")
		return fmt.Errorf("%w: %v", domain.ErrLiveUpdatesUnavailable, err)
	}

	for _, name := range l.events {
		conn.Subscribe(name, l.handle)
	}
	conn.OnReconnecting(func(err error) {
		l.logger.WithError(err).Warn("push channel lost, reconnecting")
		l.setState(StateReconnecting, err)
	})
	conn.OnReconnected(func() {
		l.logger.Info("push channel reconnected")
		l.setState(StateConnected, nil)
		// За время разрыва могли пропустить события.
		l.invalidate(ReasonReconnect)
	})
	conn.OnClosed(func(err error) {
		if err != nil {
			l.logger.WithError(err).Warn("push channel closed")
		}
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
		l.setState(StateDisconnected, err)
	})

	if err := conn.Start(ctx); err != nil {
		l.detach(conn)
		l.setState(StateDisconnected, err)
		l.logger.WithError(err).Warn("push channel start failed")
		return fmt.Errorf("%w: %v", domain.ErrLiveUpdatesUnavailable, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.setState(StateConnected, nil)
	l.logger.WithFields(log.Fields{"url": l.url, "events": l.events}).Info("push listener connected")
	return nil
}

// Stop снимает все подписки и закрывает соединение.
func (l *Listener) Stop() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		l.setState(StateDisconnected, nil)
		return nil
	}

	err := l.detach(conn)
	l.setState(StateDisconnected, nil)
	if err != nil {
		return fmt.Errorf("stop push listener: %w", err)
	}
	return nil
}

func (l *Listener) detach(conn domain.PushConnection) error {
	for _, name := range l.events {
		conn.Unsubscribe(name)
	}
	err := conn.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Listener) currentConn() domain.PushConnection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

func (l *Listener) handle(event domain.PushEvent) {
	name := event.Name
	if name == "" {
		name = EventOrderUpdated
	}
	l.metrics.RecordPushEvent(name)

	orderID := strings.TrimSpace(event.OrderID)
	if orderID != "" {
		if status, ok := domain.ParseOrderStatus(event.Status); ok {
			l.store.Apply(domain.StatusPatch(orderID, status), reconcile.SourcePush)
		}
	}
	l.logger.WithFields(log.Fields{
		"event":    name,
		"order_id": orderID,
		"status":   event.Status,
	}).Debug("push event received")
	l.invalidate(ReasonPush)
}

func (l *Listener) invalidate(reason Reason) {
	if l.onInvalidate != nil {
		l.onInvalidate(reason)
	}
}

func (l *Listener) setState(state State, err error) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()

	l.metrics.SetListenerState(int(state))
	if l.onStateChange != nil {
		l.onStateChange(state, err)
	}
}
