// Package websocket реализует push-канал изменений заказов поверх WebSocket.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultBaseDelay            = 500 * time.Millisecond
	defaultMaxDelay             = 30 * time.Second
	defaultReadLimit            = 1 << 20

	tokenQueryParam = "access_token"
)

// handshakeFrame выбирает JSON-протокол хаба; без него сервер закрывает соединение.
var handshakeFrame = []byte(`{"protocol":"json","version":1}` + "\x1e")

// Options задаёт параметры канала.
type Options struct {
	Logger               *log.Entry
	HTTPClient           *http.Client
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
}

// Option настраивает Channel.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithHTTPClient задаёт HTTP-клиент для рукопожатия.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithMaxReconnectAttempts задаёт число попыток переподключения подряд.
func WithMaxReconnectAttempts(n int) Option {
	return func(opts *Options) {
		opts.MaxReconnectAttempts = n
	}
}

// WithBackoff задаёт границы экспоненциальной задержки между попытками.
func WithBackoff(base, max time.Duration) Option {
	return func(opts *Options) {
		opts.BaseDelay = base
		opts.MaxDelay = max
	}
}

// Channel открывает WebSocket-соединения с сервером push-событий.
type Channel struct {
	opts Options
}

// NewChannel создаёт канал.
func NewChannel(options ...Option) *Channel {
	opts := Options{
		MaxReconnectAttempts: defaultMaxReconnectAttempts,
		BaseDelay:            defaultBaseDelay,
		MaxDelay:             defaultMaxDelay,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "push-websocket")
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	return &Channel{opts: opts}
}

// Connect устанавливает соединение. Токен передаётся параметром запроса,
// так как браузерные клиенты не умеют слать заголовки при рукопожатии.
func (ch *Channel) Connect(ctx context.Context, rawURL, token string) (domain.PushConnection, error) {
	endpoint, err := withToken(rawURL, token)
	if err != nil {
		return nil, err
	}
	conn := &Connection{
		endpoint: endpoint,
		opts:     ch.opts,
		logger:   ch.opts.Logger.WithField("url", redact(endpoint)),
		handlers: make(map[string]domain.PushHandler),
	}
	ws, err := conn.dial(ctx)
	if err != nil {
		return nil, err
	}
	conn.ws = ws
	return conn, nil
}

func withToken(rawURL, token string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported push url scheme %q", parsed.Scheme)
	}
	if token != "" {
		q := parsed.Query()
		q.Set(tokenQueryParam, token)
		parsed.RawQuery = q.Encode()
	}
	return parsed.String(), nil
}

func redact(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	q := parsed.Query()
	if q.Has(tokenQueryParam) {
		q.Set(tokenQueryParam, "***")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

// Connection — одно логическое соединение; переживает разрывы транспорта.
type Connection struct {
	endpoint string
	opts     Options
	logger   *log.Entry

	mu             sync.Mutex
	ws             *websocket.Conn
	handlers       map[string]domain.PushHandler
	onReconnecting func(error)
	onReconnected  func()
	onClosed       func(error)
	cancel         context.CancelFunc
	done           chan struct{}
}

// Subscribe регистрирует обработчик события. Имена сравниваются без учёта регистра.
func (c *Connection) Subscribe(eventName string, handler domain.PushHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[strings.ToLower(strings.TrimSpace(eventName))] = handler
}

// Unsubscribe снимает обработчик события.
func (c *Connection) Unsubscribe(eventName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, strings.ToLower(strings.TrimSpace(eventName)))
}

// OnReconnecting задаёт обработчик потери соединения.
func (c *Connection) OnReconnecting(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnecting = f
}

// OnReconnected задаёт обработчик восстановления соединения.
func (c *Connection) OnReconnected(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnected = f
}

// OnClosed задаёт обработчик окончательного закрытия.
func (c *Connection) OnClosed(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = f
}

// Start запускает чтение событий в фоне.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return errors.New("connection already started")
	}
	if c.ws == nil {
		return errors.New("connection is closed")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.ws)
	return nil
}

// Stop закрывает соединение и ждёт завершения цикла чтения.
func (c *Connection) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if cancel == nil {
		// Соединение так и не стартовало.
		if ws != nil {
			return ws.Close(websocket.StatusNormalClosure, "")
		}
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Connection) run(ctx context.Context, ws *websocket.Conn) {
	defer close(c.done)

	for {
		err := c.readLoop(ctx, ws)
		_ = ws.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			c.fireClosed(nil)
			return
		}

		c.logger.WithError(err).Warn("push connection lost")
		c.fireReconnecting(err)

		ws, err = c.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.fireClosed(nil)
				return
			}
			c.logger.WithError(err).Error("push reconnect attempts exhausted")
			c.fireClosed(err)
			return
		}
		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.fireReconnected()
	}
}

func (c *Connection) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		events, err := decodeFrames(data)
		if err != nil {
			c.logger.WithError(err).Debug("skipping malformed push frame")
			continue
		}
		for _, event := range events {
			c.dispatch(event)
		}
	}
}

func (c *Connection) dispatch(event domain.PushEvent) {
	c.mu.Lock()
	handler := c.handlers[strings.ToLower(event.Name)]
	c.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func (c *Connection) reconnect(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		if err := wait(ctx, c.backoff(attempt)); err != nil {
			return nil, err
		}
		ws, err := c.dial(ctx)
		if err == nil {
			c.logger.WithField("attempt", attempt).Info("push connection restored")
			return ws, nil
		}
		lastErr = err
		c.logger.WithError(err).WithField("attempt", attempt).Warn("push reconnect attempt failed")
	}
	if lastErr == nil {
		lastErr = errors.New("reconnect disabled")
	}
	return nil, fmt.Errorf("reconnect after %d attempts: %w", c.opts.MaxReconnectAttempts, lastErr)
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := websocket.Dial(ctx, c.endpoint, &websocket.DialOptions{HTTPClient: c.opts.HTTPClient})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial push endpoint: %w", err)
	}
	ws.SetReadLimit(defaultReadLimit)
	if err := ws.Write(ctx, websocket.MessageText, handshakeFrame); err != nil {
		_ = ws.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, fmt.Errorf("send push handshake: %w", err)
	}
	return ws, nil
}

// backoff вычисляет экспоненциальную задержку перед попыткой attempt (с 1).
func (c *Connection) backoff(attempt int) time.Duration {
	delay := c.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.MaxDelay {
			return c.opts.MaxDelay
		}
	}
	return delay
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Connection) fireReconnecting(err error) {
	c.mu.Lock()
	f := c.onReconnecting
	c.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func (c *Connection) fireReconnected() {
	c.mu.Lock()
	f := c.onReconnected
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func (c *Connection) fireClosed(err error) {
	c.mu.Lock()
	f := c.onClosed
	c.mu.Unlock()
	if f != nil {
		f(err)
	}
}

var (
	_ domain.PushChannel    = (*Channel)(nil)
	_ domain.PushConnection = (*Connection)(nil)
)
