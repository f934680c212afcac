// Package kafka реализует push-канал изменений заказов поверх Kafka
// consumer group и producer для публикации тех же событий.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

const (
	urlScheme                   = "kafka://"
	defaultGroupPrefix          = "orderwatch-"
	defaultMaxReconnectAttempts = 5
	defaultRetryBaseDelay       = 500 * time.Millisecond
	defaultRetryMaxDelay        = 30 * time.Second
)

// GroupFactory создаёт consumer group; подменяется в тестах.
type GroupFactory func(brokers []string, groupID string, config *sarama.Config) (sarama.ConsumerGroup, error)

// Endpoint — разобранный адрес вида
// kafka://broker1:9092,broker2:9092/topic?group=name&sasl=oauthbearer&tls=true.
type Endpoint struct {
	Brokers []string
	Topics  []string
	GroupID string
	SASL    bool
	TLS     bool
}

// ParseEndpoint разбирает адрес push-канала Kafka.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(raw), urlScheme) {
		return Endpoint{}, fmt.Errorf("kafka endpoint must start with %s", urlScheme)
	}
	rest := raw[len(urlScheme):]

	var rawQuery string
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		rest, rawQuery = rest[:idx], rest[idx+1:]
	}
	hosts, path, _ := strings.Cut(rest, "/")

	endpoint := Endpoint{
		Brokers: splitList(hosts),
		Topics:  splitList(path),
	}
	if len(endpoint.Brokers) == 0 {
		return Endpoint{}, errors.New("kafka endpoint has no brokers")
	}
	if len(endpoint.Topics) == 0 {
		endpoint.Topics = []string{TopicOrderEvents}
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse kafka endpoint query: %w", err)
	}
	endpoint.GroupID = strings.TrimSpace(query.Get("group"))
	if endpoint.GroupID == "" {
		// Каждому экрану нужна своя группа: события должны доходить до всех.
		endpoint.GroupID = defaultGroupPrefix + uuid.NewString()
	}
	switch strings.ToLower(query.Get("sasl")) {
	case "", "none":
	case "oauthbearer":
		endpoint.SASL = true
	default:
		return Endpoint{}, fmt.Errorf("unsupported sasl mechanism %q", query.Get("sasl"))
	}
	if v := query.Get("tls"); v != "" {
		endpoint.TLS, err = strconv.ParseBool(v)
		if err != nil {
			return Endpoint{}, fmt.Errorf("parse tls flag: %w", err)
		}
	}
	return endpoint, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// staticToken отдаёт bearer-токен сессии брокеру через SASL/OAUTHBEARER.
type staticToken string

func (t staticToken) Token() (*sarama.AccessToken, error) {
	if t == "" {
		return nil, errors.New("empty bearer token")
	}
	return &sarama.AccessToken{Token: string(t)}, nil
}

// Channel подключается к топику событий заказов.
type Channel struct {
	newGroup    GroupFactory
	logger      *log.Entry
	maxAttempts int
	baseDelay   time.Duration
}

// ChannelOption настраивает Channel.
type ChannelOption func(*Channel)

// WithGroupFactory подменяет создание consumer group.
func WithGroupFactory(factory GroupFactory) ChannelOption {
	return func(c *Channel) {
		c.newGroup = factory
	}
}

// WithMaxReconnectAttempts задаёт число неудачных сессий подряд до закрытия.
func WithMaxReconnectAttempts(n int) ChannelOption {
	return func(c *Channel) {
		c.maxAttempts = n
	}
}

// WithRetryBaseDelay задаёт базовую задержку между попытками.
func WithRetryBaseDelay(delay time.Duration) ChannelOption {
	return func(c *Channel) {
		c.baseDelay = delay
	}
}

// NewChannel создаёт канал.
func NewChannel(options ...ChannelOption) *Channel {
	ch := &Channel{
		newGroup:    sarama.NewConsumerGroup,
		logger:      log.WithField("component", "kafka-consumer"),
		maxAttempts: defaultMaxReconnectAttempts,
		baseDelay:   defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(ch)
	}
	if ch.maxAttempts < 0 {
		ch.maxAttempts = 0
	}
	if ch.baseDelay <= 0 {
		ch.baseDelay = defaultRetryBaseDelay
	}
	return ch
}

// Connect создаёт consumer group для адреса rawURL.
func (ch *Channel) Connect(_ context.Context, rawURL, token string) (domain.PushConnection, error) {
	endpoint, err := ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	// Нужны только события после подключения: прошлое отдаёт перезагрузка списка.
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Net.TLS.Enable = endpoint.TLS
	if endpoint.SASL {
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
		config.Net.SASL.TokenProvider = staticToken(token)
	}

	group, err := ch.newGroup(endpoint.Brokers, endpoint.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		consumer:    group,
		topics:      endpoint.Topics,
		logger:      ch.logger.WithField("group", endpoint.GroupID),
		handlers:    make(map[string]domain.PushHandler),
		maxAttempts: ch.maxAttempts,
		baseDelay:   ch.baseDelay,
	}, nil
}

// Consumer — соединение с топиком событий. Каждая новая сессия группы
// после первой считается переподключением: пока шла ребалансировка,
// события могли пройти мимо.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	logger      *log.Entry
	wg          sync.WaitGroup
	maxAttempts int
	baseDelay   time.Duration

	mu             sync.Mutex
	handlers       map[string]domain.PushHandler
	onReconnecting func(error)
	onReconnected  func()
	onClosed       func(error)
	sessions       int
	lost           bool
	cancel         context.CancelFunc
}

// Subscribe регистрирует обработчик события.
func (c *Consumer) Subscribe(eventName string, handler domain.PushHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[strings.ToLower(strings.TrimSpace(eventName))] = handler
}

// Unsubscribe снимает обработчик события.
func (c *Consumer) Unsubscribe(eventName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, strings.ToLower(strings.TrimSpace(eventName)))
}

// OnReconnecting задаёт обработчик потери сессии.
func (c *Consumer) OnReconnecting(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnecting = f
}

// OnReconnected задаёт обработчик новой сессии.
func (c *Consumer) OnReconnected(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnected = f
}

// OnClosed задаёт обработчик окончательной остановки.
func (c *Consumer) OnClosed(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = f
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		failures := 0
		for {
			// Consume вызывается в цикле, так как при rebalance он завершается
			err := c.consumer.Consume(runCtx, c.topics, c)
			if runCtx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
				c.fireClosed(nil)
				return
			}
			if err == nil {
				failures = 0
				continue
			}

			failures++
			c.logger.WithError(err).WithField("attempt", failures).Error("error from consumer")
			if failures == 1 {
				c.markLost(err)
			}
			if failures > c.maxAttempts {
				c.fireClosed(fmt.Errorf("consumer failed %d times: %w", failures, err))
				return
			}
			if waitErr := waitWithContext(runCtx, retryBackoff(c.baseDelay, failures)); waitErr != nil {
				c.fireClosed(nil)
				return
			}
		}
	}()

	// Обработка ошибок
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Warn("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.mu.Lock()
	c.sessions++
	reconnected := c.sessions > 1 || c.lost
	c.lost = false
	f := c.onReconnected
	c.mu.Unlock()

	if reconnected && f != nil {
		f()
	}
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			event, err := ParseOrderEvent(message)
			if err != nil {
				// События — лишь подсказки к перезагрузке; битое сообщение не должно
				// останавливать партицию.
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Warn("skipping malformed order event")
			} else {
				c.dispatch(event)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) dispatch(event domain.PushEvent) {
	c.mu.Lock()
	handler := c.handlers[strings.ToLower(event.Name)]
	c.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func (c *Consumer) markLost(err error) {
	c.mu.Lock()
	c.lost = true
	f := c.onReconnecting
	c.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func (c *Consumer) fireClosed(err error) {
	c.mu.Lock()
	f := c.onClosed
	c.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func retryBackoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= defaultRetryMaxDelay {
			return defaultRetryMaxDelay
		}
	}
	return delay
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	_ domain.PushChannel    = (*Channel)(nil)
	_ domain.PushConnection = (*Consumer)(nil)
)
