// Package rest реализует domain.OrderAPI поверх REST-бэкенда заказов.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/version"
)

const (
	defaultBaseURL   = "http://127.0.0.1:8080/api"
	defaultTimeout   = 15 * time.Second
	defaultBaseDelay = 100 * time.Millisecond
	defaultMaxDelay  = 2 * time.Second

	headerTenant        = "X-Enterprise-Id"
	headerCorrelationID = "X-Correlation-Id"
)

// HTTPError описывает неуспешный ответ бэкенда.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// APIError — бэкенд ответил 2xx, но конверт содержит ok=false.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "request failed"
	}
	return e.Message
}

// Credentials отдаёт актуальные токен и tenant сессии.
type Credentials interface {
	Token() string
	TenantID() string
}

// Options задаёт параметры клиента.
type Options struct {
	BaseURL  string
	Token    string
	TenantID string
	// Credentials, если задан, читается на каждом запросе вместо Token и TenantID.
	Credentials Credentials
	HTTPClient  *http.Client
	// MaxRetries применяется только к идемпотентным GET-запросам.
	// 0 — без автоматических повторов.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *log.Entry
}

// Client представляет REST-клиент, он создаётся один раз на аутентифицированную сессию.
type Client struct {
	baseURL    string
	token      string
	tenantID   string
	creds      Credentials
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *log.Entry
}

// NewClient создаёт клиента.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "rest-client")
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		tenantID:   strings.TrimSpace(opts.TenantID),
		creds:      opts.Credentials,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger,
	}
}

func (c *Client) credentials() (token, tenantID string) {
	if c.creds == nil {
		return c.token, c.tenantID
	}
	return strings.TrimSpace(c.creds.Token()), strings.TrimSpace(c.creds.TenantID())
}

// ListOrders запрашивает одну страницу заказов.
func (c *Client) ListOrders(ctx context.Context, query domain.ListQuery) ([]domain.OrderPatch, error) {
	if query.Page < 1 {
		return nil, domain.ErrInvalidPage
	}
	if query.PageSize <= 0 {
		return nil, domain.ErrInvalidPageSize
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(query.Page))
	q.Set("pageSize", strconv.Itoa(query.PageSize))
	q.Set("descending", strconv.FormatBool(query.Descending))
	filter := query.Filter
	if filter.ActiveOnly != nil {
		q.Set("active", strconv.FormatBool(*filter.ActiveOnly))
	}
	if filter.From != nil {
		q.Set("from", filter.From.Format(time.RFC3339))
	}
	if filter.To != nil {
		q.Set("to", filter.To.Format(time.RFC3339))
	}

	data, err := c.doJSON(ctx, http.MethodGet, "/orders?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := decodeOrderList(data)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder возвращает заказ по id.
func (c *Client) GetOrder(ctx context.Context, id string) (domain.OrderPatch, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/orders/"+url.PathEscape(strings.TrimSpace(id)), nil)
	if err != nil {
		if isNotFound(err) {
			return domain.OrderPatch{}, fmt.Errorf("get order %s: %w", id, errors.Join(domain.ErrOrderNotFound, err))
		}
		return domain.OrderPatch{}, fmt.Errorf("get order %s: %w", id, err)
	}
	order, err := decodeOrder(data)
	if err != nil {
		return domain.OrderPatch{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return order, nil
}

// UpdateOrder отправляет новый статус и позиции заказа.
func (c *Client) UpdateOrder(ctx context.Context, id string, update domain.OrderUpdate) error {
	_, err := c.doJSON(ctx, http.MethodPut, "/orders/"+url.PathEscape(strings.TrimSpace(id)), encodeUpdate(update))
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("update order %s: %w", id, errors.Join(domain.ErrOrderNotFound, err))
		}
		return fmt.Errorf("update order %s: %w", id, err)
	}
	return nil
}

// DeleteOrder удаляет заказ.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/orders/"+url.PathEscape(strings.TrimSpace(id)), nil)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("delete order %s: %w", id, errors.Join(domain.ErrOrderNotFound, err))
		}
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

// GetCustomer возвращает клиента по id.
func (c *Client) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/customers/"+url.PathEscape(strings.TrimSpace(id)), nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Customer{}, fmt.Errorf("get customer %s: %w", id, errors.Join(domain.ErrCustomerNotFound, err))
		}
		return domain.Customer{}, fmt.Errorf("get customer %s: %w", id, err)
	}
	customer, err := decodeCustomer(data)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("get customer %s: %w", id, err)
	}
	return customer, nil
}

// doJSON выполняет запрос и возвращает поле data из конверта ответа.
// С MaxRetries > 0 GET повторяется при сетевых ошибках, 429 и 5xx; запись
// не повторяется никогда.
func (c *Client) doJSON(ctx context.Context, method, requestPath string, body any) (json.RawMessage, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}
	maxRetries := 0
	if method == http.MethodGet {
		maxRetries = c.maxRetries
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return nil, err
		}
		token, tenantID := c.credentials()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if tenantID != "" {
			req.Header.Set(headerTenant, tenantID)
		}
		req.Header.Set(headerCorrelationID, uuid.NewString())
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries && ctx.Err() == nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"method":  method,
					"path":    requestPath,
					"attempt": attempt + 1,
				}).Debug("request failed, retrying")
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			env := decodeEnvelope(payload)
			if !env.OK {
				return nil, &APIError{Message: env.Error}
			}
			return env.Data, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: decodeEnvelope(payload).Error}
	}
}

func isNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ domain.OrderAPI = (*Client)(nil)
