// Package fetcher загружает страницы списка заказов и следит за тем,
// чтобы устаревший ответ не перезаписал более свежий.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/metrics"
)

const defaultPageSize = 20

// Lister загружает страницу заказов.
type Lister interface {
	ListOrders(ctx context.Context, query domain.ListQuery) ([]domain.OrderPatch, error)
}

// Replacer принимает загруженную страницу целиком.
type Replacer interface {
	Replace(orders []domain.Order)
}

// Options задаёт параметры Fetcher.
type Options struct {
	PageSize   int
	Descending bool
	Filter     domain.Filter
	Logger     *log.Entry
	Metrics    *metrics.SyncMetrics
}

// Option настраивает Fetcher.
type Option func(*Options)

// WithPageSize задаёт размер страницы.
func WithPageSize(size int) Option {
	return func(opts *Options) {
		opts.PageSize = size
	}
}

// WithDescending задаёт порядок сортировки.
func WithDescending(descending bool) Option {
	return func(opts *Options) {
		opts.Descending = descending
	}
}

// WithFilter задаёт начальный фильтр.
func WithFilter(filter domain.Filter) Option {
	return func(opts *Options) {
		opts.Filter = filter
	}
}

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

// Fetcher держит состояние пагинации и фильтра.
type Fetcher struct {
	api     Lister
	sink    Replacer
	metrics *metrics.SyncMetrics
	logger  *log.Entry

	mu         sync.Mutex
	page       int
	pageSize   int
	descending bool
	filter     domain.Filter
	hasMore    bool
	generation uint64
}

// New создаёт Fetcher, который пишет успешные страницы в sink.
func New(api Lister, sink Replacer, options ...Option) *Fetcher {
	opts := Options{PageSize: defaultPageSize}
	for _, option := range options {
		option(&opts)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "order-fetcher")
	}

	return &Fetcher{
		api:        api,
		sink:       sink,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		page:       1,
		pageSize:   opts.PageSize,
		descending: opts.Descending,
		filter:     opts.Filter,
	}
}

// Load загружает текущую страницу и заменяет ею коллекцию.
// Если за время запроса страница или фильтр сменились, ответ отбрасывается
// с ErrSuperseded. При ошибке коллекция не меняется.
func (f *Fetcher) Load(ctx context.Context) ([]domain.Order, error) {
	f.mu.Lock()
	f.generation++
	generation := f.generation
	query := f.queryLocked()
	f.mu.Unlock()

	started := time.Now()
	patches, err := f.api.ListOrders(ctx, query)

	f.mu.Lock()
	defer f.mu.Unlock()

	if generation != f.generation {
		f.metrics.RecordFetch("superseded", time.Since(started))
		return nil, domain.ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			f.metrics.RecordFetch("superseded", time.Since(started))
			return nil, fmt.Errorf("load page %d: %w", query.Page, errors.Join(domain.ErrSuperseded, err))
		}
		f.metrics.RecordFetch("error", time.Since(started))
		f.logger.WithError(err).WithFields(log.Fields{
			"page":      query.Page,
			"page_size": query.PageSize,
		}).Warn("failed to load orders page")
		return nil, fmt.Errorf("load page %d: %w", query.Page, err)
	}

	orders := make([]domain.Order, 0, len(patches))
	for _, patch := range patches {
		orders = append(orders, patch.Order())
	}
	// Бэкенд не отдаёт общее число записей: полная страница означает,
	// что следующая, вероятно, есть.
	f.hasMore = len(patches) == query.PageSize
	if f.sink != nil {
		f.sink.Replace(orders)
	}
	f.metrics.RecordFetch("ok", time.Since(started))
	f.logger.WithFields(log.Fields{
		"page":     query.Page,
		"count":    len(orders),
		"has_more": f.hasMore,
	}).Debug("orders page loaded")
	return orders, nil
}

// Invalidate делает все выполняющиеся запросы устаревшими.
func (f *Fetcher) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
}

// SetPage переходит на страницу n.
func (f *Fetcher) SetPage(n int) error {
	if n < 1 {
		return domain.ErrInvalidPage
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = n
	f.generation++
	return nil
}

// NextPage переходит на следующую страницу. false — следующей страницы нет.
func (f *Fetcher) NextPage() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasMore {
		return false
	}
	f.page++
	f.generation++
	return true
}

// PrevPage переходит на предыдущую страницу. На первой странице ничего не делает.
func (f *Fetcher) PrevPage() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.page <= 1 {
		return false
	}
	f.page--
	f.generation++
	return true
}

// SetFilter меняет фильтр и возвращает на первую страницу.
func (f *Fetcher) SetFilter(filter domain.Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	f.page = 1
	f.generation++
}

// Page возвращает номер текущей страницы.
func (f *Fetcher) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// HasMore сообщает, есть ли, вероятно, следующая страница.
func (f *Fetcher) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// Query возвращает параметры запроса текущей страницы.
func (f *Fetcher) Query() domain.ListQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryLocked()
}

func (f *Fetcher) queryLocked() domain.ListQuery {
	return domain.ListQuery{
		Page:       f.page,
		PageSize:   f.pageSize,
		Descending: f.descending,
		Filter:     f.filter.Normalize(),
	}
}
