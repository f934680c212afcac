// Package prefetch дозагружает детали заказов, у которых в списке
// не хватает ключа клиента или позиций.
package prefetch

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/inflight"
	"github.com/vladislavdragonenkov/orderwatch/internal/metrics"
	"github.com/vladislavdragonenkov/orderwatch/internal/reconcile"
)

const (
	defaultConcurrency = 4
	metricKind         = "prefetch"
)

// OrderGetter загружает заказ по id.
type OrderGetter interface {
	GetOrder(ctx context.Context, id string) (domain.OrderPatch, error)
}

// Store представляет коллекцию, в которую сливаются детали.
type Store interface {
	Get(id string) (domain.Order, bool)
	Apply(patch domain.OrderPatch, src reconcile.Source) (domain.Order, bool)
}

// Options задаёт параметры Prefetcher.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.SyncMetrics
	InFlight    *inflight.Set
	Concurrency int
	OnError     func(orderID string, err error)
}

// Option настраивает Prefetcher.
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

// WithInFlight задаёт множество in-flight запросов деталей.
func WithInFlight(set *inflight.Set) Option {
	return func(opts *Options) {
		opts.InFlight = set
	}
}

// WithConcurrency ограничивает число одновременных запросов деталей.
func WithConcurrency(n int) Option {
	return func(opts *Options) {
		opts.Concurrency = n
	}
}

// WithErrorHandler задаёт обработчик ошибок загрузки деталей.
func WithErrorHandler(handler func(orderID string, err error)) Option {
	return func(opts *Options) {
		opts.OnError = handler
	}
}

// Prefetcher дозагружает детали неполных заказов.
type Prefetcher struct {
	api         OrderGetter
	store       Store
	inFlight    *inflight.Set
	concurrency int
	metrics     *metrics.SyncMetrics
	logger      *log.Entry
	onError     func(orderID string, err error)
}

// New создаёт Prefetcher.
func New(api OrderGetter, store Store, options ...Option) *Prefetcher {
	opts := Options{Concurrency: defaultConcurrency}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "detail-prefetcher")
	}
	if opts.InFlight == nil {
		opts.InFlight = inflight.NewSet()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Prefetcher{
		api:         api,
		store:       store,
		inFlight:    opts.InFlight,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		onError:     opts.OnError,
	}
}

// Prefetch загружает детали всех кандидатов и ждёт завершения.
// Возвращает число заказов, в которые были слиты детали.
func (p *Prefetcher) Prefetch(ctx context.Context, orders []domain.Order) int {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)

	results := make(chan bool, len(orders))
	for _, order := range orders {
		if ctx.Err() != nil {
			break
		}
		if current, ok := p.store.Get(order.ID); ok {
			order = current
		}
		if !order.NeedsDetail() {
			continue
		}
		if !p.inFlight.TryAcquire(order.ID) {
			p.metrics.RecordDedupSkip(metricKind)
			continue
		}

		id := order.ID
		group.Go(func() error {
			defer p.inFlight.Release(id)
			results <- p.fetch(groupCtx, id)
			return nil
		})
	}
	_ = group.Wait()
	close(results)

	merged := 0
	for ok := range results {
		if ok {
			merged++
		}
	}
	return merged
}

// PrefetchAsync запускает Prefetch в фоне. Канал закрывается по завершении.
func (p *Prefetcher) PrefetchAsync(ctx context.Context, orders []domain.Order) <-chan struct{} {
	done := make(chan struct{})
	batch := make([]domain.Order, len(orders))
	copy(batch, orders)
	go func() {
		defer close(done)
		p.Prefetch(ctx, batch)
	}()
	return done
}

func (p *Prefetcher) fetch(ctx context.Context, id string) bool {
	patch, err := p.api.GetOrder(ctx, id)
	if err != nil {
		err = fmt.Errorf("prefetch order %s: %w", id, err)
		p.metrics.RecordEnrichment(metricKind, "error")
		p.logger.WithError(err).WithField("order_id", id).Warn("failed to prefetch order detail")
		if p.onError != nil {
			p.onError(id, err)
		}
		return false
	}
	if patch.ID == "" {
		patch.ID = id
	}
	p.metrics.RecordEnrichment(metricKind, "ok")
	_, applied := p.store.Apply(patch, reconcile.SourceDetail)
	return applied
}
