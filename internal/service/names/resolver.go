package names

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/inflight"
	"github.com/vladislavdragonenkov/orderwatch/internal/metrics"
	"github.com/vladislavdragonenkov/orderwatch/internal/reconcile"
)

const metricKind = "names"

// CustomerGetter загружает клиента по ключу.
type CustomerGetter interface {
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
}

// Store представляет коллекцию, в которую resolver пишет найденные имена.
type Store interface {
	Get(id string) (domain.Order, bool)
	Apply(patch domain.OrderPatch, src reconcile.Source) (domain.Order, bool)
}

// ErrorHandler получает ошибку разрешения имени для конкретного заказа.
type ErrorHandler func(orderID string, err error)

// Options задаёт параметры Resolver.
type Options struct {
	Logger   *log.Entry
	Metrics  *metrics.SyncMetrics
	InFlight *inflight.Set
	OnError  ErrorHandler
}

// Option настраивает Resolver.
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

// WithInFlight задаёт общее множество in-flight запросов имён.
func WithInFlight(set *inflight.Set) Option {
	return func(opts *Options) {
		opts.InFlight = set
	}
}

// WithErrorHandler задаёт обработчик ошибок загрузки клиента.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(opts *Options) {
		opts.OnError = handler
	}
}

// Resolver подставляет имена клиентов вместо id-заглушек.
type Resolver struct {
	api       CustomerGetter
	store     Store
	directory *Directory
	inFlight  *inflight.Set
	group     singleflight.Group
	metrics   *metrics.SyncMetrics
	logger    *log.Entry
	onError   ErrorHandler
}

// NewResolver создаёт resolver поверх справочника и коллекции.
func NewResolver(api CustomerGetter, store Store, directory *Directory, options ...Option) *Resolver {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "name-resolver")
	}
	if opts.InFlight == nil {
		opts.InFlight = inflight.NewSet()
	}
	if directory == nil {
		directory = NewDirectory()
	}

	return &Resolver{
		api:       api,
		store:     store,
		directory: directory,
		inFlight:  opts.InFlight,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		onError:   opts.OnError,
	}
}

// Directory возвращает справочник клиентов.
func (r *Resolver) Directory() *Directory {
	return r.directory
}

// Resolve последовательно обрабатывает кандидатов и возвращает число
// заказов, получивших имя. Ошибка по одному заказу не прерывает пакет.
func (r *Resolver) Resolve(ctx context.Context, orders []domain.Order) int {
	resolved := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return resolved
		}
		if r.resolveOne(ctx, order) {
			resolved++
		}
	}
	return resolved
}

// ResolveAsync запускает Resolve в фоне. Канал закрывается по завершении пакета.
func (r *Resolver) ResolveAsync(ctx context.Context, orders []domain.Order) <-chan struct{} {
	done := make(chan struct{})
	batch := make([]domain.Order, len(orders))
	copy(batch, orders)
	go func() {
		defer close(done)
		r.Resolve(ctx, batch)
	}()
	return done
}

func (r *Resolver) resolveOne(ctx context.Context, order domain.Order) bool {
	// Коллекция могла обновиться, пока пакет ждал своей очереди.
	if current, ok := r.store.Get(order.ID); ok {
		order = current
	}
	if !order.NeedsCustomerName() {
		return false
	}
	ref := order.CustomerRef()

	if customer, ok := r.directory.Lookup(ref); ok {
		r.metrics.RecordEnrichment(metricKind, "cache_hit")
		_, applied := r.store.Apply(domain.CustomerPatch(order.ID, customer), reconcile.SourceNameLookup)
		return applied
	}

	if !r.inFlight.TryAcquire(order.ID) {
		r.metrics.RecordDedupSkip(metricKind)
		return false
	}
	customer, err := r.lookup(ctx, ref)
	r.inFlight.Release(order.ID)
	if err != nil {
		r.metrics.RecordEnrichment(metricKind, "error")
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id":    order.ID,
			"customer_id": ref,
		}).Warn("failed to resolve customer name")
		if r.onError != nil {
			r.onError(order.ID, err)
		}
		return false
	}

	r.metrics.RecordEnrichment(metricKind, "ok")
	_, applied := r.store.Apply(domain.CustomerPatch(order.ID, customer), reconcile.SourceNameLookup)
	return applied
}

// lookup схлопывает одновременные запросы одного и того же клиента.
func (r *Resolver) lookup(ctx context.Context, ref string) (domain.Customer, error) {
	value, err, _ := r.group.Do(domain.Key(ref), func() (any, error) {
		if cached, ok := r.directory.Lookup(ref); ok {
			return cached, nil
		}
		customer, err := r.api.GetCustomer(ctx, ref)
		if err != nil {
			return nil, err
		}
		if customer.ID == "" {
			customer.ID = ref
		}
		r.directory.Add(customer)
		return customer, nil
	})
	if err != nil {
		return domain.Customer{}, fmt.Errorf("get customer %s: %w", ref, err)
	}
	return value.(domain.Customer), nil
}
