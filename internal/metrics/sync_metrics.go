package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics содержит метрики синхронизации списка заказов.
// Методы безопасно вызывать на nil-получателе.
type SyncMetrics struct {
	// Загрузки страниц и их длительность
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram

	// Фоновое обогащение и дедупликация
	enrichments *prometheus.CounterVec
	dedupSkips  *prometheus.CounterVec

	// Push-канал
	pushEvents    *prometheus.CounterVec
	listenerState prometheus.Gauge

	reloads   *prometheus.CounterVec
	mutations *prometheus.CounterVec
}

// NewSyncMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewSyncMetrics() *SyncMetrics {
	return NewSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSyncMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		fetches: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderwatch_page_fetches_total",
			Help: "Total number of order page fetches grouped by result",
		}, []string{"result"}),
		fetchDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orderwatch_page_fetch_duration_seconds",
			Help:    "Duration of order page fetches in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		enrichments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderwatch_enrichments_total",
			Help: "Total number of background enrichment requests grouped by kind and result",
		}, []string{"kind", "result"}),
		dedupSkips: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderwatch_inflight_dedup_skips_total",
			Help: "Total number of requests skipped because an identical one was in flight",
		}, []string{"kind"}),
		pushEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderwatch_push_events_total",
			Help: "Total number of push-invalidation events received",
		}, []string{"event"}),
		listenerState: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orderwatch_push_listener_state",
			Help: "Push listener state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting",
		}),
		reloads: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderwatch_reloads_total",
			Help: "Total number of page reloads grouped by reason",
		}, []string{"reason"}),
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderwatch_mutations_total",
			Help: "Total number of order mutations grouped by operation and result",
		}, []string{"op", "result"}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordFetch учитывает загрузку страницы: result — ok, error или superseded.
func (m *SyncMetrics) RecordFetch(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(duration.Seconds())
}

// RecordEnrichment учитывает фоновый запрос: kind — names, prefetch или detail.
func (m *SyncMetrics) RecordEnrichment(kind, result string) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(kind, result).Inc()
}

// RecordDedupSkip учитывает запрос, пропущенный из-за in-flight дубликата.
func (m *SyncMetrics) RecordDedupSkip(kind string) {
	if m == nil {
		return
	}
	m.dedupSkips.WithLabelValues(kind).Inc()
}

// RecordPushEvent учитывает событие push-канала.
func (m *SyncMetrics) RecordPushEvent(event string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(event).Inc()
}

// SetListenerState выставляет числовое состояние слушателя.
func (m *SyncMetrics) SetListenerState(state int) {
	if m == nil {
		return
	}
	m.listenerState.Set(float64(state))
}

// RecordReload учитывает перезагрузку страницы.
func (m *SyncMetrics) RecordReload(reason string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(reason).Inc()
}

// RecordMutation учитывает изменение заказа: op — status или delete.
func (m *SyncMetrics) RecordMutation(op, result string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result).Inc()
}
