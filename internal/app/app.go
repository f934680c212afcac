package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/auth"
	"github.com/vladislavdragonenkov/orderwatch/internal/client/rest"
	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderwatch/internal/health"
	"github.com/vladislavdragonenkov/orderwatch/internal/metrics"
	"github.com/vladislavdragonenkov/orderwatch/internal/push/kafka"
	"github.com/vladislavdragonenkov/orderwatch/internal/push/websocket"
	"github.com/vladislavdragonenkov/orderwatch/internal/service/orderlist"
	"github.com/vladislavdragonenkov/orderwatch/internal/version"
)

// Run монтирует экран списка заказов, отдаёт метрики и health-checks и
// пишет изменения списка в лог до отмены ctx. Смена сессии (перечитанный
// auth из файла конфигурации или истечение токена) передаётся экрану.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	session, err := auth.NewTokenSession(cfg.Auth.Token)
	if err != nil {
		return fmt.Errorf("invalid auth token: %w", err)
	}
	session.SetLoading(cfg.Auth.Loading)

	screen, err := newScreen(cfg, session, metrics.NewSyncMetrics(), logger)
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.Register("order_list", healthcheck.NewScreenChecker(screen))
	if cfg.Push.Transport != TransportNone {
		healthHandler.Register("live_updates", healthcheck.NewListenerChecker(screen))
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	if err := screen.Mount(ctx); err != nil {
		logger.WithError(err).Warn("initial load failed, waiting for push or refresh")
	}

	if cfg.File != "" {
		err := watchAuthFile(ctx, cfg.File, func(authCfg AuthConfig) {
			applyAuth(session, authCfg, logger)
		})
		if err != nil {
			logger.WithError(err).Warn("auth reload disabled")
		}
	}
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		watchSession(ctx, session, screen, logger)
	}()

	watch(ctx, screen, logger)
	<-sessionDone

	if err := screen.Unmount(); err != nil {
		logger.WithError(err).Warn("failed to stop live updates")
	}
	logger.Info("получен сигнал остановки, экран размонтирован")
	return ctx.Err()
}

func newScreen(cfg Config, session *auth.TokenSession, syncMetrics *metrics.SyncMetrics, logger *log.Entry) (*orderlist.Screen, error) {
	activeOnly, err := cfg.List.activeOnly()
	if err != nil {
		return nil, err
	}

	client := rest.NewClient(rest.Options{
		BaseURL:     cfg.API.BaseURL,
		Credentials: session,
		HTTPClient:  &http.Client{Timeout: cfg.API.Timeout},
		MaxRetries:  cfg.API.MaxRetries,
		Logger:      logger.WithField("layer", "rest"),
	})

	return orderlist.NewScreen(orderlist.Dependencies{
		API:         client,
		Session:     session,
		Permissions: auth.Permissions,
		Push:        newPushChannel(cfg.Push, logger),
		Metrics:     syncMetrics,
		Logger:      logger.WithField("layer", "order-list"),
	}, orderlist.Config{
		PageSize:            cfg.List.PageSize,
		Descending:          cfg.List.Descending,
		Filter:              domain.Filter{ActiveOnly: activeOnly},
		PushURL:             cfg.Push.URL,
		EventAliases:        cfg.Push.Events,
		ReloadMinInterval:   cfg.List.ReloadMinInterval,
		PrefetchConcurrency: cfg.Enrich.PrefetchConcurrency,
	}), nil
}

// newPushChannel выбирает транспорт live-обновлений. Для none возвращает nil.
func newPushChannel(cfg PushConfig, logger *log.Entry) domain.PushChannel {
	switch cfg.Transport {
	case TransportWebSocket:
		return websocket.NewChannel(
			websocket.WithLogger(logger.WithField("layer", "push-websocket")),
			websocket.WithMaxReconnectAttempts(cfg.MaxReconnectAttempts),
		)
	case TransportKafka:
		return kafka.NewChannel(kafka.WithMaxReconnectAttempts(cfg.MaxReconnectAttempts))
	default:
		return nil
	}
}

// watch пишет в лог состояние списка после каждого изменения.
func watch(ctx context.Context, screen *orderlist.Screen, logger *log.Entry) {
	changes := screen.Subscribe()
	var lastKey uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}

		entry := logger.WithFields(log.Fields{
			"orders":      len(screen.Orders()),
			"page":        screen.Page(),
			"loading":     screen.Loading(),
			"refresh_key": screen.RefreshKey(),
			"listener":    screen.ListenerState().String(),
		})
		if banner := screen.Banner(); banner != "" {
			entry = entry.WithField("banner", banner)
		}
		if err := screen.Error(); err != nil {
			entry = entry.WithError(err)
		}
		if key := screen.RefreshKey(); key != lastKey {
			lastKey = key
			entry.Info("order list refreshed")
			continue
		}
		entry.Debug("order list changed")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
