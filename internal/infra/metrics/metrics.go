package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	StoreResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_resets_total",
		Help: "Сбросы состояния хранилищ при смене пользователя",
	}, []string{"store"})

	StoreLoadSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_load_seconds",
		Help:    "Время загрузки состояния хранилища",
		Buckets: prometheus.DefBuckets,
	}, []string{"store", "status"})

	StaleLoadsDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_stale_loads_total",
		Help: "Загрузки, отброшенные после смены пользователя",
	}, []string{"store"})

	BackgroundWriteErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "background_write_errors_total",
		Help: "Ошибки фоновых записей в удалённое хранилище",
	}, []string{"operation"})

	BackgroundTasksDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "background_tasks_dropped_total",
		Help: "Фоновые задачи, отброшенные из-за переполнения очереди",
	})

	DebounceFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "debounce_flushes_total",
		Help: "Сработавшие отложенные записи ответов",
	}, []string{"field"})

	FeedRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "community_feed_refreshes_total",
		Help: "Перезагрузки ленты общины по realtime-событию",
	})

	FeedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "change_feed_events_total",
		Help: "Полученные события изменения строк",
	}, []string{"table", "op"})

	RemoteOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remote_online",
		Help: "Доступность удалённого хранилища (1 — доступно)",
	})

	DevotionalsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devotionals_published_total",
		Help: "Опубликованные по расписанию девоционалы",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		StoreResets,
		StoreLoadSeconds,
		StaleLoadsDiscarded,
		BackgroundWriteErrors,
		BackgroundTasksDropped,
		DebounceFlushes,
		FeedRefreshes,
		FeedEvents,
		RemoteOnline,
		DevotionalsPublished,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveStoreLoad записывает длительность загрузки хранилища.
func ObserveStoreLoad(store string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreLoadSeconds.WithLabelValues(store, status).Observe(time.Since(start).Seconds())
}

// SetOnline выставляет признак доступности удалённого хранилища.
func SetOnline(online bool) {
	if online {
		RemoteOnline.Set(1)
		return
	}
	RemoteOnline.Set(0)
}
