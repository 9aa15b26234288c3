package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"devotional-sync/internal/adapters/httpapi"
	"devotional-sync/internal/adapters/repo"
	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/cache"
	"devotional-sync/internal/infra/config"
	"devotional-sync/internal/infra/db"
	httpinfra "devotional-sync/internal/infra/http"
	"devotional-sync/internal/infra/localstore"
	applog "devotional-sync/internal/infra/log"
	"devotional-sync/internal/infra/metrics"
	"devotional-sync/internal/infra/netwatch"
	"devotional-sync/internal/infra/realtime"
	"devotional-sync/internal/infra/worker"
	"devotional-sync/internal/usecase/church"
	"devotional-sync/internal/usecase/completions"
	"devotional-sync/internal/usecase/devotionals"
	"devotional-sync/internal/usecase/plans"
	"devotional-sync/internal/usecase/profile"
	"devotional-sync/internal/usecase/reflections"
	"devotional-sync/internal/usecase/session"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("devotiond: не указан JWT_SECRET")
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
			logger.Fatal().Err(err).Msg("devotiond: не удалось применить миграции")
		}
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("devotiond: нет подключения к БД")
	}
	defer pool.Close()

	local, err := localstore.Open(ctx, cfg.LocalStorePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("devotiond: локальное хранилище недоступно")
	}
	defer local.Close()

	var feed domain.ChangeFeed
	switch cfg.Feed.Backend {
	case "redis":
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("devotiond: нет подключения к Redis")
		}
		defer client.Close()
		feed = realtime.NewRedisFeed(client, logger)
	case "postgres":
		feed = realtime.NewPostgresFeed(pool, logger)
	default:
		logger.Fatal().Str("backend", cfg.Feed.Backend).Msg("devotiond: неизвестный FEED_BACKEND")
	}

	repoAdapter := repo.NewPostgres(pool)
	bg := worker.NewPool(cfg.Sync.Workers, cfg.Sync.QueueSize, logger)

	completionStore := completions.NewStore(repoAdapter, bg, logger)
	planStore := plans.NewStore(repoAdapter, bg, logger)
	reflectionStore := reflections.NewStore(repoAdapter, feed, bg, cfg.Debounce(), logger)
	churchStore := church.NewStore(repoAdapter, repoAdapter, bg, logger)
	profileService := profile.NewService(repoAdapter, local, bg, logger)
	gate := session.NewGate(logger, completionStore, reflectionStore, planStore, churchStore, profileService)

	observer := netwatch.NewObserver(repoAdapter, cfg.PingInterval(), logger)
	go observer.Run(ctx)

	server := httpinfra.NewServer(logger)
	httpapi.New(httpapi.Deps{
		Session:     gate,
		Completions: completionStore,
		Plans:       planStore,
		Reflections: reflectionStore,
		Church:      churchStore,
		Profile:     profileService,
		Devotionals: devotionals.NewService(repoAdapter, logger),
		Online:      observer.Online,
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		Log:         logger,
	}).Routes(server.Router)

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("devotiond: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("devotiond: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	gate.Close()
	bg.Shutdown()
}
