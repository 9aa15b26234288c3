package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"devotional-sync/internal/adapters/repo"
	"devotional-sync/internal/infra/cache"
	"devotional-sync/internal/infra/config"
	"devotional-sync/internal/infra/db"
	applog "devotional-sync/internal/infra/log"
	"devotional-sync/internal/infra/metrics"
	"devotional-sync/internal/infra/realtime"
	"devotional-sync/internal/usecase/reflections"
	"devotional-sync/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
		logger.Fatal().Err(err).Msg("publisher: не удалось применить миграции")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher: нет подключения к БД")
	}
	defer pool.Close()

	var lock schedule.Locker
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("publisher: нет подключения к Redis")
		}
		defer client.Close()
		lock = cache.NewRedisLock(client)

		if cfg.Feed.Relay {
			relay := realtime.NewRelay(
				realtime.NewPostgresFeed(pool, logger),
				realtime.NewRedisFeed(client, logger),
				[]string{reflections.AnswersTable, realtime.MembersTable},
				logger,
			)
			go func() {
				if err := relay.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("publisher: ретранслятор остановлен")
				}
			}()
		}
	} else if cfg.Feed.Relay {
		logger.Fatal().Msg("publisher: для FEED_RELAY нужен REDIS_ADDR")
	}

	publisher := schedule.NewService(repo.NewPostgres(pool), lock, logger)
	logger.Info().Dur("interval", cfg.PublishInterval()).Msg("publisher: старт")
	publisher.Run(ctx, cfg.PublishInterval())
	logger.Info().Msg("publisher: остановка")
}
