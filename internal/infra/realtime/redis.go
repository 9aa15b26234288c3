package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

// RedisFeed раздаёт изменения через Redis pub/sub, канал на таблицу.
type RedisFeed struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisFeed создаёт ленту изменений поверх клиента Redis.
func NewRedisFeed(client *redis.Client, logger zerolog.Logger) *RedisFeed {
	return &RedisFeed{client: client, log: logger.With().Str("component", "realtime_redis").Logger()}
}

func topic(table string) string {
	return Channel + ":" + table
}

// Publish отправляет событие подписчикам таблицы.
func (f *RedisFeed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = f.client.Publish(ctx, topic(ev.Table), payload).Err()
	metrics.ObserveNetworkRequest("redis", "publish", topic(ev.Table), start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe подписывается на канал таблицы. Канал событий закрывается после отмены ctx.
func (f *RedisFeed) Subscribe(ctx context.Context, table string) (<-chan domain.ChangeEvent, error) {
	ps := f.client.Subscribe(ctx, topic(table))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic(table), err)
	}
	out := make(chan domain.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decode(msg.Payload)
				if err != nil {
					f.log.Error().Err(err).Msg("некорректное сообщение pub/sub")
					continue
				}
				metrics.FeedEvents.WithLabelValues(ev.Table, string(ev.Op)).Inc()
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Relay пересылает уведомления Postgres в Redis, чтобы подписчики не держали
// по соединению с базой.
type Relay struct {
	src    domain.ChangeFeed
	dst    *RedisFeed
	tables []string
	log    zerolog.Logger
}

// NewRelay создаёт пересылку для перечисленных таблиц.
func NewRelay(src domain.ChangeFeed, dst *RedisFeed, tables []string, logger zerolog.Logger) *Relay {
	return &Relay{src: src, dst: dst, tables: tables, log: logger.With().Str("component", "realtime_relay").Logger()}
}

// Run работает до отмены ctx.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for _, table := range r.tables {
		events, err := r.src.Subscribe(ctx, table)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("relay %s: %w", table, err)
		}
		g.Go(func() error {
			for ev := range events {
				if err := r.dst.Publish(ctx, ev); err != nil {
					r.log.Error().Err(err).Str("table", ev.Table).Msg("ретранслятор: не удалось опубликовать событие")
				}
			}
			return nil
		})
	}
	r.log.Info().Strs("tables", r.tables).Msg("ретранслятор запущен")
	return g.Wait()
}
