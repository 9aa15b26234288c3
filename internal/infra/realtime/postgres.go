package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

const reconnectDelay = time.Second

// PostgresFeed доставляет изменения строк через LISTEN/NOTIFY.
// Каждая подписка занимает отдельное соединение пула.
type PostgresFeed struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresFeed создаёт ленту изменений поверх пула.
func NewPostgresFeed(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresFeed {
	return &PostgresFeed{pool: pool, log: logger.With().Str("component", "realtime_pg").Logger()}
}

// Subscribe начинает слушать изменения таблицы. Канал закрывается после отмены ctx.
func (f *PostgresFeed) Subscribe(ctx context.Context, table string) (<-chan domain.ChangeEvent, error) {
	conn, err := f.listen(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.ChangeEvent, 16)
	go f.loop(ctx, conn, table, out)
	return out, nil
}

func (f *PostgresFeed) listen(ctx context.Context) (*pgxpool.Conn, error) {
	start := time.Now()
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "listen", Channel, start, err)
		return nil, err
	}
	_, err = conn.Exec(ctx, "LISTEN "+Channel)
	metrics.ObserveNetworkRequest("postgres", "listen", Channel, start, err)
	if err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

func (f *PostgresFeed) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		// соединение со слушателем нельзя возвращать в пул
		_ = conn.Hijack().Close(ctx)
		return
	}
	conn.Release()
}

func (f *PostgresFeed) loop(ctx context.Context, conn *pgxpool.Conn, table string, out chan<- domain.ChangeEvent) {
	defer close(out)
	log := f.log.With().Str("table", table).Logger()
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			f.release(conn)
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("соединение слушателя потеряно, переподключение")
			conn = f.reconnect(ctx, log)
			if conn == nil {
				return
			}
			continue
		}
		ev, err := decode(n.Payload)
		if err != nil {
			log.Error().Err(err).Msg("некорректное уведомление")
			continue
		}
		if ev.Table != table {
			continue
		}
		metrics.FeedEvents.WithLabelValues(ev.Table, string(ev.Op)).Inc()
		select {
		case out <- ev:
		case <-ctx.Done():
			f.release(conn)
			return
		}
	}
}

func (f *PostgresFeed) reconnect(ctx context.Context, log zerolog.Logger) *pgxpool.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
		conn, err := f.listen(ctx)
		if err == nil {
			log.Info().Msg("слушатель переподключён")
			return conn
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.Warn().Err(err).Msg("не удалось переподключить слушателя")
	}
}
