package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"devotional-sync/internal/infra/metrics"
)

// Publisher переводит запланированные девоционалы в опубликованные.
type Publisher interface {
	PublishDue(ctx context.Context, now time.Time) (int64, error)
}

// Locker не даёт нескольким экземплярам публиковать в один и тот же тик.
type Locker interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// Service отвечает за публикацию по расписанию.
type Service struct {
	repo Publisher
	lock Locker
	log  zerolog.Logger
	now  func() time.Time
}

// NewService создаёт сервис. lock может быть nil, если экземпляр один.
func NewService(repo Publisher, lock Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		lock: lock,
		log:  logger.With().Str("component", "publisher").Logger(),
		now:  time.Now,
	}
}

// PublishDue публикует всё, у чего scheduled_at уже наступил.
func (s *Service) PublishDue(ctx context.Context) (int64, error) {
	n, err := s.repo.PublishDue(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("публикация по расписанию: %w", err)
	}
	if n > 0 {
		metrics.DevotionalsPublished.Add(float64(n))
		s.log.Info().Int64("published", n).Msg("запланированные девоционалы опубликованы")
	}
	return n, nil
}

// tick выполняет публикацию под блокировкой, ключ которой совпадает для всех экземпляров в пределах interval.
func (s *Service) tick(ctx context.Context, interval time.Duration) error {
	if s.lock == nil {
		_, err := s.PublishDue(ctx)
		return err
	}
	key := fmt.Sprintf("publish_due:%d", s.now().UTC().Truncate(interval).Unix())
	ran, err := s.lock.Once(ctx, key, interval, func(ctx context.Context) error {
		_, err := s.PublishDue(ctx)
		return err
	})
	if !ran && err == nil {
		s.log.Debug().Str("key", key).Msg("тик выполняет другой экземпляр")
	}
	return err
}

// Run вызывает публикацию сразу и затем на каждом тике, пока ctx не отменён.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.tick(ctx, interval); err != nil {
			s.log.Error().Err(err).Msg("scheduler: ошибка публикации")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
