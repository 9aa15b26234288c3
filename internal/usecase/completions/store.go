package completions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
	"devotional-sync/internal/infra/worker"
)

const storeName = "completions"

// Store хранит прочитанные девоционалы текущего пользователя.
type Store struct {
	repo domain.CompletionRepo
	bg   worker.Submitter
	log  zerolog.Logger
	now  func() time.Time

	mu      sync.Mutex
	userID  string
	gen     uint64
	loading bool
	ids     map[string]struct{}
	stamps  map[string]time.Time
}

// NewStore создаёт хранилище без пользователя.
func NewStore(repo domain.CompletionRepo, bg worker.Submitter, logger zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		bg:     bg,
		log:    logger.With().Str("component", storeName).Logger(),
		now:    time.Now,
		ids:    make(map[string]struct{}),
		stamps: make(map[string]time.Time),
	}
}

// Name возвращает имя хранилища для логов и метрик.
func (s *Store) Name() string { return storeName }

// Reset синхронно очищает кэш и переводит хранилище в загрузку для userID.
func (s *Store) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.userID = userID
	s.loading = userID != ""
	s.ids = make(map[string]struct{})
	s.stamps = make(map[string]time.Time)
	metrics.StoreResets.WithLabelValues(storeName).Inc()
}

// Load загружает отметки пользователя. Результат отбрасывается, если пользователь сменился.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	gen, userID := s.gen, s.userID
	s.mu.Unlock()
	if userID == "" {
		return nil
	}

	start := time.Now()
	items, err := s.repo.ListCompletions(ctx, userID)
	metrics.ObserveStoreLoad(storeName, start, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		metrics.StaleLoadsDiscarded.WithLabelValues(storeName).Inc()
		return nil
	}
	s.loading = false
	if err != nil {
		return fmt.Errorf("загрузка отметок: %w", err)
	}
	for _, c := range items {
		s.ids[c.DevotionalID] = struct{}{}
		s.stamps[c.DevotionalID] = c.CompletedAt
	}
	return nil
}

// Loading сообщает, что первая загрузка для пользователя ещё не завершилась.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsComplete сообщает, прочитан ли девоционал.
func (s *Store) IsComplete(devotionalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[devotionalID]
	return ok
}

// CompletedAt возвращает время прочтения.
func (s *Store) CompletedAt(devotionalID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.stamps[devotionalID]
	return ts, ok
}

// CompletedIDs возвращает отсортированный список прочитанных девоционалов.
func (s *Store) CompletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ToggleComplete переключает отметку и возвращает новое состояние.
// Запись в удалённое хранилище выполняется в фоне и не откатывается при ошибке.
func (s *Store) ToggleComplete(devotionalID string) bool {
	s.mu.Lock()
	userID := s.userID
	_, done := s.ids[devotionalID]
	task := worker.Task{Key: worker.Key(userID, devotionalID)}
	if done {
		delete(s.ids, devotionalID)
		delete(s.stamps, devotionalID)
		task.Op = "completion_delete"
		task.Run = func(ctx context.Context) error {
			return s.repo.DeleteCompletion(ctx, userID, devotionalID)
		}
	} else {
		at := s.now().UTC()
		s.ids[devotionalID] = struct{}{}
		s.stamps[devotionalID] = at
		c := domain.Completion{UserID: userID, DevotionalID: devotionalID, CompletedAt: at}
		task.Op = "completion_insert"
		task.Run = func(ctx context.Context) error {
			return s.repo.InsertCompletion(ctx, c)
		}
	}
	s.mu.Unlock()

	if userID != "" {
		s.bg.Submit(task)
	}
	return !done
}

// Streak считает подряд идущие дни (UTC) с прочтением, заканчивая сегодняшним
// или, если сегодня ничего не прочитано, вчерашним днём.
func (s *Store) Streak(now time.Time) int {
	s.mu.Lock()
	days := make(map[string]struct{}, len(s.stamps))
	for _, ts := range s.stamps {
		days[domain.Today(ts.UTC())] = struct{}{}
	}
	s.mu.Unlock()

	day := now.UTC()
	if _, ok := days[domain.Today(day)]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for {
		if _, ok := days[domain.Today(day)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}
