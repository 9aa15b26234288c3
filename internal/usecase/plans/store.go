package plans

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
	"devotional-sync/internal/infra/worker"
)

const storeName = "plans"

type progress struct {
	days   map[int]struct{}
	stamps map[int]time.Time
}

func newProgress() *progress {
	return &progress{days: make(map[int]struct{}), stamps: make(map[int]time.Time)}
}

// Store хранит подписки на планы чтения и прогресс по дням.
type Store struct {
	repo domain.PlanRepo
	bg   worker.Submitter
	log  zerolog.Logger
	now  func() time.Time

	mu       sync.Mutex
	userID   string
	gen      uint64
	loading  bool
	followed map[string]struct{}
	plans    map[string]*progress
}

// NewStore создаёт хранилище без пользователя.
func NewStore(repo domain.PlanRepo, bg worker.Submitter, logger zerolog.Logger) *Store {
	return &Store{
		repo:     repo,
		bg:       bg,
		log:      logger.With().Str("component", storeName).Logger(),
		now:      time.Now,
		followed: make(map[string]struct{}),
		plans:    make(map[string]*progress),
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
	s.followed = make(map[string]struct{})
	s.plans = make(map[string]*progress)
	metrics.StoreResets.WithLabelValues(storeName).Inc()
}

// Load загружает подписки и выполненные дни.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	gen, userID := s.gen, s.userID
	s.mu.Unlock()
	if userID == "" {
		return nil
	}

	start := time.Now()
	followed, err := s.repo.ListFollowedPlanIDs(ctx, userID)
	var done []domain.PlanDayCompletion
	if err == nil {
		done, err = s.repo.ListPlanCompletions(ctx, userID)
	}
	metrics.ObserveStoreLoad(storeName, start, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		metrics.StaleLoadsDiscarded.WithLabelValues(storeName).Inc()
		return nil
	}
	s.loading = false
	if err != nil {
		return fmt.Errorf("загрузка планов: %w", err)
	}
	for _, id := range followed {
		s.followed[id] = struct{}{}
	}
	for _, c := range done {
		p := s.progressLocked(c.PlanID)
		p.days[c.DayNumber] = struct{}{}
		p.stamps[c.DayNumber] = c.CompletedAt
	}
	return nil
}

// Loading сообщает, что первая загрузка для пользователя ещё не завершилась.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) progressLocked(planID string) *progress {
	p, ok := s.plans[planID]
	if !ok {
		p = newProgress()
		s.plans[planID] = p
	}
	return p
}

// Catalog возвращает все доступные планы чтения.
func (s *Store) Catalog(ctx context.Context) ([]domain.ReadingPlan, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("каталог планов: %w", err)
	}
	return plans, nil
}

// ActivePlans фильтрует каталог по подпискам пользователя, сохраняя порядок.
func (s *Store) ActivePlans(catalog []domain.ReadingPlan) []domain.ReadingPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ReadingPlan
	for _, p := range catalog {
		if _, ok := s.followed[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// FollowPlan подписывает пользователя на план.
func (s *Store) FollowPlan(planID string) {
	s.mu.Lock()
	userID := s.userID
	s.followed[planID] = struct{}{}
	s.mu.Unlock()

	s.submit(userID, worker.Task{Op: "plan_follow", Key: worker.Key(userID, "follow", planID), Run: func(ctx context.Context) error {
		return s.repo.FollowPlan(ctx, userID, planID)
	}})
}

// UnfollowPlan отписывает пользователя от плана. Прогресс по дням сохраняется.
func (s *Store) UnfollowPlan(planID string) {
	s.mu.Lock()
	userID := s.userID
	delete(s.followed, planID)
	s.mu.Unlock()

	s.submit(userID, worker.Task{Op: "plan_unfollow", Key: worker.Key(userID, "follow", planID), Run: func(ctx context.Context) error {
		return s.repo.UnfollowPlan(ctx, userID, planID)
	}})
}

// IsFollowing сообщает, подписан ли пользователь на план.
func (s *Store) IsFollowing(planID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.followed[planID]
	return ok
}

// IsDayComplete сообщает, выполнен ли день плана.
func (s *Store) IsDayComplete(planID string, day int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return false
	}
	_, done := p.days[day]
	return done
}

// ToggleDay переключает выполнение дня и возвращает новое состояние.
func (s *Store) ToggleDay(planID string, day int) bool {
	s.mu.Lock()
	userID := s.userID
	p := s.progressLocked(planID)
	_, done := p.days[day]
	task := worker.Task{Key: worker.Key(userID, "day", planID, strconv.Itoa(day))}
	if done {
		delete(p.days, day)
		delete(p.stamps, day)
		task.Op = "plan_day_delete"
		task.Run = func(ctx context.Context) error {
			return s.repo.DeletePlanCompletion(ctx, userID, planID, day)
		}
	} else {
		at := s.now().UTC()
		p.days[day] = struct{}{}
		p.stamps[day] = at
		c := domain.PlanDayCompletion{PlanID: planID, DayNumber: day, CompletedAt: at}
		task.Op = "plan_day_insert"
		task.Run = func(ctx context.Context) error {
			return s.repo.InsertPlanCompletion(ctx, userID, c)
		}
	}
	s.mu.Unlock()

	s.submit(userID, task)
	return !done
}

// CompletedCount возвращает число выполненных дней плана.
func (s *Store) CompletedCount(planID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.plans[planID]; ok {
		return len(p.days)
	}
	return 0
}

// CompletedDays возвращает выполненные дни по возрастанию.
func (s *Store) CompletedDays(planID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(p.days))
	for d := range p.days {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// CompletedDayAt возвращает время выполнения дня.
func (s *Store) CompletedDayAt(planID string, day int) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return time.Time{}, false
	}
	ts, ok := p.stamps[day]
	return ts, ok
}

// CurrentDay возвращает наименьший невыполненный день из [1, totalDays].
// Если выполнены все дни, возвращает totalDays.
func (s *Store) CurrentDay(planID string, totalDays int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if totalDays < 1 {
		return 1
	}
	p := s.plans[planID]
	for day := 1; day <= totalDays; day++ {
		if p == nil {
			return day
		}
		if _, done := p.days[day]; !done {
			return day
		}
	}
	return totalDays
}

func (s *Store) submit(userID string, task worker.Task) {
	if userID == "" {
		return
	}
	s.bg.Submit(task)
}
