package plans

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/worker"
)

type repoStub struct {
	mu        sync.Mutex
	catalog   []domain.ReadingPlan
	followed  map[string][]string
	completed map[string][]domain.PlanDayCompletion
	calls     []string
}

func (r *repoStub) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *repoStub) ListPlans(ctx context.Context) ([]domain.ReadingPlan, error) {
	return r.catalog, nil
}

func (r *repoStub) ListFollowedPlanIDs(ctx context.Context, userID string) ([]string, error) {
	return r.followed[userID], nil
}

func (r *repoStub) FollowPlan(ctx context.Context, userID, planID string) error {
	r.record("follow:" + planID)
	return nil
}

func (r *repoStub) UnfollowPlan(ctx context.Context, userID, planID string) error {
	r.record("unfollow:" + planID)
	return nil
}

func (r *repoStub) ListPlanCompletions(ctx context.Context, userID string) ([]domain.PlanDayCompletion, error) {
	return r.completed[userID], nil
}

func (r *repoStub) InsertPlanCompletion(ctx context.Context, userID string, c domain.PlanDayCompletion) error {
	r.record("insert:" + c.PlanID)
	return nil
}

func (r *repoStub) DeletePlanCompletion(ctx context.Context, userID, planID string, day int) error {
	r.record("delete:" + planID)
	return nil
}

func newStore(repo *repoStub) *Store {
	return NewStore(repo, worker.Inline{Log: zerolog.Nop()}, zerolog.Nop())
}

func TestCurrentDayOutOfOrder(t *testing.T) {
	s := newStore(&repoStub{})
	s.Reset("u1")

	require.Equal(t, 1, s.CurrentDay("p", 7))

	s.ToggleDay("p", 5)
	require.Equal(t, 1, s.CurrentDay("p", 7))

	for day := 1; day <= 3; day++ {
		s.ToggleDay("p", day)
	}
	require.Equal(t, 4, s.CurrentDay("p", 7))

	s.ToggleDay("p", 2)
	require.Equal(t, 2, s.CurrentDay("p", 7))
}

func TestCurrentDayNeverExceedsTotal(t *testing.T) {
	s := newStore(&repoStub{})
	s.Reset("u1")

	for day := 1; day <= 3; day++ {
		s.ToggleDay("p", day)
		require.LessOrEqual(t, s.CurrentDay("p", 3), 3)
	}
	require.Equal(t, 3, s.CurrentDay("p", 3))
	require.Equal(t, 3, s.CompletedCount("p"))
	require.Equal(t, []int{1, 2, 3}, s.CompletedDays("p"))
}

func TestToggleDayStampsAndWrites(t *testing.T) {
	repo := &repoStub{}
	s := newStore(repo)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	s.Reset("u1")

	require.True(t, s.ToggleDay("p", 1))
	require.True(t, s.IsDayComplete("p", 1))
	at, ok := s.CompletedDayAt("p", 1)
	require.True(t, ok)
	require.Equal(t, fixed, at)

	require.False(t, s.ToggleDay("p", 1))
	_, ok = s.CompletedDayAt("p", 1)
	require.False(t, ok)

	assert.Equal(t, []string{"insert:p", "delete:p"}, repo.calls)
}

func TestFollowAndActivePlans(t *testing.T) {
	catalog := []domain.ReadingPlan{{ID: "a", TotalDays: 3}, {ID: "b", TotalDays: 5}, {ID: "c", TotalDays: 7}}
	repo := &repoStub{catalog: catalog, followed: map[string][]string{"u1": {"c"}}}
	s := newStore(repo)
	s.Reset("u1")
	require.NoError(t, s.Load(context.Background()))

	s.FollowPlan("a")
	require.True(t, s.IsFollowing("a"))

	got, err := s.Catalog(context.Background())
	require.NoError(t, err)
	active := s.ActivePlans(got)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)

	s.UnfollowPlan("a")
	require.False(t, s.IsFollowing("a"))
	assert.Equal(t, []string{"follow:a", "unfollow:a"}, repo.calls)
}

func TestLoadRestoresProgress(t *testing.T) {
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &repoStub{completed: map[string][]domain.PlanDayCompletion{
		"u1": {{PlanID: "p", DayNumber: 1, CompletedAt: at}, {PlanID: "p", DayNumber: 2, CompletedAt: at}},
	}}
	s := newStore(repo)
	s.Reset("u1")
	require.True(t, s.Loading())
	require.NoError(t, s.Load(context.Background()))
	require.False(t, s.Loading())

	require.Equal(t, 3, s.CurrentDay("p", 10))

	s.Reset("u2")
	require.Zero(t, s.CompletedCount("p"))
	require.Equal(t, 1, s.CurrentDay("p", 10))
}

func TestSignedOutWritesNothing(t *testing.T) {
	repo := &repoStub{}
	s := newStore(repo)
	s.Reset("")

	s.ToggleDay("p", 1)
	s.FollowPlan("p")
	require.Empty(t, repo.calls)
}
