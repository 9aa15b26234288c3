package repo

import (
	"context"
	"time"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

// ListPlans возвращает каталог планов вместе с днями.
func (p *Postgres) ListPlans(ctx context.Context) ([]domain.ReadingPlan, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, description, total_days, created_at
FROM reading_plans ORDER BY created_at, id
`)
	metrics.ObserveNetworkRequest("postgres", "plans_list", "reading_plans", start, err)
	if err != nil {
		return nil, err
	}
	var plans []domain.ReadingPlan
	index := make(map[string]int)
	for rows.Next() {
		var plan domain.ReadingPlan
		if err := rows.Scan(&plan.ID, &plan.Title, &plan.Description, &plan.TotalDays, &plan.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[plan.ID] = len(plans)
		plans = append(plans, plan)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	rows, err = p.pool.Query(ctx, `
SELECT plan_id, day_number, title, passage
FROM reading_plan_days ORDER BY plan_id, day_number
`)
	metrics.ObserveNetworkRequest("postgres", "plan_days_list", "reading_plan_days", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			planID string
			day    domain.ReadingPlanDay
		)
		if err := rows.Scan(&planID, &day.DayNumber, &day.Title, &day.Passage); err != nil {
			return nil, err
		}
		if i, ok := index[planID]; ok {
			plans[i].Days = append(plans[i].Days, day)
		}
	}
	return plans, rows.Err()
}

// ListFollowedPlanIDs возвращает планы, на которые подписан пользователь.
func (p *Postgres) ListFollowedPlanIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT plan_id FROM user_reading_plans WHERE user_id=$1 ORDER BY started_at`, userID)
	metrics.ObserveNetworkRequest("postgres", "plans_followed", "user_reading_plans", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FollowPlan подписывает пользователя на план.
func (p *Postgres) FollowPlan(ctx context.Context, userID, planID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_reading_plans (user_id, plan_id) VALUES ($1, $2)
ON CONFLICT (user_id, plan_id) DO NOTHING
`, userID, planID)
	metrics.ObserveNetworkRequest("postgres", "plans_follow", "user_reading_plans", start, err)
	return err
}

// UnfollowPlan отписывает пользователя. Прогресс по дням сохраняется.
func (p *Postgres) UnfollowPlan(ctx context.Context, userID, planID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM user_reading_plans WHERE user_id=$1 AND plan_id=$2`, userID, planID)
	metrics.ObserveNetworkRequest("postgres", "plans_unfollow", "user_reading_plans", start, err)
	return err
}

// ListPlanCompletions возвращает выполненные дни всех планов пользователя.
func (p *Postgres) ListPlanCompletions(ctx context.Context, userID string) ([]domain.PlanDayCompletion, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT plan_id, day_number, completed_at
FROM reading_plan_completions WHERE user_id=$1
`, userID)
	metrics.ObserveNetworkRequest("postgres", "plan_completions_list", "reading_plan_completions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PlanDayCompletion
	for rows.Next() {
		var c domain.PlanDayCompletion
		if err := rows.Scan(&c.PlanID, &c.DayNumber, &c.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertPlanCompletion отмечает день плана.
func (p *Postgres) InsertPlanCompletion(ctx context.Context, userID string, c domain.PlanDayCompletion) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO reading_plan_completions (user_id, plan_id, day_number, completed_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, plan_id, day_number) DO UPDATE SET completed_at = EXCLUDED.completed_at
`, userID, c.PlanID, c.DayNumber, c.CompletedAt)
	metrics.ObserveNetworkRequest("postgres", "plan_completions_insert", "reading_plan_completions", start, err)
	return err
}

// DeletePlanCompletion снимает отметку дня.
func (p *Postgres) DeletePlanCompletion(ctx context.Context, userID, planID string, day int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM reading_plan_completions WHERE user_id=$1 AND plan_id=$2 AND day_number=$3
`, userID, planID, day)
	metrics.ObserveNetworkRequest("postgres", "plan_completions_delete", "reading_plan_completions", start, err)
	return err
}
