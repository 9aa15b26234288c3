package repo

import (
	"context"
	"time"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

// ListCompletions возвращает отметки о прочтении пользователя.
func (p *Postgres) ListCompletions(ctx context.Context, userID string) ([]domain.Completion, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, devotional_id, completed_at
FROM devotional_completions WHERE user_id=$1
`, userID)
	metrics.ObserveNetworkRequest("postgres", "completions_list", "devotional_completions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Completion
	for rows.Next() {
		var c domain.Completion
		if err := rows.Scan(&c.UserID, &c.DevotionalID, &c.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCompletion сохраняет отметку; повторная вставка обновляет время.
func (p *Postgres) InsertCompletion(ctx context.Context, c domain.Completion) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO devotional_completions (user_id, devotional_id, completed_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, devotional_id) DO UPDATE SET completed_at = EXCLUDED.completed_at
`, c.UserID, c.DevotionalID, c.CompletedAt)
	metrics.ObserveNetworkRequest("postgres", "completions_insert", "devotional_completions", start, err)
	return err
}

// DeleteCompletion снимает отметку.
func (p *Postgres) DeleteCompletion(ctx context.Context, userID, devotionalID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM devotional_completions WHERE user_id=$1 AND devotional_id=$2`, userID, devotionalID)
	metrics.ObserveNetworkRequest("postgres", "completions_delete", "devotional_completions", start, err)
	return err
}
