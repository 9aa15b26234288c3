package repo

import (
	"context"
	"time"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

// communityLimit ограничивает выборку ленты общины.
const communityLimit = 200

// ListAnswers возвращает все ответы пользователя.
func (p *Postgres) ListAnswers(ctx context.Context, userID string) ([]domain.Answer, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, devotional_id, question_index, text, share, shared_at, updated_at
FROM user_answers WHERE user_id=$1
`, userID)
	metrics.ObserveNetworkRequest("postgres", "answers_list", "user_answers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.UserID, &a.DevotionalID, &a.QuestionIndex, &a.Text, &a.Share, &a.SharedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAnswer сохраняет текст и флаг публикации. shared_at не меняется.
func (p *Postgres) UpsertAnswer(ctx context.Context, a domain.Answer) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_answers (user_id, devotional_id, question_index, text, share, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (user_id, devotional_id, question_index)
DO UPDATE SET text = EXCLUDED.text, share = EXCLUDED.share, updated_at = now()
`, a.UserID, a.DevotionalID, a.QuestionIndex, a.Text, a.Share)
	metrics.ObserveNetworkRequest("postgres", "answers_upsert", "user_answers", start, err)
	return err
}

// ShareAnswer публикует ответ вместе с полями автора. Уже проставленный shared_at не перезаписывается.
func (p *Postgres) ShareAnswer(ctx context.Context, a domain.SharedAnswer) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	sharedAt := time.Now().UTC()
	if a.SharedAt != nil {
		sharedAt = *a.SharedAt
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_answers (user_id, devotional_id, question_index, text, share, shared_at,
    author_name, author_initials, devotional_title, question, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (user_id, devotional_id, question_index)
DO UPDATE SET text = EXCLUDED.text,
    share = EXCLUDED.share,
    shared_at = COALESCE(user_answers.shared_at, EXCLUDED.shared_at),
    author_name = EXCLUDED.author_name,
    author_initials = EXCLUDED.author_initials,
    devotional_title = EXCLUDED.devotional_title,
    question = EXCLUDED.question,
    updated_at = now()
`, a.UserID, a.DevotionalID, a.QuestionIndex, a.Text, a.Share, sharedAt,
		a.Meta.AuthorName, a.Meta.AuthorInitials, a.Meta.DevotionalTitle, a.Meta.Question)
	metrics.ObserveNetworkRequest("postgres", "answers_share", "user_answers", start, err)
	return err
}

// ListCommunity возвращает опубликованные ответы участников общины пользователя и его собственные.
func (p *Postgres) ListCommunity(ctx context.Context, userID string) ([]domain.CommunityEntry, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT a.user_id, a.author_name, a.author_initials, a.devotional_id, a.devotional_title,
    a.question_index, a.question, a.text, a.shared_at
FROM user_answers a
WHERE a.shared_at IS NOT NULL
  AND (a.user_id = $1 OR a.user_id IN (
      SELECT m.user_id FROM church_members m
      WHERE m.church_id = (SELECT church_id FROM church_members WHERE user_id = $1)))
ORDER BY a.shared_at DESC
LIMIT $2
`, userID, communityLimit)
	metrics.ObserveNetworkRequest("postgres", "answers_community", "user_answers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CommunityEntry
	for rows.Next() {
		var e domain.CommunityEntry
		if err := rows.Scan(&e.AuthorID, &e.AuthorName, &e.AuthorInitials, &e.DevotionalID, &e.DevotionalTitle,
			&e.QuestionIndex, &e.Question, &e.Text, &e.SharedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
