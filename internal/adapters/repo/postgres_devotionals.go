package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

const devotionalColumns = `id::text, title, scripture_reference, scripture_text, body, questions, prayer,
    date::text, read_time_minutes, author_name, status, scheduled_at, created_by, created_at, updated_at`

func scanDevotional(row pgx.Row) (domain.Devotional, error) {
	var d domain.Devotional
	err := row.Scan(&d.ID, &d.Title, &d.ScriptureReference, &d.ScriptureText, &d.Body, &d.Questions, &d.Prayer,
		&d.Date, &d.ReadTimeMinutes, &d.AuthorName, &d.Status, &d.ScheduledAt, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// ListPublished возвращает опубликованные девоционалы с датой не позже today.
func (p *Postgres) ListPublished(ctx context.Context, today string, limit int) ([]domain.Devotional, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+devotionalColumns+`
FROM devotionals
WHERE status='published' AND date <= $1::date
ORDER BY date DESC
LIMIT $2
`, today, limit)
	metrics.ObserveNetworkRequest("postgres", "devotionals_list_published", "devotionals", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Devotional
	for rows.Next() {
		d, err := scanDevotional(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDevotional возвращает девоционал по id или nil.
func (p *Postgres) GetDevotional(ctx context.Context, id string) (*domain.Devotional, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	d, err := scanDevotional(p.pool.QueryRow(ctx, `SELECT `+devotionalColumns+` FROM devotionals WHERE id::text=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "devotionals_get", "devotionals", start, nil)
		return nil, nil
	}
	metrics.ObserveNetworkRequest("postgres", "devotionals_get", "devotionals", start, err)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// InsertDevotional сохраняет новый девоционал.
func (p *Postgres) InsertDevotional(ctx context.Context, d domain.Devotional) (domain.Devotional, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	saved, err := scanDevotional(p.pool.QueryRow(ctx, `
INSERT INTO devotionals (title, scripture_reference, scripture_text, body, questions, prayer, date,
    read_time_minutes, author_name, status, scheduled_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, $12)
RETURNING `+devotionalColumns,
		d.Title, d.ScriptureReference, d.ScriptureText, d.Body, d.Questions, d.Prayer, d.Date,
		d.ReadTimeMinutes, d.AuthorName, d.Status, d.ScheduledAt, d.CreatedBy))
	metrics.ObserveNetworkRequest("postgres", "devotionals_insert", "devotionals", start, err)
	return saved, err
}

// UpdateDevotional перезаписывает содержимое и статус.
func (p *Postgres) UpdateDevotional(ctx context.Context, d domain.Devotional) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE devotionals SET title=$2, scripture_reference=$3, scripture_text=$4, body=$5, questions=$6, prayer=$7,
    date=$8::date, read_time_minutes=$9, author_name=$10, status=$11, scheduled_at=$12, updated_at=now()
WHERE id::text=$1
`, d.ID, d.Title, d.ScriptureReference, d.ScriptureText, d.Body, d.Questions, d.Prayer,
		d.Date, d.ReadTimeMinutes, d.AuthorName, d.Status, d.ScheduledAt)
	metrics.ObserveNetworkRequest("postgres", "devotionals_update", "devotionals", start, err)
	return err
}

// publishDueSQL переводит наступившие публикации в published; дата берётся из scheduled_at (UTC).
const publishDueSQL = `
UPDATE devotionals
SET status='published', date=(scheduled_at AT TIME ZONE 'UTC')::date, updated_at=now()
WHERE status='scheduled' AND scheduled_at <= $1
`

// PublishDue публикует запланированные девоционалы, чьё время наступило.
func (p *Postgres) PublishDue(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, publishDueSQL, now)
	metrics.ObserveNetworkRequest("postgres", "devotionals_publish_due", "devotionals", start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
