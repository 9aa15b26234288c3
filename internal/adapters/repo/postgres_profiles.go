package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

// GetProfile возвращает профиль или nil, если строки ещё нет.
func (p *Postgres) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var pr domain.Profile
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, role, church_code, display_name, reading_goal, notify_enabled, notify_time, updated_at
FROM profiles WHERE user_id=$1
`, userID).Scan(&pr.UserID, &pr.Role, &pr.ChurchCode, &pr.Preferences.DisplayName, &pr.Preferences.ReadingGoal,
		&pr.Preferences.NotifyEnabled, &pr.Preferences.NotifyTime, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "profiles_get", "profiles", start, nil)
		return nil, nil
	}
	metrics.ObserveNetworkRequest("postgres", "profiles_get", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// UpdatePreferences сохраняет поля онбординга и уведомлений.
func (p *Postgres) UpdatePreferences(ctx context.Context, userID string, prefs domain.Preferences) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO profiles (user_id, display_name, reading_goal, notify_enabled, notify_time, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name,
    reading_goal = EXCLUDED.reading_goal,
    notify_enabled = EXCLUDED.notify_enabled,
    notify_time = EXCLUDED.notify_time,
    updated_at = now()
`, userID, prefs.DisplayName, prefs.ReadingGoal, prefs.NotifyEnabled, prefs.NotifyTime)
	metrics.ObserveNetworkRequest("postgres", "profiles_update_preferences", "profiles", start, err)
	return err
}

// SetChurchCode обновляет кэш кода общины в профиле. Пустая строка очищает его.
func (p *Postgres) SetChurchCode(ctx context.Context, userID, code string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO profiles (user_id, church_code, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET church_code = EXCLUDED.church_code, updated_at = now()
`, userID, code)
	metrics.ObserveNetworkRequest("postgres", "profiles_set_church_code", "profiles", start, err)
	return err
}
