package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
)

const churchColumns = `id::text, name, description, invite_code, created_by, created_at`

func scanChurch(row pgx.Row) (*domain.Church, error) {
	var c domain.Church
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.InviteCode, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetMembershipByUser возвращает членство пользователя или nil.
func (p *Postgres) GetMembershipByUser(ctx context.Context, userID string) (*domain.Membership, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var m domain.Membership
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT church_id::text, user_id, role, joined_at FROM church_members WHERE user_id=$1
`, userID).Scan(&m.ChurchID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "members_get_by_user", "church_members", start, nil)
		return nil, nil
	}
	metrics.ObserveNetworkRequest("postgres", "members_get_by_user", "church_members", start, err)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetChurch возвращает общину или nil.
func (p *Postgres) GetChurch(ctx context.Context, churchID string) (*domain.Church, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	c, err := scanChurch(p.pool.QueryRow(ctx, `SELECT `+churchColumns+` FROM churches WHERE id::text=$1`, churchID))
	metrics.ObserveNetworkRequest("postgres", "churches_get", "churches", start, err)
	return c, err
}

// FindChurchByInviteCode ищет общину по коду приглашения.
func (p *Postgres) FindChurchByInviteCode(ctx context.Context, code string) (*domain.Church, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	c, err := scanChurch(p.pool.QueryRow(ctx, `SELECT `+churchColumns+` FROM churches WHERE invite_code=$1`, code))
	metrics.ObserveNetworkRequest("postgres", "churches_find_by_code", "churches", start, err)
	return c, err
}

// InsertChurch создаёт общину. Коллизия кода возвращает domain.ErrInviteCodeTaken.
func (p *Postgres) InsertChurch(ctx context.Context, church domain.Church) (domain.Church, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	created, err := scanChurch(p.pool.QueryRow(ctx, `
INSERT INTO churches (id, name, description, invite_code, created_by)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
RETURNING `+churchColumns,
		church.ID, church.Name, church.Description, church.InviteCode, church.CreatedBy))
	metrics.ObserveNetworkRequest("postgres", "churches_insert", "churches", start, err)
	if err != nil {
		return domain.Church{}, mapUniqueViolation(err)
	}
	return *created, nil
}

// UpdateChurch меняет название и описание.
func (p *Postgres) UpdateChurch(ctx context.Context, churchID, name, description string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE churches SET name=$2, description=$3 WHERE id::text=$1`, churchID, name, description)
	metrics.ObserveNetworkRequest("postgres", "churches_update", "churches", start, err)
	return err
}

// InsertMember добавляет участника. Второе членство возвращает domain.ErrAlreadyMember.
func (p *Postgres) InsertMember(ctx context.Context, m domain.Membership) (domain.Membership, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO church_members (church_id, user_id, role)
VALUES ($1::uuid, $2, $3)
RETURNING church_id::text, user_id, role, joined_at
`, m.ChurchID, m.UserID, m.Role).Scan(&m.ChurchID, &m.UserID, &m.Role, &m.JoinedAt)
	metrics.ObserveNetworkRequest("postgres", "members_insert", "church_members", start, err)
	if err != nil {
		return domain.Membership{}, mapUniqueViolation(err)
	}
	return m, nil
}

// DeleteMember удаляет участника из общины.
func (p *Postgres) DeleteMember(ctx context.Context, churchID, userID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM church_members WHERE church_id::text=$1 AND user_id=$2`, churchID, userID)
	metrics.ObserveNetworkRequest("postgres", "members_delete", "church_members", start, err)
	return err
}

// ListMembers возвращает участников общины.
func (p *Postgres) ListMembers(ctx context.Context, churchID string) ([]domain.Membership, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT church_id::text, user_id, role, joined_at FROM church_members WHERE church_id::text=$1
`, churchID)
	metrics.ObserveNetworkRequest("postgres", "members_list", "church_members", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ChurchID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListDisplayNames возвращает отображаемые имена по идентификаторам пользователей.
func (p *Postgres) ListDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT user_id, display_name FROM profiles WHERE user_id = ANY($1)`, userIDs)
	metrics.ObserveNetworkRequest("postgres", "profiles_display_names", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
