package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"devotional-sync/internal/domain"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.CompletionRepo = (*Postgres)(nil)
	_ domain.PlanRepo       = (*Postgres)(nil)
	_ domain.AnswerRepo     = (*Postgres)(nil)
	_ domain.ChurchRepo     = (*Postgres)(nil)
	_ domain.ProfileRepo    = (*Postgres)(nil)
	_ domain.DevotionalRepo = (*Postgres)(nil)
)

const (
	constraintInviteCode   = "churches_invite_code_key"
	constraintMemberUser   = "church_members_user_id_key"
	constraintMemberPKey   = "church_members_pkey"
	uniqueViolationSQLCode = "23505"
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping проверяет доступность базы.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// mapUniqueViolation переводит нарушения уникальности в доменные ошибки.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationSQLCode {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintInviteCode:
		return domain.ErrInviteCodeTaken
	case constraintMemberUser, constraintMemberPKey:
		return domain.ErrAlreadyMember
	}
	return err
}
