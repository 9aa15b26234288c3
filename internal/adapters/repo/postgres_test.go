package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devotional-sync/internal/domain"
)

func TestMapUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"invite code", &pgconn.PgError{Code: "23505", ConstraintName: "churches_invite_code_key"}, domain.ErrInviteCodeTaken},
		{"second church", &pgconn.PgError{Code: "23505", ConstraintName: "church_members_user_id_key"}, domain.ErrAlreadyMember},
		{"same church twice", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "church_members_pkey"}), domain.ErrAlreadyMember},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, mapUniqueViolation(tc.err), tc.want)
		})
	}
}

func TestMapUniqueViolationPassesOthers(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "church_members_church_id_fkey"}
	require.Same(t, fk, mapUniqueViolation(fk))

	other := &pgconn.PgError{Code: "23505", ConstraintName: "profiles_pkey"}
	require.Same(t, other, mapUniqueViolation(other))

	plain := errors.New("boom")
	require.Equal(t, plain, mapUniqueViolation(plain))
}

func TestPublishDueMovesDateToSchedule(t *testing.T) {
	assert.Contains(t, publishDueSQL, "date=(scheduled_at AT TIME ZONE 'UTC')::date")
	assert.Contains(t, publishDueSQL, "WHERE status='scheduled' AND scheduled_at <= $1")
}
