package migrations

import (
	"io/fs"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readInit(t *testing.T) string {
	t.Helper()
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	raw, err := fs.ReadFile(FS, names[0])
	require.NoError(t, err)
	return string(raw)
}

func TestEmbeddedMigrations(t *testing.T) {
	sql := readInit(t)
	require.Contains(t, sql, "-- +goose Up")
	require.Contains(t, sql, "-- +goose Down")
	require.Contains(t, sql, "pg_notify('row_changes'")
	assert.Contains(t, sql, "CHECK (status IN ('draft', 'scheduled', 'published', 'archived'))")
}

func TestNotifyPayloadCarriesKeyColumnsOnly(t *testing.T) {
	sql := readInit(t)

	// полные строки не должны попадать в NOTIFY: текст ответа может превысить 8000 байт
	assert.NotContains(t, sql, "row_to_json(OLD)")
	assert.NotContains(t, sql, "row_to_json(NEW)")
	assert.Contains(t, sql, "WHERE key = ANY (TG_ARGV)")

	triggers := regexp.MustCompile(`(?s)CREATE TRIGGER (\w+).*?notify_row_change\(([^)]*)\);`).FindAllStringSubmatch(sql, -1)
	cols := map[string]string{}
	for _, m := range triggers {
		cols[m[1]] = m[2]
	}
	require.Len(t, cols, 2)
	assert.Equal(t, "'user_id', 'devotional_id', 'question_index', 'shared_at'", cols["user_answers_notify"])
	assert.Equal(t, "'church_id', 'user_id', 'role'", cols["church_members_notify"])
	assert.NotContains(t, cols["user_answers_notify"], "'text'")
}
