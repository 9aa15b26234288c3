package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleOn(t *testing.T) {
	today := "2026-02-20"
	published := Devotional{Status: StatusPublished, Date: "2026-02-20"}
	assert.True(t, published.VisibleOn(today))

	draft := Devotional{Status: StatusDraft, Date: "2026-02-19"}
	assert.False(t, draft.VisibleOn(today))

	future := Devotional{Status: StatusPublished, Date: "2026-02-21"}
	assert.False(t, future.VisibleOn(today))

	scheduled := Devotional{Status: StatusScheduled, Date: "2026-02-20"}
	assert.False(t, scheduled.VisibleOn(today))
}

func TestToday(t *testing.T) {
	assert.Equal(t, "2026-02-20", Today(time.Date(2026, 2, 20, 23, 59, 0, 0, time.UTC)))
}

func TestReadTime(t *testing.T) {
	assert.Equal(t, 1, ReadTime(""))
	assert.Equal(t, 1, ReadTime("one two three"))
	assert.Equal(t, 2, ReadTime(strings.Repeat("w ", 400)))
	assert.Equal(t, 3, ReadTime(strings.Repeat("w ", 500)))
}

func TestSplitVisible(t *testing.T) {
	items := []Devotional{
		{ID: "a", Status: StatusPublished, Date: "2026-02-18"},
		{ID: "b", Status: StatusDraft, Date: "2026-02-20"},
		{ID: "c", Status: StatusPublished, Date: "2026-02-20"},
		{ID: "d", Status: StatusPublished, Date: "2026-02-25"},
		{ID: "e", Status: StatusPublished, Date: "2026-02-19"},
	}
	first, rest := SplitVisible(items, "2026-02-20")
	require.NotNil(t, first)
	assert.Equal(t, "c", first.ID)
	require.Len(t, rest, 2)
	assert.Equal(t, "e", rest[0].ID)
	assert.Equal(t, "a", rest[1].ID)

	first, rest = SplitVisible([]Devotional{{Status: StatusDraft, Date: "2026-01-01"}}, "2026-02-20")
	assert.Nil(t, first)
	assert.Empty(t, rest)
}

func TestChangeEventTouches(t *testing.T) {
	ev := ChangeEvent{Op: ChangeUpdate, Old: map[string]any{"shared_at": nil}, New: map[string]any{"shared_at": "2026-02-20T10:00:00Z"}}
	assert.True(t, ev.Touches("shared_at"))

	ev = ChangeEvent{Op: ChangeUpdate, Old: map[string]any{"text": "a"}, New: map[string]any{"text": "b", "shared_at": nil}}
	assert.False(t, ev.Touches("shared_at"))

	ev = ChangeEvent{Op: ChangeDelete, Old: map[string]any{"shared_at": "2026-02-20T10:00:00Z"}}
	assert.True(t, ev.Touches("shared_at"))
}
