package devotionals

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devotional-sync/internal/domain"
)

type repoStub struct {
	items    []domain.Devotional
	inserted []domain.Devotional
	updated  []domain.Devotional
	lastDay  string
}

func (r *repoStub) ListPublished(ctx context.Context, today string, limit int) ([]domain.Devotional, error) {
	r.lastDay = today
	return r.items, nil
}

func (r *repoStub) GetDevotional(ctx context.Context, id string) (*domain.Devotional, error) {
	for _, d := range r.items {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (r *repoStub) InsertDevotional(ctx context.Context, d domain.Devotional) (domain.Devotional, error) {
	d.ID = "new-id"
	r.inserted = append(r.inserted, d)
	return d, nil
}

func (r *repoStub) UpdateDevotional(ctx context.Context, d domain.Devotional) error {
	r.updated = append(r.updated, d)
	return nil
}

func (r *repoStub) PublishDue(ctx context.Context, now time.Time) (int64, error) { return 0, nil }

var fixedNow = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

func newService(repo *repoStub) *Service {
	s := NewService(repo, zerolog.Nop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func validInput() Input {
	return Input{
		Title:              "Morning Light",
		ScriptureReference: "Psalm 5:3",
		ScriptureText:      "In the morning, Lord, you hear my voice.",
		Body:               "Start the day in prayer.",
		Prayer:             "Amen.",
		Questions:          []string{"What will you bring to God today?"},
		Date:               "2026-02-21",
		Status:             domain.StatusPublished,
	}
}

func TestValidate(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	cases := []struct {
		name   string
		mutate func(in *Input)
		want   []string
	}{
		{name: "valid", mutate: func(in *Input) {}},
		{name: "blank title", mutate: func(in *Input) { in.Title = "   " }, want: []string{"Title is required"}},
		{name: "missing scripture", mutate: func(in *Input) {
			in.ScriptureReference = ""
			in.ScriptureText = "\n"
		}, want: []string{"Scripture reference is required", "Scripture text is required"}},
		{name: "body and prayer", mutate: func(in *Input) {
			in.Body = ""
			in.Prayer = ""
		}, want: []string{"Body is required", "Prayer is required"}},
		{name: "only blank questions", mutate: func(in *Input) { in.Questions = []string{" ", ""} },
			want: []string{"At least one reflection question is required"}},
		{name: "too many questions", mutate: func(in *Input) { in.Questions = []string{"1", "2", "3", "4", "5", "6"} },
			want: []string{"No more than 5 reflection questions are allowed"}},
		{name: "bad date", mutate: func(in *Input) { in.Date = "20/02/2026" },
			want: []string{"Date must be in YYYY-MM-DD format"}},
		{name: "unknown status", mutate: func(in *Input) { in.Status = "bogus" },
			want: []string{"Status must be draft, scheduled, published or archived"}},
		{name: "archived", mutate: func(in *Input) { in.Status = domain.StatusArchived }},
		{name: "scheduled without date", mutate: func(in *Input) { in.Status = domain.StatusScheduled },
			want: []string{"Scheduled date is required"}},
		{name: "scheduled in past", mutate: func(in *Input) {
			in.Status = domain.StatusScheduled
			in.ScheduledAt = &past
		}, want: []string{"Scheduled date must be in the future"}},
		{name: "scheduled in future", mutate: func(in *Input) {
			in.Status = domain.StatusScheduled
			in.ScheduledAt = &future
		}},
	}
	s := newService(&repoStub{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			got := s.Validate(in)
			if len(tc.want) == 0 {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	repo := &repoStub{}
	s := newService(repo)
	in := validInput()
	in.Title = ""

	_, err := s.Save(context.Background(), in, "author")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"Title is required"}, verr.Messages)
	require.Empty(t, repo.inserted)
}

func TestSaveDerivesReadTime(t *testing.T) {
	repo := &repoStub{}
	s := newService(repo)
	in := validInput()
	in.Body = strings.Repeat("word ", 450)
	in.Questions = []string{" first ", "", "second"}

	saved, err := s.Save(context.Background(), in, "author-1")
	require.NoError(t, err)
	assert.Equal(t, "new-id", saved.ID)
	assert.Equal(t, 2, saved.ReadTimeMinutes)
	assert.Equal(t, []string{"first", "second"}, saved.Questions)
	assert.Equal(t, "author-1", saved.CreatedBy)

	in.ID = saved.ID
	_, err = s.Save(context.Background(), in, "author-1")
	require.NoError(t, err)
	require.Len(t, repo.updated, 1)
}

func TestSaveScheduledFillsDate(t *testing.T) {
	repo := &repoStub{}
	s := newService(repo)
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	in := validInput()
	in.Date = ""
	in.Status = domain.StatusScheduled
	in.ScheduledAt = &at

	saved, err := s.Save(context.Background(), in, "author")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", saved.Date)
	require.NotNil(t, saved.ScheduledAt)
}

func TestSaveScheduledOverridesLaterDate(t *testing.T) {
	repo := &repoStub{}
	s := newService(repo)
	at := time.Date(2026, 2, 20, 18, 0, 0, 0, time.UTC)
	in := validInput()
	in.Date = "2026-03-15"
	in.Status = domain.StatusScheduled
	in.ScheduledAt = &at

	saved, err := s.Save(context.Background(), in, "author")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-20", saved.Date)
}

func TestFeedVisibility(t *testing.T) {
	repo := &repoStub{items: []domain.Devotional{
		{ID: "old", Date: "2026-02-18", Status: domain.StatusPublished},
		{ID: "today", Date: "2026-02-20", Status: domain.StatusPublished},
		{ID: "draft", Date: "2026-02-19", Status: domain.StatusDraft},
		{ID: "future", Date: "2026-02-21", Status: domain.StatusPublished},
	}}
	s := newService(repo)

	first, rest, err := s.Feed(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "today", first.ID)
	require.Len(t, rest, 1)
	assert.Equal(t, "old", rest[0].ID)
	assert.Equal(t, "2026-02-20", repo.lastDay)

	_, err = s.Get(context.Background(), "draft")
	require.ErrorIs(t, err, domain.ErrDevotionalNotFound)
	_, err = s.Get(context.Background(), "future")
	require.ErrorIs(t, err, domain.ErrDevotionalNotFound)
	d, err := s.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "old", d.ID)
}

func TestValidateImport(t *testing.T) {
	csvData := `title,scripture_reference,scripture_text,body,prayer,date,question_1,question_2,status,scheduled_at
Morning,Ps 5:3,In the morning,Body text,Amen,2026-02-21,Q1,,published,
,Ps 1:1,Blessed,Body,Amen,2026-02-22,Q1,Q2,published,
Later,Ps 2:1,Why,Body,Amen,2026-02-10,Q1,,scheduled,2026-02-10T06:00:00Z
Odd,Ps 3:1,Lord,Body,Amen,2026-02-12,Q1,,bogus,
`
	s := newService(&repoStub{})
	report, err := s.ValidateImport(strings.NewReader(csvData))
	require.NoError(t, err)

	require.Equal(t, 1, report.ValidCount())
	require.Equal(t, 3, report.ErrorCount())
	assert.Equal(t, "Morning", report.Valid[0].Title)
	assert.Equal(t, []string{"Q1"}, report.Valid[0].Questions)

	assert.Equal(t, RowError{Row: 2, Messages: []string{"Title is required"}}, report.Errors[0])
	assert.Equal(t, RowError{Row: 3, Messages: []string{"Scheduled date must be in the future"}}, report.Errors[1])
	assert.Equal(t, RowError{Row: 4, Messages: []string{"Status must be draft, scheduled, published or archived"}}, report.Errors[2])
}

func TestValidateImportPipeQuestions(t *testing.T) {
	csvData := "title,scripture_reference,scripture_text,body,prayer,date,questions\n" +
		"T,R,S,B,P,2026-02-01,one|two|three\n"
	s := newService(&repoStub{})
	report, err := s.ValidateImport(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Equal(t, 1, report.ValidCount())
	assert.Equal(t, []string{"one", "two", "three"}, report.Valid[0].Questions)
	assert.Equal(t, domain.StatusDraft, report.Valid[0].Status)
}

func TestValidateImportEmpty(t *testing.T) {
	s := newService(&repoStub{})
	_, err := s.ValidateImport(strings.NewReader(""))
	require.Error(t, err)
}
