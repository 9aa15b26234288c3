package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// DateLayout — формат даты публикации девоционала.
const DateLayout = "2006-01-02"

const (
	wordsPerMinute = 200
	// MaxQuestions — максимальное число вопросов для размышления.
	MaxQuestions = 5
)

// DevotionalStatus описывает жизненный цикл девоционала.
type DevotionalStatus string

const (
	StatusDraft     DevotionalStatus = "draft"
	StatusScheduled DevotionalStatus = "scheduled"
	StatusPublished DevotionalStatus = "published"
	StatusArchived  DevotionalStatus = "archived"
)

// Devotional описывает ежедневное чтение.
type Devotional struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title"`
	ScriptureReference string           `json:"scripture_reference"`
	ScriptureText      string           `json:"scripture_text"`
	Body               string           `json:"body"`
	Questions          []string         `json:"questions"`
	Prayer             string           `json:"prayer"`
	Date               string           `json:"date"`
	ReadTimeMinutes    int              `json:"read_time_minutes"`
	AuthorName         string           `json:"author_name"`
	Status             DevotionalStatus `json:"status"`
	ScheduledAt        *time.Time       `json:"scheduled_at,omitempty"`
	CreatedBy          string           `json:"created_by"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// VisibleOn сообщает, виден ли девоционал читателям в день today (YYYY-MM-DD).
func (d Devotional) VisibleOn(today string) bool {
	return d.Status == StatusPublished && d.Date <= today
}

// Today форматирует дату now в формат публикации.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// ReadTime оценивает время чтения текста в минутах, минимум одна минута.
func ReadTime(body string) int {
	words := len(strings.Fields(body))
	minutes := int(math.Round(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// SplitVisible возвращает девоционал дня и остальные видимые, по убыванию даты.
func SplitVisible(items []Devotional, today string) (*Devotional, []Devotional) {
	visible := make([]Devotional, 0, len(items))
	for _, d := range items {
		if d.VisibleOn(today) {
			visible = append(visible, d)
		}
	}
	if len(visible) == 0 {
		return nil, nil
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].Date > visible[j].Date })
	first := visible[0]
	return &first, visible[1:]
}
