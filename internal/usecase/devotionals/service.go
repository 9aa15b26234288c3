package devotionals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
)

// RecentLimit — сколько опубликованных девоционалов запрашивать для ленты.
const RecentLimit = 30

// Input — форма создания или редактирования девоционала.
type Input struct {
	ID                 string                  `json:"id"`
	Title              string                  `json:"title" validate:"required"`
	ScriptureReference string                  `json:"scripture_reference" validate:"required"`
	ScriptureText      string                  `json:"scripture_text" validate:"required"`
	Body               string                  `json:"body" validate:"required"`
	Prayer             string                  `json:"prayer" validate:"required"`
	Questions          []string                `json:"questions" validate:"min=1,max=5"`
	Date               string                  `json:"date" validate:"ymd"`
	Status             domain.DevotionalStatus `json:"status" validate:"oneof=draft scheduled published archived"`
	ScheduledAt        *time.Time              `json:"scheduled_at" validate:"required_if=Status scheduled"`
	AuthorName         string                  `json:"author_name"`
}

var messages = map[string]string{
	"Title.required":              "Title is required",
	"ScriptureReference.required": "Scripture reference is required",
	"ScriptureText.required":      "Scripture text is required",
	"Body.required":               "Body is required",
	"Prayer.required":             "Prayer is required",
	"Questions.min":               "At least one reflection question is required",
	"Questions.max":               "No more than 5 reflection questions are allowed",
	"Date.ymd":                    "Date must be in YYYY-MM-DD format",
	"Status.oneof":                "Status must be draft, scheduled, published or archived",
	"ScheduledAt.required_if":     "Scheduled date is required",
}

const msgScheduledFuture = "Scheduled date must be in the future"

// Service управляет девоционалами: лента, сохранение, проверка импорта.
type Service struct {
	repo     domain.DevotionalRepo
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис.
func NewService(repo domain.DevotionalRepo, logger zerolog.Logger) *Service {
	v := validator.New()
	_ = v.RegisterValidation("ymd", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(domain.DateLayout, fl.Field().String())
		return err == nil
	})
	return &Service{
		repo:     repo,
		validate: v,
		log:      logger.With().Str("component", "devotionals").Logger(),
		now:      time.Now,
	}
}

// normalize обрезает пробелы, выкидывает пустые вопросы и проставляет статус по умолчанию.
// У запланированного девоционала дата всегда совпадает с датой scheduled_at (UTC).
func normalize(in Input) Input {
	in.Title = strings.TrimSpace(in.Title)
	in.ScriptureReference = strings.TrimSpace(in.ScriptureReference)
	in.ScriptureText = strings.TrimSpace(in.ScriptureText)
	in.Body = strings.TrimSpace(in.Body)
	in.Prayer = strings.TrimSpace(in.Prayer)
	in.Date = strings.TrimSpace(in.Date)
	in.AuthorName = strings.TrimSpace(in.AuthorName)
	questions := make([]string, 0, len(in.Questions))
	for _, q := range in.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	in.Questions = questions
	if in.Status == "" {
		in.Status = domain.StatusDraft
	}
	if in.Status == domain.StatusScheduled && in.ScheduledAt != nil {
		in.Date = in.ScheduledAt.UTC().Format(domain.DateLayout)
	}
	return in
}

// Validate возвращает сообщения об ошибках формы; пустой список означает корректную форму.
func (s *Service) Validate(in Input) []string {
	return s.validateAt(normalize(in), s.now())
}

func (s *Service) validateAt(in Input, now time.Time) []string {
	var out []string
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []string{err.Error()}
		}
		for _, fe := range verrs {
			if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
				out = append(out, msg)
			}
		}
	}
	if in.Status == domain.StatusScheduled && in.ScheduledAt != nil && !in.ScheduledAt.After(now) {
		out = append(out, msgScheduledFuture)
	}
	return out
}

// Save проверяет форму, вычисляет время чтения и сохраняет девоционал.
func (s *Service) Save(ctx context.Context, in Input, createdBy string) (domain.Devotional, error) {
	in = normalize(in)
	if msgs := s.validateAt(in, s.now()); len(msgs) > 0 {
		return domain.Devotional{}, &domain.ValidationError{Messages: msgs}
	}
	d := domain.Devotional{
		ID:                 in.ID,
		Title:              in.Title,
		ScriptureReference: in.ScriptureReference,
		ScriptureText:      in.ScriptureText,
		Body:               in.Body,
		Questions:          in.Questions,
		Prayer:             in.Prayer,
		Date:               in.Date,
		ReadTimeMinutes:    domain.ReadTime(in.Body),
		AuthorName:         in.AuthorName,
		Status:             in.Status,
		CreatedBy:          createdBy,
	}
	if in.Status == domain.StatusScheduled {
		at := in.ScheduledAt.UTC()
		d.ScheduledAt = &at
	}

	if d.ID == "" {
		saved, err := s.repo.InsertDevotional(ctx, d)
		if err != nil {
			return domain.Devotional{}, fmt.Errorf("создание девоционала: %w", err)
		}
		s.log.Info().Str("devotional_id", saved.ID).Str("status", string(saved.Status)).Msg("девоционал создан")
		return saved, nil
	}
	if err := s.repo.UpdateDevotional(ctx, d); err != nil {
		return domain.Devotional{}, fmt.Errorf("обновление девоционала: %w", err)
	}
	return d, nil
}

// Feed возвращает девоционал дня и остальные видимые читателю.
func (s *Service) Feed(ctx context.Context) (*domain.Devotional, []domain.Devotional, error) {
	today := domain.Today(s.now().UTC())
	items, err := s.repo.ListPublished(ctx, today, RecentLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("лента девоционалов: %w", err)
	}
	first, rest := domain.SplitVisible(items, today)
	return first, rest, nil
}

// Get возвращает девоционал, видимый сегодня.
func (s *Service) Get(ctx context.Context, id string) (domain.Devotional, error) {
	d, err := s.repo.GetDevotional(ctx, id)
	if err != nil {
		return domain.Devotional{}, fmt.Errorf("получение девоционала: %w", err)
	}
	if d == nil || !d.VisibleOn(domain.Today(s.now().UTC())) {
		return domain.Devotional{}, domain.ErrDevotionalNotFound
	}
	return *d, nil
}
