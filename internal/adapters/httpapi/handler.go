package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
	httpinfra "devotional-sync/internal/infra/http"
	"devotional-sync/internal/usecase/devotionals"
	"devotional-sync/internal/usecase/reflections"
)

// Session — шлюз текущего пользователя.
type Session interface {
	Identity() string
	Loading() bool
	LastError() error
	SetIdentity(userID string)
	Wait(ctx context.Context) error
	CompleteDevotional(d domain.Devotional, author domain.ShareMeta) (bool, int)
}

// Completions — отметки о прочтении.
type Completions interface {
	IsComplete(devotionalID string) bool
	CompletedIDs() []string
	Streak(now time.Time) int
}

// Plans — планы чтения.
type Plans interface {
	Catalog(ctx context.Context) ([]domain.ReadingPlan, error)
	FollowPlan(planID string)
	UnfollowPlan(planID string)
	IsFollowing(planID string) bool
	ToggleDay(planID string, day int) bool
	CompletedDays(planID string) []int
	CurrentDay(planID string, totalDays int) int
}

// Reflections — ответы и лента общины.
type Reflections interface {
	UpdateAnswer(devotionalID string, q int, text string)
	SetShareFlag(devotionalID string, q int, share bool)
	Answer(devotionalID string, q int) string
	ShareFlag(devotionalID string, q int) bool
	IsShared(devotionalID string, q int) bool
	ShareReflection(p reflections.SharePayload) error
	Community() []domain.CommunityGroup
}

// Church — членство в общине.
type Church interface {
	Church() *domain.Church
	Role() domain.MemberRole
	IsLeader() bool
	Members() []domain.Member
	CreateChurch(ctx context.Context, name, description string) (domain.Church, error)
	JoinChurch(ctx context.Context, code string) (domain.Church, error)
	LeaveChurch(ctx context.Context) error
	RemoveMember(ctx context.Context, memberID string) error
	UpdateChurch(ctx context.Context, name, description string) error
	RefreshMembers(ctx context.Context) error
}

// Profile — онбординг и настройки.
type Profile interface {
	Profile() domain.Profile
	Author() domain.ShareMeta
	UpdatePreferences(ctx context.Context, prefs domain.Preferences) error
}

// Devotionals — лента, редактор и проверка импорта.
type Devotionals interface {
	Feed(ctx context.Context) (*domain.Devotional, []domain.Devotional, error)
	Get(ctx context.Context, id string) (domain.Devotional, error)
	Save(ctx context.Context, in devotionals.Input, createdBy string) (domain.Devotional, error)
	ValidateImport(r io.Reader) (devotionals.ImportReport, error)
}

// Deps — зависимости обработчиков.
type Deps struct {
	Session     Session
	Completions Completions
	Plans       Plans
	Reflections Reflections
	Church      Church
	Profile     Profile
	Devotionals Devotionals
	Online      func() bool
	JWTSecret   []byte
	Log         zerolog.Logger
}

// Handler обслуживает HTTP API клиента.
type Handler struct {
	d   Deps
	log zerolog.Logger
	now func() time.Time
}

// New создаёт обработчик.
func New(d Deps) *Handler {
	if d.Online == nil {
		d.Online = func() bool { return true }
	}
	return &Handler{d: d, log: d.Log.With().Str("component", "httpapi").Logger(), now: time.Now}
}

// Routes регистрирует маршруты /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.With(httpinfra.BearerAuth(h.d.JWTSecret)).Post("/session", h.signIn)
		r.Delete("/session", h.signOut)
		r.Get("/status", h.status)

		r.Get("/devotionals/today", h.feed)
		r.Get("/devotionals/{id}", h.devotional)
		r.Post("/devotionals", h.saveDevotional)
		r.Post("/devotionals/import/validate", h.validateImport)
		r.Post("/devotionals/{id}/complete", h.complete)
		r.Get("/completions", h.completions)

		r.Get("/plans", h.plans)
		r.Post("/plans/{id}/follow", h.follow)
		r.Delete("/plans/{id}/follow", h.unfollow)
		r.Post("/plans/{id}/days/{day}/toggle", h.toggleDay)

		r.Put("/answers/{devotionalID}/{q}", h.updateAnswer)
		r.Post("/answers/{devotionalID}/{q}/share", h.shareAnswer)
		r.Get("/community", h.community)

		r.Get("/church", h.church)
		r.Post("/church", h.createChurch)
		r.Patch("/church", h.updateChurch)
		r.Post("/church/join", h.joinChurch)
		r.Post("/church/leave", h.leaveChurch)
		r.Post("/church/members/refresh", h.refreshMembers)
		r.Delete("/church/members/{userID}", h.removeMember)

		r.Get("/profile", h.profile)
		r.Put("/profile", h.updateProfile)
	})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

var errBadRequest = errors.New("invalid request body")

// fail переводит доменную ошибку в HTTP ответ.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		httpinfra.WriteJSON(w, http.StatusUnprocessableEntity, httpinfra.ErrorResponse{Error: "validation failed", Messages: verr.Messages})
	case errors.Is(err, errBadRequest):
		httpinfra.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrNotSignedIn):
		httpinfra.WriteError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domain.ErrNotLeader), errors.Is(err, domain.ErrNotAuthor):
		httpinfra.WriteError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrChurchNotFound), errors.Is(err, domain.ErrDevotionalNotFound), errors.Is(err, domain.ErrPlanNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrAlreadyMember), errors.Is(err, domain.ErrNoChurch):
		httpinfra.WriteError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInviteCodeExhausted):
		httpinfra.WriteError(w, http.StatusServiceUnavailable, err)
	default:
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("ошибка обработки запроса")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

type statusResponse struct {
	Identity string `json:"identity"`
	Loading  bool   `json:"loading"`
	Online   bool   `json:"online"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) currentStatus() statusResponse {
	resp := statusResponse{
		Identity: h.d.Session.Identity(),
		Loading:  h.d.Session.Loading(),
		Online:   h.d.Online(),
	}
	if err := h.d.Session.LastError(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	h.d.Session.SetIdentity(httpinfra.UserID(r.Context()))
	if r.URL.Query().Get("wait") == "true" {
		if err := h.d.Session.Wait(r.Context()); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.currentStatus())
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	h.d.Session.SetIdentity("")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, h.currentStatus())
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := h.d.Session.Identity()
	if id == "" {
		h.fail(w, r, domain.ErrNotSignedIn)
		return "", false
	}
	return id, true
}
