package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"

	"devotional-sync/internal/domain"
	httpinfra "devotional-sync/internal/infra/http"
	"devotional-sync/internal/usecase/devotionals"
)

type answerView struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Text     string `json:"text"`
	Share    bool   `json:"share"`
	Shared   bool   `json:"shared"`
}

type devotionalView struct {
	domain.Devotional
	Completed bool         `json:"completed"`
	Answers   []answerView `json:"answers"`
}

func (h *Handler) view(d domain.Devotional) devotionalView {
	v := devotionalView{Devotional: d, Completed: h.d.Completions.IsComplete(d.ID)}
	for q, question := range d.Questions {
		v.Answers = append(v.Answers, answerView{
			Index:    q,
			Question: question,
			Text:     h.d.Reflections.Answer(d.ID, q),
			Share:    h.d.Reflections.ShareFlag(d.ID, q),
			Shared:   h.d.Reflections.IsShared(d.ID, q),
		})
	}
	return v
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	first, rest, err := h.d.Devotionals.Feed(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := struct {
		Today  *devotionalView     `json:"today"`
		Recent []domain.Devotional `json:"recent"`
	}{Recent: rest}
	if first != nil {
		v := h.view(*first)
		resp.Today = &v
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) devotional(w http.ResponseWriter, r *http.Request) {
	d, err := h.d.Devotionals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.view(d))
}

func (h *Handler) saveDevotional(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	if h.d.Profile.Profile().Role != domain.ProfileRoleAuthor {
		h.fail(w, r, domain.ErrNotAuthor)
		return
	}
	var in devotionals.Input
	if err := decode(r, &in); err != nil {
		h.fail(w, r, errBadRequest)
		return
	}
	saved, err := h.d.Devotionals.Save(r.Context(), in, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if in.ID == "" {
		status = http.StatusCreated
	}
	httpinfra.WriteJSON(w, status, saved)
}

func (h *Handler) validateImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	report, err := h.d.Devotionals.ValidateImport(r.Body)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, struct {
		devotionals.ImportReport
		ValidCount int `json:"valid_count"`
		ErrorCount int `json:"error_count"`
	}{report, report.ValidCount(), report.ErrorCount()})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireIdentity(w, r); !ok {
		return
	}
	d, err := h.d.Devotionals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	complete, shared := h.d.Session.CompleteDevotional(d, h.d.Profile.Author())
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"complete": complete,
		"shared":   shared,
	})
}

func (h *Handler) completions(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"devotional_ids": h.d.Completions.CompletedIDs(),
		"streak":         h.d.Completions.Streak(h.now()),
	})
}

type planView struct {
	ID            string                  `json:"id"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description"`
	TotalDays     int                     `json:"total_days"`
	Days          []domain.ReadingPlanDay `json:"days"`
	Following     bool                    `json:"following"`
	CompletedDays []int                   `json:"completed_days"`
	CurrentDay    int                     `json:"current_day"`
}

func (h *Handler) plans(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.d.Plans.Catalog(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]planView, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, planView{
			ID:            p.ID,
			Title:         p.Title,
			Description:   p.Description,
			TotalDays:     p.TotalDays,
			Days:          p.Days,
			Following:     h.d.Plans.IsFollowing(p.ID),
			CompletedDays: h.d.Plans.CompletedDays(p.ID),
			CurrentDay:    h.d.Plans.CurrentDay(p.ID, p.TotalDays),
		})
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

// planFor проверяет пользователя и наличие плана в каталоге.
func (h *Handler) planFor(w http.ResponseWriter, r *http.Request) (domain.ReadingPlan, bool) {
	if _, ok := h.requireIdentity(w, r); !ok {
		return domain.ReadingPlan{}, false
	}
	catalog, err := h.d.Plans.Catalog(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return domain.ReadingPlan{}, false
	}
	id := chi.URLParam(r, "id")
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	h.fail(w, r, domain.ErrPlanNotFound)
	return domain.ReadingPlan{}, false
}

func (h *Handler) follow(w http.ResponseWriter, r *http.Request) {
	p, ok := h.planFor(w, r)
	if !ok {
		return
	}
	h.d.Plans.FollowPlan(p.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unfollow(w http.ResponseWriter, r *http.Request) {
	p, ok := h.planFor(w, r)
	if !ok {
		return
	}
	h.d.Plans.UnfollowPlan(p.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleDay(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil || day < 1 {
		h.fail(w, r, errBadRequest)
		return
	}
	p, ok := h.planFor(w, r)
	if !ok {
		return
	}
	if day > p.TotalDays {
		h.fail(w, r, fmt.Errorf("%w: day %d is outside plan of %d days", errBadRequest, day, p.TotalDays))
		return
	}
	complete := h.d.Plans.ToggleDay(p.ID, day)
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"complete":       complete,
		"completed_days": h.d.Plans.CompletedDays(p.ID),
	})
}
