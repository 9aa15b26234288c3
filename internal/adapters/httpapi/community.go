package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"

	"devotional-sync/internal/domain"
	httpinfra "devotional-sync/internal/infra/http"
	"devotional-sync/internal/usecase/reflections"
)

type answerRequest struct {
	Text  *string `json:"text"`
	Share *bool   `json:"share"`
}

func answerParams(r *http.Request) (string, int, bool) {
	q, err := strconv.Atoi(chi.URLParam(r, "q"))
	if err != nil || q < 0 || q >= domain.MaxQuestions {
		return "", 0, false
	}
	return chi.URLParam(r, "devotionalID"), q, true
}

func (h *Handler) updateAnswer(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireIdentity(w, r); !ok {
		return
	}
	devotionalID, q, ok := answerParams(r)
	if !ok {
		h.fail(w, r, errBadRequest)
		return
	}
	var req answerRequest
	if err := decode(r, &req); err != nil || (req.Text == nil && req.Share == nil) {
		h.fail(w, r, errBadRequest)
		return
	}
	if req.Text != nil {
		h.d.Reflections.UpdateAnswer(devotionalID, q, *req.Text)
	}
	if req.Share != nil {
		h.d.Reflections.SetShareFlag(devotionalID, q, *req.Share)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) shareAnswer(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireIdentity(w, r); !ok {
		return
	}
	devotionalID, q, ok := answerParams(r)
	if !ok {
		h.fail(w, r, errBadRequest)
		return
	}
	var req answerRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, errBadRequest)
		return
	}
	d, err := h.d.Devotionals.Get(r.Context(), devotionalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meta := h.d.Profile.Author()
	meta.DevotionalTitle = d.Title
	if q < len(d.Questions) {
		meta.Question = d.Questions[q]
	}
	payload := reflections.SharePayload{DevotionalID: devotionalID, QuestionIndex: q, Meta: meta}
	if req.Text != nil {
		payload.Text = *req.Text
	}
	if err := h.d.Reflections.ShareReflection(payload); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) community(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, h.d.Reflections.Community())
}

type churchRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

type churchView struct {
	Church  *domain.Church    `json:"church"`
	Role    domain.MemberRole `json:"role,omitempty"`
	Members []domain.Member   `json:"members"`
}

func (h *Handler) churchState() churchView {
	return churchView{Church: h.d.Church.Church(), Role: h.d.Church.Role(), Members: h.d.Church.Members()}
}

func (h *Handler) church(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, h.churchState())
}

func (h *Handler) createChurch(w http.ResponseWriter, r *http.Request) {
	var req churchRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, errBadRequest)
		return
	}
	if _, err := h.d.Church.CreateChurch(r.Context(), req.Name, req.Description); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, h.churchState())
}

func (h *Handler) joinChurch(w http.ResponseWriter, r *http.Request) {
	var req churchRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, errBadRequest)
		return
	}
	if _, err := h.d.Church.JoinChurch(r.Context(), req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.churchState())
}

func (h *Handler) leaveChurch(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Church.LeaveChurch(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateChurch(w http.ResponseWriter, r *http.Request) {
	if !h.d.Church.IsLeader() {
		h.fail(w, r, domain.ErrNotLeader)
		return
	}
	var req churchRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, errBadRequest)
		return
	}
	if err := h.d.Church.UpdateChurch(r.Context(), req.Name, req.Description); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.churchState())
}

func (h *Handler) refreshMembers(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Church.RefreshMembers(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.churchState())
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "userID")
	if memberID != h.d.Session.Identity() && !h.d.Church.IsLeader() {
		h.fail(w, r, domain.ErrNotLeader)
		return
	}
	if err := h.d.Church.RemoveMember(r.Context(), memberID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireIdentity(w, r); !ok {
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.d.Profile.Profile())
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var prefs domain.Preferences
	if err := decode(r, &prefs); err != nil {
		h.fail(w, r, errBadRequest)
		return
	}
	if err := h.d.Profile.UpdatePreferences(r.Context(), prefs); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.d.Profile.Profile())
}
