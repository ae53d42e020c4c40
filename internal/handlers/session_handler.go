package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"examhall/internal/models"
	"examhall/internal/repository"
	"examhall/internal/service"
	"examhall/internal/validation"
)

// SessionHandler handles session CRUD and the status sweep triggers
type SessionHandler struct {
	sessions *service.SessionService
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// CreateSession handles POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), GetCallerFromContext(r.Context()), in)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusCreated, session.Public(true))
}

// ListSessions handles GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.SessionFilter{
		Status: models.SessionStatus(q.Get("status")),
		Level:  q.Get("level"),
		HostID: q.Get("host_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			var errs validation.Errors
			errs.Add("limit", "limit must be an integer")
			respondWithError(w, r, h.logger, &service.Error{Kind: service.KindValidation, Message: "invalid input", Fields: errs})
			return
		}
		filter.Limit = limit
	}

	sessions, err := h.sessions.ListSessions(r.Context(), filter)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	caller := GetCallerFromContext(r.Context())
	views := make([]models.SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = s.Public(service.RevealAnswers(caller, s))
	}
	respondWithData(w, http.StatusOK, views)
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	details, err := h.sessions.GetSession(r.Context(), GetCallerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, details)
}

// UpdateSession handles PATCH /api/sessions/{id}
func (h *SessionHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var patch service.SessionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	session, err := h.sessions.UpdateSession(r.Context(), GetCallerFromContext(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, session.Public(true))
}

// CancelSession handles POST /api/sessions/{id}/cancel
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CancelSession(r.Context(), GetCallerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, session.Public(true))
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.DeleteSession(r.Context(), GetCallerFromContext(r.Context()), id); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, map[string]interface{}{"id": id, "deleted": true})
}

// AdvanceStatuses handles both sweep triggers
func (h *SessionHandler) AdvanceStatuses(w http.ResponseWriter, r *http.Request) {
	transitions, err := h.sessions.Sweep(r.Context())
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, map[string]interface{}{
		"transitions": transitions,
		"count":       len(transitions),
	})
}
