package handlers

import (
	"log/slog"
	"net/http"

	"examhall/internal/service"
	"examhall/internal/validation"
)

// EnrollmentHandler handles registration, joining and answering
type EnrollmentHandler struct {
	enrollment *service.EnrollmentService
	answers    *service.AnswerService
	logger     *slog.Logger
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(enrollment *service.EnrollmentService, answers *service.AnswerService, logger *slog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{enrollment: enrollment, answers: answers, logger: logger}
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// Register handles POST /api/sessions/{id}/register
func (h *EnrollmentHandler) Register(w http.ResponseWriter, r *http.Request) {
	result, err := h.enrollment.Register(r.Context(), r.PathValue("id"), GetCallerFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, createdStatus(result.Created), result)
}

// Unregister handles DELETE /api/sessions/{id}/register
func (h *EnrollmentHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	removed, err := h.enrollment.Unregister(r.Context(), r.PathValue("id"), GetCallerFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, map[string]bool{"removed": removed})
}

// Join handles POST /api/sessions/{id}/join
func (h *EnrollmentHandler) Join(w http.ResponseWriter, r *http.Request) {
	result, err := h.enrollment.Join(r.Context(), r.PathValue("id"), GetCallerFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, createdStatus(result.Created), result)
}

type submitAnswerRequest struct {
	QuestionIndex *int `json:"questionIndex"`
	Answer        *int `json:"answer"`
}

// SubmitAnswer handles POST /api/sessions/{id}/answers
func (h *EnrollmentHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	var errs validation.Errors
	if req.QuestionIndex == nil {
		errs.Add("questionIndex", "questionIndex is required")
	}
	if req.Answer == nil {
		errs.Add("answer", "answer is required")
	}
	if len(errs) > 0 {
		respondWithError(w, r, h.logger, errs)
		return
	}

	participant, err := h.answers.SubmitAnswer(r.Context(), r.PathValue("id"), GetCallerFromContext(r.Context()), *req.QuestionIndex, *req.Answer)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, participant)
}

// MyParticipation handles GET /api/sessions/{id}/me
func (h *EnrollmentHandler) MyParticipation(w http.ResponseWriter, r *http.Request) {
	view, err := h.answers.GetMyParticipation(r.Context(), r.PathValue("id"), GetCallerFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, view)
}
