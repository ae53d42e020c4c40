package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"examhall/internal/service"
)

// StatsHandler serves leaderboards and per-user statistics
type StatsHandler struct {
	ranking *service.RankingService
	logger  *slog.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(ranking *service.RankingService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{ranking: ranking, logger: logger}
}

// Leaderboard handles GET /api/sessions/{id}/leaderboard
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ranking.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, entries)
}

// MyStatistics handles GET /api/me/statistics
func (h *StatsHandler) MyStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ranking.GetMyStatistics(r.Context(), GetCallerFromContext(r.Context()))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithData(w, http.StatusOK, stats)
}

// Pinger is satisfied by *database.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health handles GET /healthz
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: errorBody{
				Kind:      service.KindInternal,
				Message:   "database unavailable",
				Retryable: true,
			}})
			return
		}
		respondWithData(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
