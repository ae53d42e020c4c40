package handlers

import (
	"log/slog"
	"net/http"
)

// Router bundles the handlers served by the API
type Router struct {
	Middleware *Middleware
	Sessions   *SessionHandler
	Enrollment *EnrollmentHandler
	Stats      *StatsHandler
	DB         Pinger
	Logger     *slog.Logger
}

// Handler builds the routed, authenticated and logged http.Handler
func (rt *Router) Handler() http.Handler {
	m := rt.Middleware
	id := m.RequireSessionID
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", Health(rt.DB))

	// Sessions
	mux.HandleFunc("POST /api/sessions", m.RequireHost(rt.Sessions.CreateSession))
	mux.HandleFunc("GET /api/sessions", m.SweepBeforeRead(rt.Sessions.ListSessions))
	mux.HandleFunc("GET /api/sessions/{id}", id(m.SweepBeforeRead(rt.Sessions.GetSession)))
	mux.HandleFunc("PATCH /api/sessions/{id}", id(m.RequireHost(rt.Sessions.UpdateSession)))
	mux.HandleFunc("POST /api/sessions/{id}/cancel", id(m.RequireHost(rt.Sessions.CancelSession)))
	mux.HandleFunc("DELETE /api/sessions/{id}", id(m.RequireAuth(rt.Sessions.DeleteSession)))

	// Status sweep triggers
	mux.HandleFunc("POST /api/sessions/advance", m.RequireHost(rt.Sessions.AdvanceStatuses))
	mux.HandleFunc("POST /internal/advance", m.RequireSchedulerKey(rt.Sessions.AdvanceStatuses))

	// Enrollment
	mux.HandleFunc("POST /api/sessions/{id}/register", id(m.RequireAuth(m.RateLimit(rt.Enrollment.Register))))
	mux.HandleFunc("DELETE /api/sessions/{id}/register", id(m.RequireAuth(m.RateLimit(rt.Enrollment.Unregister))))
	mux.HandleFunc("POST /api/sessions/{id}/join", id(m.RequireAuth(m.RateLimit(rt.Enrollment.Join))))
	mux.HandleFunc("POST /api/sessions/{id}/answers", id(m.RequireAuth(m.RateLimit(rt.Enrollment.SubmitAnswer))))
	mux.HandleFunc("GET /api/sessions/{id}/me", id(m.RequireAuth(m.SweepBeforeRead(rt.Enrollment.MyParticipation))))

	// Results
	mux.HandleFunc("GET /api/sessions/{id}/leaderboard", id(m.RequireAuth(m.SweepBeforeRead(rt.Stats.Leaderboard))))
	mux.HandleFunc("GET /api/me/statistics", m.RequireAuth(m.SweepBeforeRead(rt.Stats.MyStatistics)))

	return Logging(rt.Logger, m.Authenticate(mux))
}
