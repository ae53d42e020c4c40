package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"examhall/internal/models"
	"examhall/internal/security"
	"examhall/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const CallerContextKey ContextKey = "caller"

// SchedulerKeyHeader carries the shared key of the external sweep trigger
const SchedulerKeyHeader = "X-Scheduler-Key"

// TokenVerifier turns a bearer token into a caller
type TokenVerifier interface {
	VerifyToken(token string) (*service.Caller, error)
}

// Sweeper runs one status sweep
type Sweeper interface {
	Sweep(ctx context.Context) ([]models.Transition, error)
}

// Middleware holds dependencies for middleware functions
type Middleware struct {
	auth         TokenVerifier
	limiter      *security.RateLimiter
	schedulerKey *security.SchedulerKey
	sweeper      Sweeper
	logger       *slog.Logger
}

// NewMiddleware creates a new middleware instance. limiter and sweeper may be nil.
func NewMiddleware(auth TokenVerifier, limiter *security.RateLimiter, schedulerKey *security.SchedulerKey, sweeper Sweeper, logger *slog.Logger) *Middleware {
	if schedulerKey == nil {
		schedulerKey = security.NewSchedulerKey("")
	}
	return &Middleware{
		auth:         auth,
		limiter:      limiter,
		schedulerKey: schedulerKey,
		sweeper:      sweeper,
		logger:       logger,
	}
}

// Authenticate resolves the bearer token, if any, into the request's caller.
// Requests without a token continue anonymously; a bad token is rejected.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindAuthRequired, Message: "authorization header must be a bearer token"})
			return
		}

		caller, err := m.auth.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, service.ErrTokenExpired) {
				msg = "token expired"
			}
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindAuthRequired, Message: msg})
			return
		}

		ctx := context.WithValue(r.Context(), CallerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if GetCallerFromContext(r.Context()) == nil {
			respondWithError(w, r, m.logger, service.ErrAuthRequired)
			return
		}
		next(w, r)
	}
}

// RequireHost is middleware that requires the host or admin role
func (m *Middleware) RequireHost(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !GetCallerFromContext(r.Context()).CanHost() {
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindForbidden, Message: "host role required"})
			return
		}
		next(w, r)
	})
}

// RequireSchedulerKey protects the external sweep trigger
func (m *Middleware) RequireSchedulerKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.schedulerKey.Enabled() {
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindNotFound, Message: "scheduler endpoint is disabled"})
			return
		}
		key := r.Header.Get(SchedulerKeyHeader)
		if key == "" {
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindAuthRequired, Message: "scheduler key required"})
			return
		}
		if err := m.schedulerKey.Verify(key); err != nil {
			m.logger.Warn("scheduler key rejected", "remote", security.GetClientIP(r))
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindForbidden, Message: "invalid scheduler key"})
			return
		}
		next(w, r)
	}
}

// RequireSessionID answers 404 for {id} path values that cannot name a session
func (m *Middleware) RequireSessionID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !security.ValidID(r.PathValue("id")) {
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindNotFound, Message: "session not found"})
			return
		}
		next(w, r)
	}
}

// RateLimit limits requests per caller, or per client IP for anonymous requests
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next(w, r)
			return
		}

		key := "ip:" + security.GetClientIP(r)
		if caller := GetCallerFromContext(r.Context()); caller != nil {
			key = "user:" + caller.UserID
		}

		if !m.limiter.Allow(key) {
			wait := m.limiter.RetryAfter(key)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			respondWithError(w, r, m.logger, &service.Error{Kind: service.KindRateLimited, Message: "too many requests, please try again later"})
			return
		}
		next(w, r)
	}
}

// SweepBeforeRead runs a best-effort status sweep so reads never show a
// status the clock has already passed. A failed sweep does not fail the read.
func (m *Middleware) SweepBeforeRead(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.sweeper != nil {
			if _, err := m.sweeper.Sweep(r.Context()); err != nil {
				m.logger.Warn("status sweep before read failed", "path", r.URL.Path, "error", err)
			}
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging middleware logs HTTP requests
func Logging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// GetCallerFromContext retrieves the caller from the request context
func GetCallerFromContext(ctx context.Context) *service.Caller {
	caller, ok := ctx.Value(CallerContextKey).(*service.Caller)
	if !ok {
		return nil
	}
	return caller
}
