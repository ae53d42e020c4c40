package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examhall/internal/config"
	"examhall/internal/database"
	"examhall/internal/handlers"
	"examhall/internal/logging"
	"examhall/internal/questionbank"
	"examhall/internal/security"
	"examhall/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	logger := logging.New(cfg.LogFormat, level)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database with config (supports sqlite, postgres, pgx, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connection established", "type", cfg.DatabaseType)

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations completed")

	// Initialize services
	store := service.NewStore(db)

	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, logger)
	if err != nil {
		logger.Warn("email service unavailable", "error", err)
	}
	var mailer service.Mailer
	if emailService != nil && emailService.IsEnabled() {
		mailer = emailService
	}

	var bank questionbank.Provider
	if cfg.QuestionBankEnabled() {
		bank = questionbank.NewHTTPProvider(ctx, questionbank.Config{
			BaseURL:      cfg.QuestionBankURL,
			ClientID:     cfg.QuestionBankClientID,
			ClientSecret: cfg.QuestionBankClientSecret,
			TokenURL:     cfg.QuestionBankTokenURL,
		})
		logger.Info("question bank enabled", "url", cfg.QuestionBankURL)
	}

	authService := service.NewAuthService(cfg.JWTSecret, "", service.SystemClock)
	sessionService := service.NewSessionService(store, bank, service.SystemClock, cfg.LobbyLead, logger)
	rankingService := service.NewRankingService(store, service.SystemClock)
	enrollmentService := service.NewEnrollmentService(store, mailer, service.SystemClock, logger)
	answerService := service.NewAnswerService(store, rankingService, service.SystemClock, logger)

	limiter := security.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	defer limiter.Close()

	schedulerKey := security.NewSchedulerKey(cfg.SchedulerKeyHash)
	if !schedulerKey.Enabled() {
		logger.Info("external sweep endpoint disabled: SCHEDULER_KEY_HASH not configured")
	}

	// Initialize handlers
	router := &handlers.Router{
		Middleware: handlers.NewMiddleware(authService, limiter, schedulerKey, sessionService, logger),
		Sessions:   handlers.NewSessionHandler(sessionService, logger),
		Enrollment: handlers.NewEnrollmentHandler(enrollmentService, answerService, logger),
		Stats:      handlers.NewStatsHandler(rankingService, logger),
		DB:         db,
		Logger:     logger,
	}

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.SweepInterval > 0 {
		go runSweeper(ctx, sessionService, cfg.SweepInterval, logger)
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// runSweeper advances session statuses every interval until ctx is done
func runSweeper(ctx context.Context, sessions *service.SessionService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("status sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sessions.Sweep(ctx); err != nil {
				logger.Error("scheduled status sweep failed", "error", err)
			}
		}
	}
}
