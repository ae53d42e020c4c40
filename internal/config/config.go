package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort     string
	DatabaseType   string
	DatabasePath   string
	DatabaseURL    string
	MigrationsPath string

	JWTSecret          string
	SchedulerKeyHash   string
	RateLimitPerMinute int

	// LobbyLead is how long before the scheduled start a session opens its lobby.
	LobbyLead time.Duration
	// SweepInterval drives the in-process status sweep; zero disables it.
	SweepInterval time.Duration

	LogFormat string
	LogLevel  string

	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	AppBaseURL   string

	QuestionBankURL          string
	QuestionBankClientID     string
	QuestionBankClientSecret string
	QuestionBankTokenURL     string

	Debug bool
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("PORT", "8080"),
		DatabaseType:   strings.ToLower(getEnv("DATABASE_TYPE", "sqlite")),
		DatabasePath:   getEnv("DB_PATH", "./examhall.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		SchedulerKeyHash:   getEnv("SCHEDULER_KEY_HASH", ""),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		LobbyLead:     time.Duration(getEnvInt("LOBBY_LEAD_MINUTES", 15)) * time.Minute,
		SweepInterval: getEnvDuration("STATUS_SWEEP_INTERVAL", 0),

		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Exam Hall"),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),

		QuestionBankURL:          getEnv("QUESTION_BANK_URL", ""),
		QuestionBankClientID:     getEnv("QUESTION_BANK_CLIENT_ID", ""),
		QuestionBankClientSecret: getEnv("QUESTION_BANK_CLIENT_SECRET", ""),
		QuestionBankTokenURL:     getEnv("QUESTION_BANK_TOKEN_URL", ""),

		Debug: getEnv("DEBUG", "false") == "true",
	}
}

// Validate reports every configuration problem found
func (c *Config) Validate() error {
	var errs []error

	switch c.DatabaseType {
	case "sqlite", "sqlite3":
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "postgres", "postgresql", "pgx", "mysql":
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for %s", c.DatabaseType))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_TYPE %q", c.DatabaseType))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.LobbyLead <= 0 {
		errs = append(errs, errors.New("LOBBY_LEAD_MINUTES must be positive"))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("STATUS_SWEEP_INTERVAL must not be negative"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.QuestionBankURL != "" && (c.QuestionBankClientID == "" || c.QuestionBankTokenURL == "") {
		errs = append(errs, errors.New("QUESTION_BANK_CLIENT_ID and QUESTION_BANK_TOKEN_URL are required with QUESTION_BANK_URL"))
	}

	return errors.Join(errs...)
}

// QuestionBankEnabled reports whether a question bank provider is configured
func (c *Config) QuestionBankEnabled() bool {
	return c.QuestionBankURL != ""
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("30s", "1m") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
