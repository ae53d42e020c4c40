package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"examhall/internal/config"
	"examhall/internal/database"
	"examhall/internal/logging"
	"examhall/internal/security"
	"examhall/internal/service"

	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "advance":
		err = runAdvance(ctx, cfg, logger, os.Args[2:])
	case "token":
		err = runToken(cfg, os.Args[2:])
	case "hash-key":
		err = runHashKey(os.Args[2:])
	case "export":
		err = runExport(ctx, cfg, logger, os.Args[2:])
	case "import":
		err = runImport(ctx, cfg, logger, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (*service.Store, func(), error) {
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return service.NewStore(db), func() { _ = db.Close() }, nil
}

// runAdvance performs one status sweep; this is what an external cron invokes
func runAdvance(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("advance", pflag.ExitOnError)
	at := fs.String("at", "", "sweep as of this RFC3339 time instead of now")
	_ = fs.Parse(args)

	now := time.Now().UTC()
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = parsed
	}

	store, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	sessions := service.NewSessionService(store, nil, service.SystemClock, cfg.LobbyLead, logger)
	transitions, err := sessions.AdvanceStatuses(ctx, now)
	for _, tr := range transitions {
		fmt.Printf("%s  %s -> %s\n", tr.SessionID, tr.From, tr.To)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d transition(s) applied\n", len(transitions))
	return nil
}

// runToken mints a bearer token for local development
func runToken(cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ExitOnError)
	userID := fs.String("user", "", "user id (token subject, required)")
	username := fs.String("username", "", "username (defaults to the user id)")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email for registration confirmations")
	role := fs.String("role", string(service.RoleUser), "role: user, host or admin")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if *userID == "" {
		fs.PrintDefaults()
		return fmt.Errorf("--user is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be set to at least 32 characters")
	}

	switch service.Role(*role) {
	case service.RoleUser, service.RoleHost, service.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", *role)
	}

	auth := service.NewAuthService(cfg.JWTSecret, "", service.SystemClock)
	token, err := auth.IssueToken(service.Caller{
		UserID:      *userID,
		Username:    *username,
		DisplayName: *name,
		Email:       *email,
		Role:        service.Role(*role),
	}, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// runHashKey prints the SCHEDULER_KEY_HASH value for a shared key
func runHashKey(args []string) error {
	fs := pflag.NewFlagSet("hash-key", pflag.ExitOnError)
	key := fs.String("key", "", "scheduler key (read from stdin when empty)")
	_ = fs.Parse(args)

	if *key == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read key from stdin: %w", err)
		}
		*key = strings.TrimSpace(line)
	}

	hash, err := security.HashSchedulerKey(*key)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("export", pflag.ExitOnError)
	output := fs.StringP("output", "o", "", "output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	_ = fs.Parse(args)

	outputPath := *output
	if outputPath == "" {
		outputPath = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
	}
	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	store, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	backups := service.NewBackupService(store, service.SystemClock, logger)
	stats, err := backups.Export(ctx, outputPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err == nil {
		fmt.Printf("Exported %d session(s) to %s (%.2f MB)\n", stats.Sessions, outputPath, float64(info.Size())/1024/1024)
	}
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("import", pflag.ExitOnError)
	input := fs.StringP("input", "i", "", "input file path (required)")
	clearData := fs.Bool("clear", false, "delete existing sessions before import (destructive)")
	yes := fs.BoolP("yes", "y", false, "skip the confirmation prompt for --clear")
	_ = fs.Parse(args)

	if *input == "" {
		fs.PrintDefaults()
		return fmt.Errorf("--input is required")
	}
	if _, err := os.Stat(*input); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", *input)
	}

	store, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	backups := service.NewBackupService(store, service.SystemClock, logger)

	if *clearData {
		if !*yes {
			fmt.Print("WARNING: This will delete all existing sessions. Type 'yes' to confirm: ")
			var confirmation string
			_, _ = fmt.Scanln(&confirmation)
			if confirmation != "yes" {
				fmt.Println("Import cancelled")
				return nil
			}
		}
		if err := backups.Clear(ctx); err != nil {
			return err
		}
		logger.Info("existing sessions cleared")
	}

	stats, err := backups.Import(ctx, *input)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d session(s), %d registration(s), %d participant(s)\n", stats.Sessions, stats.Registrations, stats.Participants)
	return nil
}

func printUsage() {
	fmt.Println("sessionctl - exam hall session administration")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sessionctl advance [--at RFC3339]        Run one status sweep")
	fmt.Println("  sessionctl token --user ID [--role R]     Mint a development bearer token")
	fmt.Println("  sessionctl hash-key [--key K]             Hash a scheduler key for SCHEDULER_KEY_HASH")
	fmt.Println("  sessionctl export [-o file]               Export sessions to JSON")
	fmt.Println("  sessionctl import -i file [--clear] [-y]  Import sessions from JSON")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_TYPE    sqlite, postgres, pgx or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./examhall.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
	fmt.Println("  JWT_SECRET       Signing secret used by the token command")
}
