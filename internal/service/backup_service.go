package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"examhall/internal/database"
	"examhall/internal/models"
	"examhall/internal/repository"
)

const backupVersion = "2.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version      string          `json:"version"`
	ExportedAt   time.Time       `json:"exported_at"`
	DatabaseType string          `json:"database_type"`
	Sessions     []SessionBackup `json:"sessions"`
}

// SessionBackup is one session with everything enrolled in it
type SessionBackup struct {
	Session       models.Session        `json:"session"`
	Registrations []models.Registration `json:"registrations"`
	Participants  []models.Participant  `json:"participants"`
}

// BackupStats counts what an export or import touched
type BackupStats struct {
	Sessions      int
	Registrations int
	Participants  int
}

// BackupService handles database backup and restore operations
type BackupService struct {
	store  *Store
	clock  Clock
	logger *slog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(store *Store, clock Clock, logger *slog.Logger) *BackupService {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{store: store, clock: clock, logger: logger}
}

// Export creates a complete backup of the database to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) (BackupStats, error) {
	file, err := os.Create(outputPath)
	if err != nil {
		return BackupStats{}, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	stats, err := s.ExportToWriter(ctx, file)
	if err != nil {
		return stats, err
	}

	s.logger.Info("database exported", "path", outputPath,
		"sessions", stats.Sessions, "registrations", stats.Registrations, "participants", stats.Participants)
	return stats, nil
}

// ExportToWriter writes a backup of every session to w
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) (BackupStats, error) {
	backup := &BackupData{
		Version:      backupVersion,
		ExportedAt:   s.clock.now(),
		DatabaseType: "universal",
		Sessions:     []SessionBackup{},
	}

	sessions, err := s.store.Sessions.List(ctx, repository.SessionFilter{})
	if err != nil {
		return BackupStats{}, fmt.Errorf("failed to export sessions: %w", err)
	}

	var stats BackupStats
	for _, session := range sessions {
		registrations, err := s.store.Enrollments.ListRegistrations(ctx, session.ID)
		if err != nil {
			return stats, fmt.Errorf("failed to export registrations of %s: %w", session.ID, err)
		}
		participants, err := s.store.Enrollments.ListParticipants(ctx, session.ID, session.Questions)
		if err != nil {
			return stats, fmt.Errorf("failed to export participants of %s: %w", session.ID, err)
		}

		backup.Sessions = append(backup.Sessions, SessionBackup{
			Session:       *session,
			Registrations: registrations,
			Participants:  participants,
		})
		stats.Sessions++
		stats.Registrations += len(registrations)
		stats.Participants += len(participants)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return stats, fmt.Errorf("failed to encode backup: %w", err)
	}
	return stats, nil
}

// Import restores a database from a backup file
func (s *BackupService) Import(ctx context.Context, inputPath string) (BackupStats, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return BackupStats{}, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores sessions from a backup in one transaction.
// Scores are recomputed from the stored answers rather than trusted.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) (BackupStats, error) {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return BackupStats{}, fmt.Errorf("failed to decode backup: %w", err)
	}
	s.logger.Info("importing backup", "version", backup.Version, "exported_at", backup.ExportedAt)

	var stats BackupStats
	err := s.store.DB.WithTx(ctx, func(tx *database.Tx) error {
		enrollments := s.store.Enrollments.WithTx(tx)

		for _, sb := range backup.Sessions {
			session := sb.Session
			if err := validateRestoredSession(&session); err != nil {
				return err
			}
			if err := validateRestoredEnrollments(&session, sb); err != nil {
				return err
			}
			if err := insertSessionRow(ctx, tx, &session); err != nil {
				return err
			}
			stats.Sessions++

			for _, reg := range sb.Registrations {
				reg.SessionID = session.ID
				if err := enrollments.CreateRegistration(ctx, &reg); err != nil {
					return fmt.Errorf("session %s: %w", session.ID, err)
				}
				stats.Registrations++
			}

			for _, p := range sb.Participants {
				p.SessionID = session.ID
				p.Score = models.ScoreAnswers(session.Questions, p.Answers)
				if err := enrollments.CreateParticipant(ctx, &p); err != nil {
					return fmt.Errorf("session %s: %w", session.ID, err)
				}
				stats.Participants++
			}
		}
		return nil
	})
	if err != nil {
		return BackupStats{}, err
	}

	s.logger.Info("database import completed",
		"sessions", stats.Sessions, "registrations", stats.Registrations, "participants", stats.Participants)
	return stats, nil
}

// Clear deletes every session; registrations and participants cascade
func (s *BackupService) Clear(ctx context.Context) error {
	return s.store.DB.WithTx(ctx, func(tx *database.Tx) error {
		for _, table := range []string{"participants", "registrations", "sessions"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func validateRestoredSession(s *models.Session) error {
	if s.ID == "" {
		return fmt.Errorf("backup contains a session without id")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("session %s: unknown status %q", s.ID, s.Status)
	}
	if err := models.ValidateQuestions(s.Questions); err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	if !s.ScheduleValid() || s.MaxParticipants <= 0 {
		return fmt.Errorf("session %s: invalid schedule or capacity", s.ID)
	}
	if s.Level == "" {
		s.Level = models.DefaultLevel
	}
	return nil
}

// validateRestoredEnrollments holds a restored session's enrollments to the
// same rules live traffic obeys: no more seats than maxParticipants,
// participants only once the lobby has opened, and answers that index an
// option of their question.
func validateRestoredEnrollments(s *models.Session, sb SessionBackup) error {
	if n := len(sb.Registrations); n > s.MaxParticipants {
		return fmt.Errorf("session %s: %d registrations exceed maxParticipants %d", s.ID, n, s.MaxParticipants)
	}
	if n := len(sb.Participants); n > s.MaxParticipants {
		return fmt.Errorf("session %s: %d participants exceed maxParticipants %d", s.ID, n, s.MaxParticipants)
	}
	if len(sb.Participants) > 0 && s.Status == models.StatusScheduled {
		return fmt.Errorf("session %s: a scheduled session cannot have participants", s.ID)
	}
	for _, p := range sb.Participants {
		if err := models.ValidateAnswers(p.Answers, s.Questions); err != nil {
			return fmt.Errorf("session %s: participant %s: %w", s.ID, p.UserID, err)
		}
	}
	return nil
}

// insertSessionRow writes every column, including the lifecycle timestamps
// that normal creation leaves empty.
func insertSessionRow(ctx context.Context, tx *database.Tx, s *models.Session) error {
	questions, err := models.EncodeQuestions(s.Questions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, name, description, level, host_id, host_name, questions, status,
			current_question_index, created_at, updated_at, scheduled_start_time,
			scheduled_end_time, lobby_open_time, duration_minutes, max_participants,
			started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		s.ID, s.Name, s.Description, s.Level, s.HostID, s.HostName, questions, string(s.Status),
		s.CurrentQuestionIndex, s.CreatedAt.UTC(), s.UpdatedAt.UTC(), s.ScheduledStartTime.UTC(),
		s.ScheduledEndTime.UTC(), s.LobbyOpenTime.UTC(), s.DurationMinutes, s.MaxParticipants,
		utcOrNil(s.StartedAt), utcOrNil(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to import session %s: %w", s.ID, err)
	}
	return nil
}

func utcOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
