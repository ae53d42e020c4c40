package repository

import (
	"context"
	"database/sql"
	"fmt"

	"examhall/internal/database"
	"examhall/internal/models"
)

// EnrollmentRepository handles registrations and participants
type EnrollmentRepository struct {
	db database.Querier
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(db database.Querier) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *EnrollmentRepository) WithTx(tx *database.Tx) *EnrollmentRepository {
	return &EnrollmentRepository{db: tx}
}

// GetRegistration returns the caller's registration, or nil, nil when absent
func (r *EnrollmentRepository) GetRegistration(ctx context.Context, sessionID, userID string) (*models.Registration, error) {
	query := `
		SELECT id, session_id, user_id, username, display_name, registered_at
		FROM registrations
		WHERE session_id = ? AND user_id = ?
	`
	reg := &models.Registration{}
	err := r.db.QueryRowContext(ctx, query, sessionID, userID).Scan(
		&reg.ID,
		&reg.SessionID,
		&reg.UserID,
		&reg.Username,
		&reg.DisplayName,
		&reg.RegisteredAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	reg.RegisteredAt = reg.RegisteredAt.UTC()
	return reg, nil
}

// CreateRegistration inserts reg and sets its ID
func (r *EnrollmentRepository) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (session_id, user_id, username, display_name, registered_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, reg.SessionID, reg.UserID, reg.Username, reg.DisplayName, reg.RegisteredAt)
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	reg.ID = id
	return nil
}

// DeleteRegistration removes a registration and reports whether one existed
func (r *EnrollmentRepository) DeleteRegistration(ctx context.Context, sessionID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM registrations WHERE session_id = ? AND user_id = ?", sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete registration: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListRegistrations returns a session's registrations in registration order
func (r *EnrollmentRepository) ListRegistrations(ctx context.Context, sessionID string) ([]models.Registration, error) {
	query := `
		SELECT id, session_id, user_id, username, display_name, registered_at
		FROM registrations
		WHERE session_id = ?
		ORDER BY registered_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	registrations := []models.Registration{}
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.SessionID, &reg.UserID, &reg.Username, &reg.DisplayName, &reg.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		reg.RegisteredAt = reg.RegisteredAt.UTC()
		registrations = append(registrations, reg)
	}
	return registrations, rows.Err()
}

const participantColumns = `id, session_id, user_id, username, display_name, answers, score, joined_at, updated_at`

// GetParticipant returns the caller's participation, or nil, nil when absent.
// Stored answers are validated against questions.
func (r *EnrollmentRepository) GetParticipant(ctx context.Context, sessionID, userID string, questions []models.Question) (*models.Participant, error) {
	return r.getParticipant(ctx, sessionID, userID, questions, "")
}

// GetParticipantForUpdate is GetParticipant with the participant row locked
// until the enclosing transaction ends.
func (r *EnrollmentRepository) GetParticipantForUpdate(ctx context.Context, sessionID, userID string, questions []models.Question) (*models.Participant, error) {
	return r.getParticipant(ctx, sessionID, userID, questions, r.db.GetDialect().ForUpdate())
}

func (r *EnrollmentRepository) getParticipant(ctx context.Context, sessionID, userID string, questions []models.Question, suffix string) (*models.Participant, error) {
	query := "SELECT " + participantColumns + " FROM participants WHERE session_id = ? AND user_id = ?" + suffix

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, sessionID, userID), questions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// CreateParticipant inserts p and sets its ID
func (r *EnrollmentRepository) CreateParticipant(ctx context.Context, p *models.Participant) error {
	answers, err := models.EncodeAnswers(p.Answers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO participants (session_id, user_id, username, display_name, answers, score, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, p.SessionID, p.UserID, p.Username, p.DisplayName, answers, p.Score, p.JoinedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	p.ID = id
	return nil
}

// UpdateParticipantAnswers persists the answers and score of p
func (r *EnrollmentRepository) UpdateParticipantAnswers(ctx context.Context, p *models.Participant) error {
	answers, err := models.EncodeAnswers(p.Answers)
	if err != nil {
		return err
	}

	query := "UPDATE participants SET answers = ?, score = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, answers, p.Score, p.UpdatedAt, p.ID); err != nil {
		return fmt.Errorf("failed to update participant answers: %w", err)
	}
	return nil
}

// ListParticipants returns a session's participants, highest score first
func (r *EnrollmentRepository) ListParticipants(ctx context.Context, sessionID string, questions []models.Question) ([]models.Participant, error) {
	query := "SELECT " + participantColumns + ` FROM participants
		WHERE session_id = ?
		ORDER BY score DESC, joined_at, id`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows, questions)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// CountHigherScores returns how many participants of a session scored strictly more than score
func (r *EnrollmentRepository) CountHigherScores(ctx context.Context, sessionID string, score int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM participants WHERE session_id = ? AND score > ?", sessionID, score).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count higher scores: %w", err)
	}
	return n, nil
}

func scanParticipant(row rowScanner, questions []models.Question) (*models.Participant, error) {
	p := &models.Participant{}
	var answers string

	err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.UserID,
		&p.Username,
		&p.DisplayName,
		&answers,
		&p.Score,
		&p.JoinedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Answers, err = models.DecodeAnswers(answers, questions)
	if err != nil {
		return nil, fmt.Errorf("participant %d: %w", p.ID, err)
	}
	p.JoinedAt = p.JoinedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
