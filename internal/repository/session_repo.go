package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"examhall/internal/database"
	"examhall/internal/models"
)

const sessionColumns = `
	id, name, description, level, host_id, host_name, questions, status,
	current_question_index, created_at, updated_at, scheduled_start_time,
	scheduled_end_time, lobby_open_time, duration_minutes, max_participants,
	started_at, completed_at`

// SessionFilter narrows ListSessions results. Zero values match everything.
type SessionFilter struct {
	Status models.SessionStatus
	Level  string
	HostID string
	Limit  int
}

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	db database.Querier
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db database.Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SessionRepository) WithTx(tx *database.Tx) *SessionRepository {
	return &SessionRepository{db: tx}
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	questions, err := models.EncodeQuestions(s.Questions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, name, description, level, host_id, host_name, questions, status,
			current_question_index, created_at, updated_at, scheduled_start_time,
			scheduled_end_time, lobby_open_time, duration_minutes, max_participants)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.Description, s.Level, s.HostID, s.HostName, questions, string(s.Status),
		s.CurrentQuestionIndex, s.CreatedAt, s.UpdatedAt, s.ScheduledStartTime,
		s.ScheduledEndTime, s.LobbyOpenTime, s.DurationMinutes, s.MaxParticipants,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID. It returns nil, nil when no session exists.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return r.get(ctx, id, "")
}

// GetByIDForUpdate retrieves a session and locks its row until the enclosing
// transaction ends. On stores without row locks the caller must hold the
// session's keyed mutex instead.
func (r *SessionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Session, error) {
	return r.get(ctx, id, r.db.GetDialect().ForUpdate())
}

func (r *SessionRepository) get(ctx context.Context, id, suffix string) (*models.Session, error) {
	query := "SELECT" + sessionColumns + " FROM sessions WHERE id = ?" + suffix

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// List returns sessions matching filter ordered by scheduled start
func (r *SessionRepository) List(ctx context.Context, filter SessionFilter) ([]*models.Session, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, filter.Level)
	}
	if filter.HostID != "" {
		conditions = append(conditions, "host_id = ?")
		args = append(args, filter.HostID)
	}

	query := "SELECT" + sessionColumns + " FROM sessions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scheduled_start_time, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return r.query(ctx, query, args...)
}

// ListNonTerminal returns every session that may still change status
func (r *SessionRepository) ListNonTerminal(ctx context.Context) ([]*models.Session, error) {
	query := "SELECT" + sessionColumns + ` FROM sessions
		WHERE status IN ('scheduled', 'lobby', 'active')
		ORDER BY scheduled_start_time, id`
	return r.query(ctx, query)
}

func (r *SessionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Update persists the host-editable fields of a session
func (r *SessionRepository) Update(ctx context.Context, s *models.Session) error {
	questions, err := models.EncodeQuestions(s.Questions)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET name = ?, description = ?, level = ?, questions = ?, current_question_index = ?,
			scheduled_start_time = ?, scheduled_end_time = ?, lobby_open_time = ?,
			duration_minutes = ?, max_participants = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.ExecContext(ctx, query,
		s.Name, s.Description, s.Level, questions, s.CurrentQuestionIndex,
		s.ScheduledStartTime, s.ScheduledEndTime, s.LobbyOpenTime,
		s.DurationMinutes, s.MaxParticipants, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// TransitionStatus moves a session from one status to another with a single
// conditional update. It reports whether this call made the transition;
// false means the session was no longer in the from status.
// started_at and completed_at are only stamped by the winning update.
func (r *SessionRepository) TransitionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error) {
	set := "status = ?, updated_at = ?"
	args := []interface{}{string(to), at}

	switch to {
	case models.StatusActive:
		set += ", started_at = COALESCE(started_at, ?)"
		args = append(args, at)
	case models.StatusCompleted:
		set += ", completed_at = COALESCE(completed_at, ?)"
		args = append(args, at)
	}
	args = append(args, id, string(from))

	query := "UPDATE sessions SET " + set + " WHERE id = ? AND status = ?"
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition session %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read transition result: %w", err)
	}
	return n == 1, nil
}

// Delete removes a session; registrations and participants cascade.
// It reports whether a row was removed.
func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountRegistrations returns the number of registrations for a session
func (r *SessionRepository) CountRegistrations(ctx context.Context, sessionID string) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM registrations WHERE session_id = ?", sessionID)
}

// CountParticipants returns the number of participants for a session
func (r *SessionRepository) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM participants WHERE session_id = ?", sessionID)
}

func (r *SessionRepository) count(ctx context.Context, query, sessionID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var questions, status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.Level,
		&s.HostID,
		&s.HostName,
		&questions,
		&status,
		&s.CurrentQuestionIndex,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ScheduledStartTime,
		&s.ScheduledEndTime,
		&s.LobbyOpenTime,
		&s.DurationMinutes,
		&s.MaxParticipants,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	if !s.Status.Valid() {
		return nil, fmt.Errorf("session %s has unknown status %q", s.ID, status)
	}
	s.Questions, err = models.DecodeQuestions(questions)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}

	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.ScheduledStartTime = s.ScheduledStartTime.UTC()
	s.ScheduledEndTime = s.ScheduledEndTime.UTC()
	s.LobbyOpenTime = s.LobbyOpenTime.UTC()
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		s.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		s.CompletedAt = &t
	}
	return s, nil
}
