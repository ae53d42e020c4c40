package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"examhall/internal/models"
	"examhall/internal/questionbank"
	"examhall/internal/repository"
	"examhall/internal/security"
	"examhall/internal/validation"
)

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 300
	MinParticipants    = 1
	MaxParticipants    = 1000
	MaxQuestionCount   = 200
	DefaultListLimit   = 100
	MaxListLimit       = 500
)

// CreateSessionInput is a host's request for a new session. Questions are
// either given inline or drawn from the question bank by QuestionBankID.
type CreateSessionInput struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Level              string            `json:"level"`
	Questions          []models.Question `json:"questions"`
	QuestionBankID     string            `json:"questionBankId"`
	QuestionCount      int               `json:"questionCount"`
	ScheduledStartTime time.Time         `json:"scheduledStartTime"`
	DurationMinutes    int               `json:"durationMinutes"`
	MaxParticipants    int               `json:"maxParticipants"`
}

// SessionPatch holds the fields a host may change while a session is scheduled
type SessionPatch struct {
	Name                 *string            `json:"name"`
	Description          *string            `json:"description"`
	Level                *string            `json:"level"`
	Questions            *[]models.Question `json:"questions"`
	CurrentQuestionIndex *int               `json:"currentQuestionIndex"`
	ScheduledStartTime   *time.Time         `json:"scheduledStartTime"`
	DurationMinutes      *int               `json:"durationMinutes"`
	MaxParticipants      *int               `json:"maxParticipants"`
}

// ParticipantSummary is a participant as listed on a session. Scores are
// only shown once the session has completed.
type ParticipantSummary struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
	Score       *int      `json:"score,omitempty"`
}

// SessionDetails is a session with its enrollment summaries
type SessionDetails struct {
	Session           models.SessionView    `json:"session"`
	Registrations     []models.Registration `json:"registrations"`
	Participants      []ParticipantSummary  `json:"participants"`
	RegistrationCount int                   `json:"registrationCount"`
	ParticipantCount  int                   `json:"participantCount"`
	IsRegistered      bool                  `json:"isRegistered"`
	IsParticipant     bool                  `json:"isParticipant"`
}

// SessionService coordinates host operations on sessions and the status sweep
type SessionService struct {
	store     *Store
	bank      questionbank.Provider
	clock     Clock
	lobbyLead time.Duration
	logger    *slog.Logger
}

// NewSessionService creates a new session service. bank may be nil when no
// question bank is configured.
func NewSessionService(store *Store, bank questionbank.Provider, clock Clock, lobbyLead time.Duration, logger *slog.Logger) *SessionService {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		store:     store,
		bank:      bank,
		clock:     clock,
		lobbyLead: lobbyLead,
		logger:    logger,
	}
}

// RevealAnswers reports whether caller may see the correct answers of s
func RevealAnswers(caller *Caller, s *models.Session) bool {
	if s.Status == models.StatusCompleted {
		return true
	}
	return caller != nil && caller.CanManage(s.HostID)
}

// CreateSession creates a new session in scheduled status
func (s *SessionService) CreateSession(ctx context.Context, caller *Caller, in CreateSessionInput) (*models.Session, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}
	if !caller.CanHost() {
		return nil, errForbidden("only hosts can create sessions")
	}

	now := s.clock.now()
	in.Name = strings.TrimSpace(in.Name)
	in.Level = strings.TrimSpace(in.Level)
	if in.Level == "" {
		in.Level = models.DefaultLevel
	}

	var errs validation.Errors
	errs.Required("name", in.Name)
	errs.MaxLength("name", in.Name, 200)
	errs.MaxLength("description", in.Description, 2000)
	errs.Level("level", in.Level)
	errs.IntRange("durationMinutes", in.DurationMinutes, MinDurationMinutes, MaxDurationMinutes)
	errs.IntRange("maxParticipants", in.MaxParticipants, MinParticipants, MaxParticipants)
	errs.Future("scheduledStartTime", in.ScheduledStartTime, now)

	if in.QuestionBankID != "" {
		if len(in.Questions) > 0 {
			errs.Add("questions", "give either questions or questionBankId, not both")
		}
		if s.bank == nil {
			errs.Add("questionBankId", "no question bank is configured")
		}
		errs.IntRange("questionCount", in.QuestionCount, 1, MaxQuestionCount)
	} else {
		if len(in.Questions) > MaxQuestionCount {
			errs.Add("questions", "at most %d questions are allowed", MaxQuestionCount)
		} else if err := models.ValidateQuestions(in.Questions); err != nil {
			errs.Add("questions", "%s", err.Error())
		}
	}
	if err := errs.Err(); err != nil {
		return nil, errValidation(errs)
	}

	questions := in.Questions
	if in.QuestionBankID != "" {
		fetched, err := s.bank.FetchQuestions(ctx, in.QuestionBankID, in.QuestionCount)
		switch {
		case errors.Is(err, questionbank.ErrBankNotFound):
			errs.Add("questionBankId", "question bank %q not found", in.QuestionBankID)
			return nil, errValidation(errs)
		case errors.Is(err, questionbank.ErrNotEnoughQuestion):
			errs.Add("questionCount", "%s", err.Error())
			return nil, errValidation(errs)
		case err != nil:
			return nil, errInternal("failed to fetch questions", err)
		}
		questions = fetched
	}

	session := &models.Session{
		ID:              security.NewID(),
		Name:            in.Name,
		Description:     in.Description,
		Level:           in.Level,
		HostID:          caller.UserID,
		HostName:        caller.DisplayName,
		Questions:       questions,
		Status:          models.StatusScheduled,
		MaxParticipants: in.MaxParticipants,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	session.ApplySchedule(in.ScheduledStartTime, in.DurationMinutes, s.lobbyLead)
	if !session.ScheduleValid() {
		errs.Add("scheduledStartTime", "lobby, start and end times are out of order")
		return nil, errValidation(errs)
	}

	if err := s.store.Sessions.Create(ctx, session); err != nil {
		return nil, errInternal("failed to create session", err)
	}

	s.logger.Info("session created",
		"session_id", session.ID,
		"host_id", session.HostID,
		"start", session.ScheduledStartTime,
		"max_participants", session.MaxParticipants,
		"questions", len(session.Questions),
	)
	return session, nil
}

// ListSessions returns sessions matching filter
func (s *SessionService) ListSessions(ctx context.Context, filter repository.SessionFilter) ([]*models.Session, error) {
	var errs validation.Errors
	if filter.Status != "" && !filter.Status.Valid() {
		errs.Add("status", "unknown status %q", filter.Status)
	}
	if filter.Limit < 0 {
		errs.Add("limit", "limit must not be negative")
	}
	if err := errs.Err(); err != nil {
		return nil, errValidation(errs)
	}

	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}

	sessions, err := s.store.Sessions.List(ctx, filter)
	if err != nil {
		return nil, errInternal("failed to list sessions", err)
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return sessions, nil
}

// GetSession returns a session with its registrations, participants and the
// caller's own enrollment flags.
func (s *SessionService) GetSession(ctx context.Context, caller *Caller, id string) (*SessionDetails, error) {
	session, err := s.store.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, errInternal("failed to load session", err)
	}
	if session == nil {
		return nil, errNotFound("session")
	}

	registrations, err := s.store.Enrollments.ListRegistrations(ctx, id)
	if err != nil {
		return nil, errInternal("failed to load registrations", err)
	}
	participants, err := s.store.Enrollments.ListParticipants(ctx, id, session.Questions)
	if err != nil {
		return nil, errInternal("failed to load participants", err)
	}

	details := &SessionDetails{
		Session:           session.Public(RevealAnswers(caller, session)),
		Registrations:     registrations,
		Participants:      make([]ParticipantSummary, 0, len(participants)),
		RegistrationCount: len(registrations),
		ParticipantCount:  len(participants),
	}

	completed := session.Status == models.StatusCompleted
	for _, p := range participants {
		summary := ParticipantSummary{
			UserID:      p.UserID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt,
		}
		if completed {
			score := p.Score
			summary.Score = &score
		}
		details.Participants = append(details.Participants, summary)

		if caller != nil && p.UserID == caller.UserID {
			details.IsParticipant = true
		}
	}
	if caller != nil {
		for _, r := range registrations {
			if r.UserID == caller.UserID {
				details.IsRegistered = true
				break
			}
		}
	}

	return details, nil
}

// UpdateSession applies patch to a session that is still scheduled
func (s *SessionService) UpdateSession(ctx context.Context, caller *Caller, id string, patch SessionPatch) (*models.Session, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}

	var updated *models.Session
	err := s.store.inLockedTx(ctx, id, func(r *txRepos) error {
		now := s.clock.now()

		session, err := r.sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return errInternal("failed to load session", err)
		}
		if session == nil {
			return errNotFound("session")
		}
		if !caller.CanManage(session.HostID) {
			return errForbidden("only the session's host or an admin can edit it")
		}

		if _, err := advanceSession(ctx, r.sessions, session, now); err != nil {
			return errInternal("failed to advance session status", err)
		}
		if session.Status != models.StatusScheduled {
			return reject(errInvalidState("session can only be edited while scheduled (status is %s)", session.Status))
		}

		var errs validation.Errors
		if patch.Name != nil {
			session.Name = strings.TrimSpace(*patch.Name)
			errs.Required("name", session.Name)
			errs.MaxLength("name", session.Name, 200)
		}
		if patch.Description != nil {
			session.Description = *patch.Description
			errs.MaxLength("description", session.Description, 2000)
		}
		if patch.Level != nil {
			session.Level = strings.TrimSpace(*patch.Level)
			if session.Level == "" {
				session.Level = models.DefaultLevel
			}
			errs.Level("level", session.Level)
		}
		if patch.Questions != nil {
			if err := models.ValidateQuestions(*patch.Questions); err != nil {
				errs.Add("questions", "%s", err.Error())
			} else if len(*patch.Questions) > MaxQuestionCount {
				errs.Add("questions", "at most %d questions are allowed", MaxQuestionCount)
			}
			session.Questions = *patch.Questions
		}
		if patch.CurrentQuestionIndex != nil {
			session.CurrentQuestionIndex = *patch.CurrentQuestionIndex
		}
		if session.CurrentQuestionIndex < 0 || session.CurrentQuestionIndex >= len(session.Questions) {
			errs.Add("currentQuestionIndex", "currentQuestionIndex must index a question")
		}

		start := session.ScheduledStartTime
		duration := session.DurationMinutes
		if patch.ScheduledStartTime != nil {
			start = *patch.ScheduledStartTime
			errs.Future("scheduledStartTime", start, now)
		}
		if patch.DurationMinutes != nil {
			duration = *patch.DurationMinutes
			errs.IntRange("durationMinutes", duration, MinDurationMinutes, MaxDurationMinutes)
		}
		session.ApplySchedule(start, duration, s.lobbyLead)

		if patch.MaxParticipants != nil {
			session.MaxParticipants = *patch.MaxParticipants
			errs.IntRange("maxParticipants", session.MaxParticipants, MinParticipants, MaxParticipants)

			registered, err := r.sessions.CountRegistrations(ctx, id)
			if err != nil {
				return errInternal("failed to count registrations", err)
			}
			if session.MaxParticipants < registered {
				errs.Add("maxParticipants", "cannot lower maxParticipants below the %d current registrations", registered)
			}
		}

		if len(errs) == 0 && !session.ScheduleValid() {
			errs.Add("scheduledStartTime", "lobby, start and end times are out of order")
		}
		if len(errs) > 0 {
			return reject(errValidation(errs))
		}

		session.UpdatedAt = now
		if err := r.sessions.Update(ctx, session); err != nil {
			return errInternal("failed to update session", err)
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session updated", "session_id", id, "by", caller.UserID)
	return updated, nil
}

// CancelSession moves a non-terminal session to cancelled. Cancelling an
// already cancelled session succeeds without change.
func (s *SessionService) CancelSession(ctx context.Context, caller *Caller, id string) (*models.Session, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}

	var result *models.Session
	var changed bool
	err := s.store.inLockedTx(ctx, id, func(r *txRepos) error {
		now := s.clock.now()

		session, err := r.sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return errInternal("failed to load session", err)
		}
		if session == nil {
			return errNotFound("session")
		}
		if !caller.CanManage(session.HostID) {
			return errForbidden("only the session's host or an admin can cancel it")
		}

		if _, err := advanceSession(ctx, r.sessions, session, now); err != nil {
			return errInternal("failed to advance session status", err)
		}

		if session.Status == models.StatusCancelled {
			result = session
			return nil
		}
		if !models.CanCancel(session.Status) {
			return reject(newError(KindConflict, "session has already %s", session.Status))
		}

		won, err := r.sessions.TransitionStatus(ctx, id, session.Status, models.StatusCancelled, now)
		if err != nil {
			return errInternal("failed to cancel session", err)
		}
		if !won {
			return errInternal("failed to cancel session", errors.New("session status changed under lock"))
		}
		models.ApplyStep(session, models.StatusCancelled, now)
		result = session
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("session cancelled", "session_id", id, "by", caller.UserID)
	}
	return result, nil
}

// DeleteSession removes a session and its enrollments. Admin only.
func (s *SessionService) DeleteSession(ctx context.Context, caller *Caller, id string) error {
	if caller == nil {
		return ErrAuthRequired
	}
	if !caller.IsAdmin() {
		return errForbidden("only admins can delete sessions")
	}

	err := s.store.inLockedTx(ctx, id, func(r *txRepos) error {
		deleted, err := r.sessions.Delete(ctx, id)
		if err != nil {
			return errInternal("failed to delete session", err)
		}
		if !deleted {
			return errNotFound("session")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("session deleted", "session_id", id, "by", caller.UserID)
	return nil
}

// AdvanceStatuses is the status sweep: every non-terminal session whose time
// condition holds at now is moved forward. It is idempotent and safe to run
// concurrently with itself and with enrollment; each step is a conditional
// update that only one caller can win. Failures on one session do not stop
// the sweep; they are joined into the returned error.
func (s *SessionService) AdvanceStatuses(ctx context.Context, now time.Time) ([]models.Transition, error) {
	now = now.UTC().Truncate(time.Microsecond)

	sessions, err := s.store.Sessions.ListNonTerminal(ctx)
	if err != nil {
		return nil, errInternal("failed to list sessions", err)
	}

	applied := []models.Transition{}
	var errs []error
	for _, session := range sessions {
		if models.StatusAt(session, now) == session.Status {
			continue
		}
		steps, err := advanceSession(ctx, s.store.Sessions, session, now)
		applied = append(applied, steps...)
		if err != nil {
			s.logger.Error("status sweep failed", "session_id", session.ID, "error", err)
			errs = append(errs, err)
		}
		for _, step := range steps {
			s.logger.Info("session status advanced", "session_id", step.SessionID, "from", step.From, "to", step.To)
		}
	}

	if len(errs) > 0 {
		return applied, errInternal("status sweep incomplete", errors.Join(errs...))
	}
	return applied, nil
}

// Sweep runs AdvanceStatuses at the service clock's now
func (s *SessionService) Sweep(ctx context.Context) ([]models.Transition, error) {
	return s.AdvanceStatuses(ctx, s.clock.now())
}
