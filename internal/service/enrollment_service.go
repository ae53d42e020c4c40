package service

import (
	"context"
	"log/slog"
	"time"

	"examhall/internal/models"
	"examhall/internal/validation"
)

// RegistrationResult is the outcome of Register. Created is false when the
// caller was already registered.
type RegistrationResult struct {
	Registration *models.Registration `json:"registration"`
	Created      bool                 `json:"created"`
}

// JoinResult is the outcome of Join. Created is false when the caller had
// already joined.
type JoinResult struct {
	Participant *models.Participant `json:"participant"`
	Created     bool                `json:"created"`
}

// EnrollmentService implements the capacity-safe register and join protocol.
// For one session, every register, join and unregister is serialized on the
// session row lock, so the count check and the insert see the same state and
// the seat limit cannot be exceeded.
type EnrollmentService struct {
	store  *Store
	mailer Mailer
	clock  Clock
	logger *slog.Logger
}

// NewEnrollmentService creates a new enrollment service. mailer may be nil.
func NewEnrollmentService(store *Store, mailer Mailer, clock Clock, logger *slog.Logger) *EnrollmentService {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrollmentService{store: store, mailer: mailer, clock: clock, logger: logger}
}

// lockAndAdvance loads the session under its row lock and brings its status
// up to date inside the same transaction.
func (s *EnrollmentService) lockAndAdvance(ctx context.Context, r *txRepos, sessionID string, now time.Time) (*models.Session, error) {
	session, err := r.sessions.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, errInternal("failed to load session", err)
	}
	if session == nil {
		return nil, errNotFound("session")
	}

	steps, err := advanceSession(ctx, r.sessions, session, now)
	if err != nil {
		return nil, errInternal("failed to advance session status", err)
	}
	for _, step := range steps {
		s.logger.Debug("session status brought up to date", "session_id", step.SessionID, "from", step.From, "to", step.To)
	}
	return session, nil
}

// Register reserves a seat for caller in a scheduled session
func (s *EnrollmentService) Register(ctx context.Context, sessionID string, caller *Caller) (*RegistrationResult, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}

	var result *RegistrationResult
	var session *models.Session
	err := s.store.inLockedTx(ctx, sessionID, func(r *txRepos) error {
		now := s.clock.now()

		var err error
		session, err = s.lockAndAdvance(ctx, r, sessionID, now)
		if err != nil {
			return err
		}
		if session.Status != models.StatusScheduled {
			return reject(errInvalidState("registration is closed (session is %s)", session.Status))
		}

		existing, err := r.enrollments.GetRegistration(ctx, sessionID, caller.UserID)
		if err != nil {
			return errInternal("failed to check registration", err)
		}
		if existing != nil {
			result = &RegistrationResult{Registration: existing, Created: false}
			return nil
		}

		count, err := r.sessions.CountRegistrations(ctx, sessionID)
		if err != nil {
			return errInternal("failed to count registrations", err)
		}
		if count >= session.MaxParticipants {
			return reject(newError(KindSessionFull, "session is full (%d of %d seats taken)", count, session.MaxParticipants))
		}

		reg := &models.Registration{
			SessionID:    sessionID,
			UserID:       caller.UserID,
			Username:     caller.Username,
			DisplayName:  caller.DisplayName,
			RegisteredAt: now,
		}
		if err := r.enrollments.CreateRegistration(ctx, reg); err != nil {
			return errInternal("failed to create registration", err)
		}
		result = &RegistrationResult{Registration: reg, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.logger.Info("user registered", "session_id", sessionID, "user_id", caller.UserID)
		s.sendConfirmation(ctx, caller, session)
	}
	return result, nil
}

// sendConfirmation runs after commit; a mail failure never undoes the registration
func (s *EnrollmentService) sendConfirmation(ctx context.Context, caller *Caller, session *models.Session) {
	if s.mailer == nil || caller.Email == "" {
		return
	}
	if err := validation.ValidateEmail(caller.Email); err != nil {
		s.logger.Warn("registration confirmation skipped", "session_id", session.ID, "user_id", caller.UserID, "error", err)
		return
	}
	if err := s.mailer.SendRegistrationConfirmation(ctx, caller.Email, caller.DisplayName, session); err != nil {
		s.logger.Warn("registration confirmation failed", "session_id", session.ID, "user_id", caller.UserID, "error", err)
	}
}

// Unregister removes caller's registration. It reports whether a registration
// existed; removing a missing registration is not an error. Registrations are
// frozen once the session has completed or been cancelled.
func (s *EnrollmentService) Unregister(ctx context.Context, sessionID string, caller *Caller) (bool, error) {
	if caller == nil {
		return false, ErrAuthRequired
	}

	var removed bool
	err := s.store.inLockedTx(ctx, sessionID, func(r *txRepos) error {
		session, err := s.lockAndAdvance(ctx, r, sessionID, s.clock.now())
		if err != nil {
			return err
		}
		if session.Status.IsTerminal() {
			return reject(errInvalidState("session is %s", session.Status))
		}

		removed, err = r.enrollments.DeleteRegistration(ctx, sessionID, caller.UserID)
		if err != nil {
			return errInternal("failed to remove registration", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.logger.Info("user unregistered", "session_id", sessionID, "user_id", caller.UserID)
	}
	return removed, nil
}

// Join makes caller a participant of a session in its lobby or active window
func (s *EnrollmentService) Join(ctx context.Context, sessionID string, caller *Caller) (*JoinResult, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}

	var result *JoinResult
	err := s.store.inLockedTx(ctx, sessionID, func(r *txRepos) error {
		now := s.clock.now()

		session, err := s.lockAndAdvance(ctx, r, sessionID, now)
		if err != nil {
			return err
		}
		if session.Status != models.StatusLobby && session.Status != models.StatusActive {
			return reject(errInvalidState("session cannot be joined while %s", session.Status))
		}

		existing, err := r.enrollments.GetParticipant(ctx, sessionID, caller.UserID, session.Questions)
		if err != nil {
			return errInternal("failed to check participant", err)
		}
		if existing != nil {
			result = &JoinResult{Participant: existing, Created: false}
			return nil
		}

		count, err := r.sessions.CountParticipants(ctx, sessionID)
		if err != nil {
			return errInternal("failed to count participants", err)
		}
		if count >= session.MaxParticipants {
			return reject(newError(KindSessionFull, "session is full (%d of %d seats taken)", count, session.MaxParticipants))
		}

		p := &models.Participant{
			SessionID:   sessionID,
			UserID:      caller.UserID,
			Username:    caller.Username,
			DisplayName: caller.DisplayName,
			Answers:     models.NewAnswers(len(session.Questions)),
			JoinedAt:    now,
			UpdatedAt:   now,
		}
		if err := r.enrollments.CreateParticipant(ctx, p); err != nil {
			return errInternal("failed to create participant", err)
		}
		result = &JoinResult{Participant: p, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.logger.Info("user joined", "session_id", sessionID, "user_id", caller.UserID)
	}
	return result, nil
}
