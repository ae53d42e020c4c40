package service

import (
	"context"
	"log/slog"

	"examhall/internal/models"
	"examhall/internal/validation"
)

// AnswerService records participant answers and keeps scores consistent.
// Read-modify-write of one participant is serialized on that participant's
// row, so concurrent submissions from the same user never lose an update;
// different participants never contend.
type AnswerService struct {
	store   *Store
	ranking *RankingService
	clock   Clock
	logger  *slog.Logger
}

// NewAnswerService creates a new answer service
func NewAnswerService(store *Store, ranking *RankingService, clock Clock, logger *slog.Logger) *AnswerService {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerService{store: store, ranking: ranking, clock: clock, logger: logger}
}

func participantLockKey(sessionID, userID string) string {
	return sessionID + ":" + userID
}

// SubmitAnswer stores answer at questionIndex, replacing any earlier answer,
// and recomputes the score from scratch.
func (s *AnswerService) SubmitAnswer(ctx context.Context, sessionID string, caller *Caller, questionIndex, answer int) (*models.Participant, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}

	var result *models.Participant
	err := s.store.inLockedTx(ctx, participantLockKey(sessionID, caller.UserID), func(r *txRepos) error {
		now := s.clock.now()

		session, err := r.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return errInternal("failed to load session", err)
		}
		if session == nil {
			return errNotFound("session")
		}
		if status := models.StatusAt(session, now); status != models.StatusActive {
			return errInvalidState("answers are only accepted while the session is active (session is %s)", status)
		}

		p, err := r.enrollments.GetParticipantForUpdate(ctx, sessionID, caller.UserID, session.Questions)
		if err != nil {
			return errInternal("failed to load participant", err)
		}
		if p == nil {
			return newError(KindNotFound, "not a participant of this session")
		}

		var errs validation.Errors
		if questionIndex < 0 || questionIndex >= len(session.Questions) {
			errs.Add("questionIndex", "questionIndex must be between 0 and %d", len(session.Questions)-1)
		} else if options := len(session.Questions[questionIndex].Options); answer < 0 || answer >= options {
			errs.Add("answer", "answer must be between 0 and %d", options-1)
		}
		if len(errs) > 0 {
			return errValidation(errs)
		}

		a := answer
		p.Answers[questionIndex] = &a
		p.Score = models.ScoreAnswers(session.Questions, p.Answers)
		p.UpdatedAt = now

		if err := r.enrollments.UpdateParticipantAnswers(ctx, p); err != nil {
			return errInternal("failed to save answer", err)
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("answer recorded", "session_id", sessionID, "user_id", caller.UserID, "question", questionIndex, "score", result.Score)
	return result, nil
}

// GetMyParticipation returns the caller's answers and score. Once the
// session has completed it also carries the rank and the correct answers.
func (s *AnswerService) GetMyParticipation(ctx context.Context, sessionID string, caller *Caller) (*models.ParticipantView, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}

	session, err := s.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, errInternal("failed to load session", err)
	}
	if session == nil {
		return nil, errNotFound("session")
	}

	p, err := s.store.Enrollments.GetParticipant(ctx, sessionID, caller.UserID, session.Questions)
	if err != nil {
		return nil, errInternal("failed to load participant", err)
	}
	if p == nil {
		return nil, newError(KindNotFound, "not a participant of this session")
	}

	status := models.StatusAt(session, s.clock.now())
	view := &models.ParticipantView{
		Participant:    *p,
		Status:         status,
		TotalQuestions: len(session.Questions),
		Answered:       models.AnsweredCount(p.Answers),
	}
	if status == models.StatusCompleted {
		rank, err := s.ranking.Rank(ctx, sessionID, p.Score)
		if err != nil {
			return nil, err
		}
		view.Rank = &rank
		view.CorrectAnswers = session.CorrectAnswers()
	}
	return view, nil
}
