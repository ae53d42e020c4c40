package service

import (
	"context"

	"examhall/internal/models"
)

// RankingService derives ranks within completed sessions and aggregates
// per-user statistics across them. All of its reads are lock-free.
type RankingService struct {
	store *Store
	clock Clock
}

// NewRankingService creates a new ranking service
func NewRankingService(store *Store, clock Clock) *RankingService {
	if clock == nil {
		clock = SystemClock
	}
	return &RankingService{store: store, clock: clock}
}

// Rank is 1 plus the number of participants in the session with a strictly higher score
func (s *RankingService) Rank(ctx context.Context, sessionID string, score int) (int, error) {
	higher, err := s.store.Enrollments.CountHigherScores(ctx, sessionID, score)
	if err != nil {
		return 0, errInternal("failed to rank participant", err)
	}
	return higher + 1, nil
}

// Leaderboard lists a completed session's participants by score with competition ranks
func (s *RankingService) Leaderboard(ctx context.Context, sessionID string) ([]models.LeaderboardEntry, error) {
	session, err := s.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, errInternal("failed to load session", err)
	}
	if session == nil {
		return nil, errNotFound("session")
	}
	if status := models.StatusAt(session, s.clock.now()); status != models.StatusCompleted {
		return nil, errInvalidState("leaderboard is available once the session completes (session is %s)", status)
	}

	participants, err := s.store.Enrollments.ListParticipants(ctx, sessionID, session.Questions)
	if err != nil {
		return nil, errInternal("failed to load participants", err)
	}

	scores := make([]int, len(participants))
	for i, p := range participants {
		scores[i] = p.Score
	}
	ranks := models.CompetitionRanks(scores)

	entries := make([]models.LeaderboardEntry, len(participants))
	for i, p := range participants {
		entries[i] = models.LeaderboardEntry{
			Rank:        ranks[i],
			UserID:      p.UserID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			Score:       p.Score,
		}
	}
	return entries, nil
}

// GetMyStatistics aggregates the caller's results over completed sessions
func (s *RankingService) GetMyStatistics(ctx context.Context, caller *Caller) (*models.UserStatistics, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}

	rows, err := s.store.Stats.ListCompletedParticipations(ctx, caller.UserID)
	if err != nil {
		return nil, errInternal("failed to load statistics", err)
	}
	stats := models.CalculateStatistics(rows)
	return &stats, nil
}
