package repository

import (
	"context"
	"fmt"

	"examhall/internal/database"
	"examhall/internal/models"
)

// StatsRepository reads cross-session results for a user
type StatsRepository struct {
	db database.Querier
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db database.Querier) *StatsRepository {
	return &StatsRepository{db: db}
}

// ListCompletedParticipations returns every completed session the user took
// part in, with the user's score and finishing rank.
func (r *StatsRepository) ListCompletedParticipations(ctx context.Context, userID string) ([]models.CompletedParticipation, error) {
	query := `
		SELECT p.session_id, s.level, p.score, s.questions,
			(SELECT COUNT(*) FROM participants h WHERE h.session_id = p.session_id AND h.score > p.score) + 1 AS finish_rank
		FROM participants p
		JOIN sessions s ON s.id = p.session_id
		WHERE p.user_id = ? AND s.status = ?
		ORDER BY s.completed_at, s.id
	`
	rows, err := r.db.QueryContext(ctx, query, userID, string(models.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to list completed participations: %w", err)
	}
	defer rows.Close()

	var results []models.CompletedParticipation
	for rows.Next() {
		var row models.CompletedParticipation
		var questions string
		if err := rows.Scan(&row.SessionID, &row.Level, &row.Score, &questions, &row.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan participation: %w", err)
		}
		decoded, err := models.DecodeQuestions(questions)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", row.SessionID, err)
		}
		row.TotalQuestions = len(decoded)
		results = append(results, row)
	}
	return results, rows.Err()
}
