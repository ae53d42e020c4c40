package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"examhall/internal/database"
	"examhall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations("../../migrations"))
	return db
}

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newSession(id string) *models.Session {
	s := &models.Session{
		ID:              id,
		Name:            "Session " + id,
		Level:           "beginner",
		HostID:          "host-1",
		HostName:        "Host",
		Status:          models.StatusScheduled,
		MaxParticipants: 3,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
		Questions: []models.Question{
			{Prompt: "a", Options: []string{"x", "y"}, CorrectAnswer: 0},
			{Prompt: "b", Options: []string{"x", "y", "z"}, CorrectAnswer: 2},
		},
	}
	s.ApplySchedule(baseTime.Add(time.Hour), 60, 15*time.Minute)
	return s
}

func TestSessionRepositoryCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	s := newSession("s-1")
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, s.Questions, got.Questions)
	assert.True(t, s.ScheduledStartTime.Equal(got.ScheduledStartTime))
	assert.True(t, s.LobbyOpenTime.Equal(got.LobbyOpenTime))
	assert.Nil(t, got.StartedAt)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	got.Name = "Renamed"
	got.MaxParticipants = 10
	require.NoError(t, repo.Update(ctx, got))
	updated, err := repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 10, updated.MaxParticipants)

	deleted, err := repo.Delete(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSessionRepositoryList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	for i, id := range []string{"s-1", "s-2", "s-3"} {
		s := newSession(id)
		s.ApplySchedule(baseTime.Add(time.Duration(3-i)*time.Hour), 30, 15*time.Minute)
		if id == "s-2" {
			s.Level = "advanced"
			s.HostID = "host-2"
		}
		require.NoError(t, repo.Create(ctx, s))
	}
	_, err := repo.TransitionStatus(ctx, "s-3", models.StatusScheduled, models.StatusCancelled, baseTime)
	require.NoError(t, err)

	all, err := repo.List(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s-3", all[0].ID, "ordered by start time")

	byLevel, err := repo.List(ctx, SessionFilter{Level: "advanced"})
	require.NoError(t, err)
	require.Len(t, byLevel, 1)
	assert.Equal(t, "s-2", byLevel[0].ID)

	byHost, err := repo.List(ctx, SessionFilter{HostID: "host-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byHost, 1)

	cancelled, err := repo.List(ctx, SessionFilter{Status: models.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)

	open, err := repo.ListNonTerminal(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestTransitionStatusIsConditional(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)
	require.NoError(t, repo.Create(ctx, newSession("s-1")))

	first := baseTime.Add(65 * time.Minute)

	won, err := repo.TransitionStatus(ctx, "s-1", models.StatusScheduled, models.StatusLobby, first)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.TransitionStatus(ctx, "s-1", models.StatusScheduled, models.StatusLobby, first)
	require.NoError(t, err)
	assert.False(t, won, "second identical transition must lose")

	won, err = repo.TransitionStatus(ctx, "s-1", models.StatusLobby, models.StatusActive, first)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.TransitionStatus(ctx, "s-1", models.StatusLobby, models.StatusActive, first.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, won)

	s, err := repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, s.Status)
	require.NotNil(t, s.StartedAt)
	assert.True(t, first.Equal(*s.StartedAt))
}

func TestEnrollmentRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sessions := NewSessionRepository(db)
	repo := NewEnrollmentRepository(db)

	s := newSession("s-1")
	require.NoError(t, sessions.Create(ctx, s))

	reg := &models.Registration{SessionID: "s-1", UserID: "u-1", Username: "alice", RegisteredAt: baseTime}
	require.NoError(t, repo.CreateRegistration(ctx, reg))
	assert.NotZero(t, reg.ID)

	got, err := repo.GetRegistration(ctx, "s-1", "u-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)

	count, err := sessions.CountRegistrations(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	regs, err := repo.ListRegistrations(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, regs, 1)

	removed, err := repo.DeleteRegistration(ctx, "s-1", "u-1")
	require.NoError(t, err)
	assert.True(t, removed)
	got, err = repo.GetRegistration(ctx, "s-1", "u-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	for i, user := range []string{"u-1", "u-2", "u-3"} {
		p := &models.Participant{
			SessionID: "s-1", UserID: user, Username: user,
			Answers: models.NewAnswers(len(s.Questions)), JoinedAt: baseTime.Add(time.Duration(i) * time.Second), UpdatedAt: baseTime,
		}
		require.NoError(t, repo.CreateParticipant(ctx, p))
	}

	p, err := repo.GetParticipant(ctx, "s-1", "u-2", s.Questions)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Len(t, p.Answers, 2)
	assert.Nil(t, p.Answers[0])

	answer := 2
	p.Answers[1] = &answer
	p.Score = models.ScoreAnswers(s.Questions, p.Answers)
	require.NoError(t, repo.UpdateParticipantAnswers(ctx, p))

	list, err := repo.ListParticipants(ctx, "s-1", s.Questions)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "u-2", list[0].UserID, "highest score first")
	assert.Equal(t, 1, list[0].Score)

	higher, err := repo.CountHigherScores(ctx, "s-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, higher)
}

func TestStatsRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sessions := NewSessionRepository(db)
	enrollments := NewEnrollmentRepository(db)
	stats := NewStatsRepository(db)

	for _, id := range []string{"done", "open"} {
		s := newSession(id)
		require.NoError(t, sessions.Create(ctx, s))
		for user, score := range map[string]int{"u-1": 1, "u-2": 2} {
			require.NoError(t, enrollments.CreateParticipant(ctx, &models.Participant{
				SessionID: id, UserID: user, Username: user,
				Answers: models.NewAnswers(2), Score: score, JoinedAt: baseTime, UpdatedAt: baseTime,
			}))
		}
	}
	for _, step := range []models.SessionStatus{models.StatusLobby, models.StatusActive, models.StatusCompleted} {
		prev := map[models.SessionStatus]models.SessionStatus{
			models.StatusLobby: models.StatusScheduled, models.StatusActive: models.StatusLobby, models.StatusCompleted: models.StatusActive,
		}[step]
		_, err := sessions.TransitionStatus(ctx, "done", prev, step, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
	}

	rows, err := stats.ListCompletedParticipations(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "done", rows[0].SessionID)
	assert.Equal(t, 2, rows[0].Rank)
	assert.Equal(t, 2, rows[0].TotalQuestions)
	assert.Equal(t, "beginner", rows[0].Level)
}
