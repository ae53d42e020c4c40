package service

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"examhall/internal/models"
	"examhall/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupExportImport(t *testing.T) {
	src := newTestEnv(t)
	ctx := context.Background()

	scheduled := src.createSession(t, 4)
	_, err := src.enrollment.Register(ctx, scheduled.ID, userCaller("u1"))
	require.NoError(t, err)

	finished := activeSessionWith(t, src, "alice", "bob")
	submitAll(t, src, finished.ID, "alice", 1, 1, 0)
	src.clock.Set(testStart.Add(2 * time.Hour))
	_, err = src.sessions.Sweep(ctx)
	require.NoError(t, err)

	backups := NewBackupService(src.store, src.clock.Now, discardLogger())
	path := filepath.Join(t.TempDir(), "backup.json")
	stats, err := backups.Export(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, BackupStats{Sessions: 2, Registrations: 1, Participants: 2}, stats)

	dst := newTestEnv(t)
	restore := NewBackupService(dst.store, dst.clock.Now, discardLogger())
	imported, err := restore.Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, stats, imported)

	got := dst.status(t, finished.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)

	board, err := dst.ranking.Leaderboard(ctx, finished.ID)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "alice", board[0].UserID)
	assert.Equal(t, 3, board[0].Score)

	count, err := dst.store.Sessions.CountRegistrations(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Importing the same backup twice collides on session ids and changes nothing
	_, err = restore.Import(ctx, path)
	require.Error(t, err)
	count, err = dst.store.Sessions.CountRegistrations(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, restore.Clear(ctx))
	remaining, err := dst.store.Sessions.List(ctx, repository.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestBackupImportRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	backups := NewBackupService(env.store, env.clock.Now, discardLogger())
	ctx := context.Background()

	_, err := backups.ImportFromReader(ctx, strings.NewReader("{not json"))
	assert.Error(t, err)

	_, err = backups.ImportFromReader(ctx, strings.NewReader(`{"version":"2.0","sessions":[{"session":{"id":"x","status":"paused"}}]}`))
	assert.ErrorContains(t, err, "unknown status")

	var buf bytes.Buffer
	stats, err := backups.ExportToWriter(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, BackupStats{}, stats)
	assert.Contains(t, buf.String(), `"sessions": []`)
}

func TestBackupImportRejectsBrokenEnrollments(t *testing.T) {
	src := newTestEnv(t)
	base := *src.status(t, src.createSession(t, 1).ID)

	registration := func(id string) models.Registration {
		return models.Registration{UserID: id, Username: id, DisplayName: id, RegisteredAt: testStart.Add(-time.Hour)}
	}
	participant := func(id string, answers ...*int) models.Participant {
		if answers == nil {
			answers = models.NewAnswers(len(base.Questions))
		}
		return models.Participant{UserID: id, Username: id, DisplayName: id, Answers: answers, JoinedAt: testStart, UpdatedAt: testStart}
	}
	seven, zero := 7, 0
	active := func(s *models.Session) { s.Status = models.StatusActive }

	tests := []struct {
		name    string
		mutate  func(s *models.Session)
		backup  func() SessionBackup
		wantErr string
	}{
		{
			name:    "registrations over capacity",
			backup:  func() SessionBackup { return SessionBackup{Registrations: []models.Registration{registration("u1"), registration("u2")}} },
			wantErr: "exceed maxParticipants",
		},
		{
			name:    "participants over capacity",
			mutate:  active,
			backup:  func() SessionBackup { return SessionBackup{Participants: []models.Participant{participant("u1"), participant("u2")}} },
			wantErr: "exceed maxParticipants",
		},
		{
			name:    "participant of a scheduled session",
			backup:  func() SessionBackup { return SessionBackup{Participants: []models.Participant{participant("u1")}} },
			wantErr: "scheduled session cannot have participants",
		},
		{
			name:    "answer outside the options",
			mutate:  active,
			backup:  func() SessionBackup { return SessionBackup{Participants: []models.Participant{participant("u1", &seven, nil, nil)}} },
			wantErr: "not a valid option",
		},
		{
			name:    "answers shorter than the questions",
			mutate:  active,
			backup:  func() SessionBackup { return SessionBackup{Participants: []models.Participant{participant("u1", &zero)}} },
			wantErr: "slots",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			backups := NewBackupService(env.store, env.clock.Now, discardLogger())

			sb := tt.backup()
			sb.Session = base
			if tt.mutate != nil {
				tt.mutate(&sb.Session)
			}
			data, err := json.Marshal(BackupData{Version: backupVersion, Sessions: []SessionBackup{sb}})
			require.NoError(t, err)

			_, err = backups.ImportFromReader(ctx, bytes.NewReader(data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			sessions, err := env.store.Sessions.List(ctx, repository.SessionFilter{})
			require.NoError(t, err)
			assert.Empty(t, sessions, "a rejected import leaves nothing behind")
		})
	}
}
