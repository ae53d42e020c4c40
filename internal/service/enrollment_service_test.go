package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"examhall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) SendRegistrationConfirmation(_ context.Context, toEmail, _ string, _ *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, toEmail)
	return m.err
}

func TestConcurrentRegistrationRespectsCapacity(t *testing.T) {
	env := newTestEnv(t)
	const seats, extra = 5, 7
	s := env.createSession(t, seats)

	var created, full int64
	var wg sync.WaitGroup
	for i := 0; i < seats+extra; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.enrollment.Register(context.Background(), s.ID, userCaller(fmt.Sprintf("u%d", i)))
			switch {
			case err == nil && res.Created:
				atomic.AddInt64(&created, 1)
			case KindOf(err) == KindSessionFull:
				atomic.AddInt64(&full, 1)
			default:
				t.Errorf("unexpected register outcome: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(seats), created)
	assert.Equal(t, int64(extra), full)

	count, err := env.store.Sessions.CountRegistrations(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, seats, count)
}

func TestRegisterIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.createSession(t, 1)
	user := userCaller("u1")

	first, err := env.enrollment.Register(ctx, s.ID, user)
	require.NoError(t, err)
	assert.True(t, first.Created)

	// Already registered callers get their seat back even when the session is full
	second, err := env.enrollment.Register(ctx, s.ID, user)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Registration.ID, second.Registration.ID)

	_, err = env.enrollment.Register(ctx, s.ID, userCaller("u2"))
	assert.Equal(t, KindSessionFull, KindOf(err))
}

func TestRegisterRequiresScheduled(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		kind Kind
	}{
		{name: "scheduled", now: testStart.Add(-time.Hour)},
		{name: "lobby", now: testStart.Add(-5 * time.Minute), kind: KindInvalidState},
		{name: "active", now: testStart.Add(5 * time.Minute), kind: KindInvalidState},
		{name: "completed", now: testStart.Add(2 * time.Hour), kind: KindInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			s := env.createSession(t, 5)
			env.clock.Set(tt.now)

			_, err := env.enrollment.Register(context.Background(), s.ID, userCaller("u1"))
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestRejectedEnrollmentKeepsStatusSteps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.createSession(t, 1)

	// Registration closes with the lobby; the refused call still records the move
	lobbyAt := testStart.Add(-10 * time.Minute)
	env.clock.Set(lobbyAt)
	_, err := env.enrollment.Register(ctx, s.ID, userCaller("u1"))
	require.Equal(t, KindInvalidState, KindOf(err))
	got := env.status(t, s.ID)
	assert.Equal(t, models.StatusLobby, got.Status)
	assert.True(t, lobbyAt.Equal(got.UpdatedAt))

	_, err = env.enrollment.Join(ctx, s.ID, userCaller("u1"))
	require.NoError(t, err)

	// A full session refuses the join but keeps the start stamped at this moment
	startedAt := testStart.Add(3 * time.Minute)
	env.clock.Set(startedAt)
	_, err = env.enrollment.Join(ctx, s.ID, userCaller("u2"))
	require.Equal(t, KindSessionFull, KindOf(err))
	got = env.status(t, s.ID)
	assert.Equal(t, models.StatusActive, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, startedAt.Equal(*got.StartedAt))

	_, err = env.sessions.AdvanceStatuses(ctx, testStart.Add(20*time.Minute))
	require.NoError(t, err)
	assert.True(t, startedAt.Equal(*env.status(t, s.ID).StartedAt))

	// Unregistering from a session that just completed is refused after the step
	completedAt := testStart.Add(61 * time.Minute)
	env.clock.Set(completedAt)
	_, err = env.enrollment.Unregister(ctx, s.ID, userCaller("u1"))
	require.Equal(t, KindInvalidState, KindOf(err))
	got = env.status(t, s.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))
}

func TestRegisterErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.enrollment.Register(ctx, "missing", userCaller("u1"))
	assert.Equal(t, KindNotFound, KindOf(err))

	s := env.createSession(t, 5)
	_, err = env.enrollment.Register(ctx, s.ID, nil)
	assert.Equal(t, KindAuthRequired, KindOf(err))

	_, err = env.sessions.CancelSession(ctx, hostCaller, s.ID)
	require.NoError(t, err)
	_, err = env.enrollment.Register(ctx, s.ID, userCaller("u1"))
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestRegisterSendsConfirmationOnlyWhenCreated(t *testing.T) {
	env := newTestEnv(t)
	mailer := &recordingMailer{}
	env.enrollment = NewEnrollmentService(env.store, mailer, env.clock.Now, discardLogger())
	ctx := context.Background()
	s := env.createSession(t, 5)

	user := userCaller("u1")
	user.Email = "u1@example.com"
	_, err := env.enrollment.Register(ctx, s.ID, user)
	require.NoError(t, err)
	_, err = env.enrollment.Register(ctx, s.ID, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1@example.com"}, mailer.sent)

	// A failing mailer never undoes the registration
	mailer.err = fmt.Errorf("ses down")
	other := userCaller("u2")
	other.Email = "u2@example.com"
	res, err := env.enrollment.Register(ctx, s.ID, other)
	require.NoError(t, err)
	assert.True(t, res.Created)

	// Malformed addresses are never handed to the mailer
	mailer.err = nil
	bad := userCaller("u3")
	bad.Email = "not-an-address"
	res, err = env.enrollment.Register(ctx, s.ID, bad)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, []string{"u1@example.com", "u2@example.com"}, mailer.sent)
}

func TestUnregister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.createSession(t, 1)
	user := userCaller("u1")

	removed, err := env.enrollment.Unregister(ctx, s.ID, user)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = env.enrollment.Register(ctx, s.ID, user)
	require.NoError(t, err)
	removed, err = env.enrollment.Unregister(ctx, s.ID, user)
	require.NoError(t, err)
	assert.True(t, removed)

	// The freed seat can be taken again
	_, err = env.enrollment.Register(ctx, s.ID, userCaller("u2"))
	require.NoError(t, err)

	env.clock.Set(testStart.Add(2 * time.Hour))
	_, err = env.enrollment.Unregister(ctx, s.ID, userCaller("u2"))
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.createSession(t, 5)
	user := userCaller("u1")

	_, err := env.enrollment.Join(ctx, s.ID, user)
	assert.Equal(t, KindInvalidState, KindOf(err), "joining before the lobby opens")

	env.clock.Set(testStart.Add(-10 * time.Minute))
	res, err := env.enrollment.Join(ctx, s.ID, user)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, res.Participant.Answers, 3)
	assert.Equal(t, 0, models.AnsweredCount(res.Participant.Answers))
	assert.Equal(t, models.StatusLobby, env.status(t, s.ID).Status, "join brings the status up to date")

	env.clock.Set(testStart.Add(10 * time.Minute))
	again, err := env.enrollment.Join(ctx, s.ID, user)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Participant.ID, again.Participant.ID)

	env.clock.Set(testStart.Add(2 * time.Hour))
	_, err = env.enrollment.Join(ctx, s.ID, userCaller("late"))
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestConcurrentJoinLastSeat(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, 1)
	env.clock.Set(testStart.Add(time.Minute))

	var created, full int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.enrollment.Join(context.Background(), s.ID, userCaller(fmt.Sprintf("racer-%d", i)))
			switch KindOf(err) {
			case "":
				atomic.AddInt64(&created, 1)
			case KindSessionFull:
				atomic.AddInt64(&full, 1)
			default:
				t.Errorf("unexpected join outcome: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), created)
	assert.Equal(t, int64(1), full)

	count, err := env.store.Sessions.CountParticipants(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
