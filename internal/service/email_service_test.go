package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"examhall/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmailServiceDisabled(t *testing.T) {
	svc, err := NewEmailService(context.Background(), "us-east-1", "", "", "", discardLogger())
	require.NoError(t, err)
	assert.False(t, svc.IsEnabled())

	err = svc.SendRegistrationConfirmation(context.Background(), "a@example.com", "A", &models.Session{ID: "s-1"})
	assert.NoError(t, err)
}

func TestSendRegistrationConfirmation(t *testing.T) {
	client := &fakeSES{}
	svc := newEmailServiceWithClient(client, "noreply@example.com", "Exam Hall", "https://exams.example.com", discardLogger())

	session := &models.Session{ID: "s-1", Name: "Mock <N5>", DurationMinutes: 60}
	session.ApplySchedule(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC), 60, 15*time.Minute)

	require.NoError(t, svc.SendRegistrationConfirmation(context.Background(), "alice@example.com", "Alice", session))
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "Exam Hall <noreply@example.com>", *input.FromEmailAddress)
	assert.Equal(t, []string{"alice@example.com"}, input.Destination.ToAddresses)
	assert.Contains(t, *input.Content.Simple.Subject.Data, "Mock <N5>")
	assert.Contains(t, *input.Content.Simple.Body.Html.Data, "Mock &lt;N5&gt;")
	assert.Contains(t, *input.Content.Simple.Body.Text.Data, "https://exams.example.com/sessions/s-1")
	assert.Contains(t, *input.Content.Simple.Body.Text.Data, "09:45 UTC")
}

func TestSendRegistrationConfirmationError(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	svc := newEmailServiceWithClient(client, "noreply@example.com", "", "", discardLogger())

	err := svc.SendRegistrationConfirmation(context.Background(), "bob@example.com", "Bob", &models.Session{ID: "s-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bob@example.com")
}
