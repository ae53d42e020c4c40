package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"examhall/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Mailer sends enrollment notifications. Implementations are called after the
// enrollment transaction commits, never while a session lock is held.
type Mailer interface {
	SendRegistrationConfirmation(ctx context.Context, toEmail, toName string, session *models.Session) error
}

// sesAPI is the subset of the SES client the email service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     sesAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	logger     *slog.Logger
}

// NewEmailService creates a new email service. It is disabled when fromEmail is empty.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, logger *slog.Logger) (*EmailService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fromEmail == "" {
		logger.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, logger: logger}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("email service enabled", "from", fromEmail, "region", awsRegion)
	return newEmailServiceWithClient(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, logger), nil
}

func newEmailServiceWithClient(client sesAPI, fromEmail, fromName, appBaseURL string, logger *slog.Logger) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		logger:     logger,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendRegistrationConfirmation tells a user their seat in a session is reserved
func (s *EmailService) SendRegistrationConfirmation(ctx context.Context, toEmail, toName string, session *models.Session) error {
	if !s.enabled {
		s.logger.Debug("skipping email send (service disabled)", "kind", "registration", "to", toEmail)
		return nil
	}

	link := fmt.Sprintf("%s/sessions/%s", s.appBaseURL, session.ID)
	start := session.ScheduledStartTime.UTC().Format(time.RFC1123)
	lobby := session.LobbyOpenTime.UTC().Format("15:04 MST")

	subject := fmt.Sprintf("You're registered: %s", session.Name)
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #4a90e2; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #4a90e2; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>Registration confirmed</h1>
		</div>
		<div class="content">
			<p>Hi %s,</p>
			<p>Your seat in <strong>%s</strong> is reserved.</p>
			<p>The session starts at %s and runs for %d minutes. The lobby opens at %s; join from there to take part.</p>
			<p style="text-align: center;">
				<a href="%s" class="button">View session</a>
			</p>
		</div>
		<div class="footer">
			<p>This is an automated email. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`, html.EscapeString(toName), html.EscapeString(session.Name), start, session.DurationMinutes, lobby, link)

	textBody := fmt.Sprintf(`Hi %s,

Your seat in %s is reserved.

The session starts at %s and runs for %d minutes. The lobby opens at %s; join from there to take part.

View session: %s

---
This is an automated email. Please do not reply.
`, toName, session.Name, start, session.DurationMinutes, lobby, link)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.logger.Info("email sent", "to", toEmail, "subject", subject, "message_id", messageID)
	return nil
}
