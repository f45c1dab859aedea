package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/riskauth/pkg/logger"
)

// EmailService defines the interface for sending emails
type EmailService interface {
	SendOTPEmail(ctx context.Context, to, code string, expiresAt time.Time) error
	SendPasswordSetEmail(ctx context.Context, to, name, link string) error
	SendRejectionEmail(ctx context.Context, to, reason string) error
}

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   sesAPI
	fromAddress string
	logger      *slog.Logger
	now         func() time.Time
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// SendOTPEmail delivers a login code
func (s *AWSSESEmailService) SendOTPEmail(ctx context.Context, to, code string, expiresAt time.Time) error {
	subject, text, body := otpEmail(code, expiresAt.Sub(s.now()))
	return s.send(ctx, "otp", to, subject, text, body)
}

// SendPasswordSetEmail delivers the link a provisioned user follows to choose a password
func (s *AWSSESEmailService) SendPasswordSetEmail(ctx context.Context, to, name, link string) error {
	subject, text, body := passwordSetEmail(name, link)
	return s.send(ctx, "password_set", to, subject, text, body)
}

// SendRejectionEmail tells a requester their access request was declined
func (s *AWSSESEmailService) SendRejectionEmail(ctx context.Context, to, reason string) error {
	subject, text, body := rejectionEmail(reason)
	return s.send(ctx, "rejection", to, subject, text, body)
}

func (s *AWSSESEmailService) send(ctx context.Context, kind, to, subject, text, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
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
					Data:    aws.String(text),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("kind", kind),
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogEmailService writes emails to the log instead of sending them. Codes and
// links are redacted when env is production.
type LogEmailService struct {
	logger *slog.Logger
	env    string
}

func NewLogEmailService(logger *slog.Logger, env string) *LogEmailService {
	return &LogEmailService{logger: logger, env: env}
}

func (s *LogEmailService) SendOTPEmail(ctx context.Context, to, code string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "otp email",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		pkglogger.RedactedAttr("code", code, s.env),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailService) SendPasswordSetEmail(ctx context.Context, to, name, link string) error {
	s.logger.InfoContext(ctx, "password set email",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		pkglogger.RedactedAttr("link", link, s.env))
	return nil
}

func (s *LogEmailService) SendRejectionEmail(ctx context.Context, to, reason string) error {
	s.logger.InfoContext(ctx, "rejection email",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("reason", reason))
	return nil
}

func otpEmail(code string, ttl time.Duration) (subject, text, body string) {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	subject = "Your OTP Code"
	text = fmt.Sprintf("Your OTP is %s. It will expire in %d minutes.\n\nIf you did not try to sign in, change your password.\n", code, minutes)
	body = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Your one-time passcode is:</p>
    <p style="font-size: 24px; letter-spacing: 4px;"><strong>%s</strong></p>
    <p>It will expire in %d minutes.</p>
    <p>If you did not try to sign in, change your password.</p>
</body>
</html>
`, html.EscapeString(code), minutes)
	return subject, text, body
}

func passwordSetEmail(name, link string) (subject, text, body string) {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	subject = "Set your account password"
	text = fmt.Sprintf("Hi %s,\n\nYour account has been approved! Open the link below to set your password:\n\n%s\n\nIf you didn't request this, please ignore this email.\n", name, link)
	body = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Hi %s,</p>
    <p>Your account has been approved! Click the link below to set your password:</p>
    <p><a href="%s">Set Password</a></p>
    <p>If you didn't request this, please ignore this email.</p>
</body>
</html>
`, html.EscapeString(name), html.EscapeString(link))
	return subject, text, body
}

func rejectionEmail(reason string) (subject, text, body string) {
	if strings.TrimSpace(reason) == "" {
		reason = "Not specified"
	}
	subject = "Request Rejected"
	text = fmt.Sprintf("Hello,\n\nYour request has been rejected.\nReason: %s\n\nRegards,\nAdmin\n", reason)
	body = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Hello,</p>
    <p>Your request has been rejected.</p>
    <p>Reason: %s</p>
    <p>Regards,<br>Admin</p>
</body>
</html>
`, html.EscapeString(reason))
	return subject, text, body
}
