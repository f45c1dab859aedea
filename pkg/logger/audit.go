package logger

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Audit event types
const (
	EventLoginAdmitted   = "login_admitted"
	EventLoginChallenged = "login_challenged"
	EventLoginBanned     = "login_banned"
	EventLoginRejected   = "login_rejected"
	EventOTPVerified     = "otp_verified"
	EventOTPRejected     = "otp_rejected"
	EventOTPResent       = "otp_resent"
	EventPasswordSet     = "password_set"
	EventUserProvisioned = "user_provisioned"
	EventUserDeleted     = "user_deleted"
	EventUserRejected    = "user_rejected"
	EventRiskAssessed    = "risk_assessed"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// RiskDecision is the audit record of one scored attempt.
type RiskDecision struct {
	EventType string
	UserID    string
	IPAddress string
	DeviceID  string
	Score     int
	Level     string
	Reasons   []string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

func (al *AuditLogger) emit(ctx context.Context, success bool, attrs []slog.Attr) {
	if al == nil || al.logger == nil {
		return
	}
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	attrs = append(attrs, slog.String("timestamp", al.now().UTC().Format(time.RFC3339)))
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAuthAttempt logs authentication attempts. Emails are masked.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.emit(ctx, event.Success, attrs)
}

// LogRiskDecision logs the score and fired rules behind a login decision.
// High risk decisions are logged at warn level.
func (al *AuditLogger) LogRiskDecision(ctx context.Context, d RiskDecision) {
	attrs := []slog.Attr{
		slog.String("audit_type", "risk"),
		slog.String("event_type", d.EventType),
		slog.String("user_id", d.UserID),
		slog.Int("risk_score", d.Score),
		slog.String("risk_level", d.Level),
		slog.String("reasons", strings.Join(d.Reasons, ",")),
	}
	if d.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", d.IPAddress))
	}
	if d.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", d.DeviceID))
	}

	al.emit(ctx, d.Level != "high", attrs)
}

// LogPasswordSet logs password set events
func (al *AuditLogger) LogPasswordSet(ctx context.Context, userID, ipAddress string, success bool) {
	attrs := []slog.Attr{
		slog.String("audit_type", "password"),
		slog.String("event_type", EventPasswordSet),
		slog.Bool("success", success),
		slog.String("user_id", userID),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	al.emit(ctx, success, attrs)
}

// LogAccountAction logs administrative account actions
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, actorID, targetID string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("target_id", targetID),
	}

	if actorID != "" {
		attrs = append(attrs, slog.String("actor_id", actorID))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.emit(ctx, true, attrs)
}
