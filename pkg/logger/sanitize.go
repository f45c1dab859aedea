package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	// Keep first char of the local part
	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// Keep only the TLD
	labels := strings.Split(domain, ".")
	if len(labels) > 1 {
		for i := 0; i < len(labels)-1; i++ {
			labels[i] = strings.Repeat("*", len(labels[i]))
		}
		domain = strings.Join(labels, ".")
	}

	return username + "@" + domain
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"email",
	"otp",
	"code",
	"auth",
}

// SanitizeQueryString reports whether any query parameter name looks
// sensitive, in which case the whole query string should be redacted.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable queries are redacted wholesale
		return true
	}
	for name := range values {
		name = strings.ToLower(name)
		for _, s := range sensitiveParams {
			if strings.Contains(name, s) {
				return true
			}
		}
	}
	return false
}
