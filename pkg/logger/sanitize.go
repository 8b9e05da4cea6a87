package logger

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SanitizedUsername keeps the first character and masks the rest (e.g. "a****").
func SanitizedUsername(username string) string {
	if username == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(username)
	rest := utf8.RuneCountInString(username[size:])
	return string(r) + strings.Repeat("*", rest)
}

// SelectorPrefix returns a short, non-reusable prefix of a token selector for logs.
func SelectorPrefix(selector string) string {
	if len(selector) <= 8 {
		return selector
	}
	return selector[:8] + "..."
}

// TruncateUserAgent cuts ua to max runes, appending "..." when shortened.
func TruncateUserAgent(ua string, max int) string {
	if utf8.RuneCountInString(ua) <= max {
		return ua
	}
	runes := []rune(ua)
	return string(runes[:max]) + "..."
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
	"password", "token", "secret", "selector", "validator",
	"remember", "auth", "csrf", "session",
}

// SanitizeQueryString reports whether the raw query mentions a sensitive parameter
// and should be redacted entirely.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
