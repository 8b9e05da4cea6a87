package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedUsername(t *testing.T) {
	assert.Equal(t, "a****", SanitizedUsername("admin"))
	assert.Equal(t, "x", SanitizedUsername("x"))
	assert.Equal(t, "", SanitizedUsername(""))
	assert.Equal(t, "ü**", SanitizedUsername("übe"))
}

func TestTruncateUserAgent(t *testing.T) {
	assert.Equal(t, "short", TruncateUserAgent("short", 50))

	long := strings.Repeat("a", 60)
	got := TruncateUserAgent(long, 50)
	assert.Equal(t, strings.Repeat("a", 50)+"...", got)
}

func TestSelectorPrefix(t *testing.T) {
	assert.Equal(t, "abc", SelectorPrefix("abc"))
	assert.Equal(t, "abcdefgh...", SelectorPrefix("abcdefghijklmnop"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("password=hunter2"))
	assert.True(t, SanitizeQueryString("Remember=1"))
	assert.False(t, SanitizeQueryString("next=%2Fdashboard"))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("k", "v", "production").Value.String())
	assert.Equal(t, "v", RedactedAttr("k", "v", "development").Value.String())
}

func TestAuditLogger_LoginFailureIsWarnAndMasksUsername(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogLoginFailure("admin", "invalid_credentials", "203.0.113.9", "curl/8.0")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, EventLoginFailed, entry["event_type"])
	assert.Equal(t, "a****", entry["username"])
	assert.Equal(t, "invalid_credentials", entry["failure_reason"])
}

func TestAuditLogger_TokenEventLogsSelectorPrefixOnly(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogTokenEvent(EventTokenRevoked, "user-1", "0123456789abcdef", "logout")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "01234567...", entry["selector"])
	assert.Equal(t, "logout", entry["reason"])
}
