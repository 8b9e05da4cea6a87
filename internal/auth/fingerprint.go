package auth

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/BradenHooton/rollcall/internal/models"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// CaptureFingerprint derives the client fingerprint from the request address and
// user agent. The user agent is made valid UTF-8 without NUL bytes, so it can be
// stored as text, and cut to models.MaxUserAgentLength runes.
func CaptureFingerprint(r *http.Request, ipConfig *pkghttp.IPConfig) models.Fingerprint {
	return models.Fingerprint{
		IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent: truncateRunes(normalizeUserAgent(r.UserAgent()), models.MaxUserAgentLength),
	}
}

func normalizeUserAgent(ua string) string {
	ua = strings.ToValidUTF8(ua, "\uFFFD")
	ua = strings.ReplaceAll(ua, "\x00", "")
	return strings.TrimSpace(ua)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
