package validators

import (
	"net/http"
	"strings"
)

// BearerToken extracts the token from an Authorization header. It returns
// "" when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(raw[7:])
}

// SessionToken prefers the Authorization header over the session cookie.
func SessionToken(r *http.Request, cookieName string) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	if cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
