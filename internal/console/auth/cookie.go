package auth

import (
	"net/http"
	"strings"
	"time"
)

// AttachSession sets the session cookie on the response. The cookie spans the
// whole site and expires together with the token it carries. Secure is tied to
// the deployment environment so local development over plain HTTP still works.
func AttachSession(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   sessionMaxAgeSeconds,
		Expires:  time.Now().Add(sessionMaxAgeSeconds * time.Second),
	})
}

// ClearSession instructs the client to drop the session cookie.
func ClearSession(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// ExtractToken reads the session token from the request: cookie first, then a
// bearer Authorization header. The fallback keeps programmatic clients (CLI,
// curl) on the same auth path as browsers.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if v := strings.TrimSpace(cookie.Value); v != "" {
			return v
		}
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
