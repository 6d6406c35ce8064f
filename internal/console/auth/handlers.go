package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/courierops/console/internal/console/audit"
	"github.com/courierops/console/internal/console/metrics"
	"github.com/courierops/console/internal/console/telemetry"
	"github.com/courierops/console/internal/console/testusers"
)

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: message, Code: code})
}

// SigninOptions configures the signin handler.
type SigninOptions struct {
	SecureCookie bool
	Auditor      AuditRecorder
	Limiter      *RateLimiter
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleSignin verifies credentials and establishes a session. Unknown users,
// wrong passwords, and disabled persistent accounts all produce the same 401;
// only a deactivated fixture account gets its own message, matching the
// console frontend contract.
func HandleSignin(authn CredentialAuthenticator, issuer TokenIssuer, opts SigninOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if authn == nil || issuer == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "Signin unavailable")
			return
		}

		if opts.Limiter != nil && !opts.Limiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many signin attempts")
			return
		}

		var req signinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Username and password are required")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "Username and password are required")
			return
		}

		_, span := telemetry.StartSigninSpan(r.Context(), r.RemoteAddr)

		start := time.Now()
		principal, err := authn.Authenticate(req.Username, req.Password)
		if err != nil {
			outcome := "failure"
			status := http.StatusUnauthorized
			code := "invalid_credentials"
			message := "Invalid username or password"
			switch {
			case errors.Is(err, ErrAccountDeactivated):
				code = "account_deactivated"
				message = "Account is deactivated"
			case errors.Is(err, ErrInvalidCredentials):
			default:
				// Store or signing infrastructure failure; never leak detail.
				outcome = "error"
				status = http.StatusInternalServerError
				code = "internal"
				message = "Internal server error"
			}
			metrics.RecordSignin(outcome, "", time.Since(start))
			telemetry.EndSigninSpan(span, outcome, "")
			if opts.Auditor != nil {
				opts.Auditor.Record(audit.Event{
					Timestamp:  time.Now().UTC(),
					Type:       audit.EventSigninFailed,
					Actor:      req.Username,
					RemoteAddr: r.RemoteAddr,
					Summary:    "Signin failed for " + req.Username,
					Detail:     map[string]string{"code": code},
				})
			}
			writeError(w, status, code, message)
			return
		}

		token, err := issuer.Issue(principal)
		if err != nil || token == "" {
			metrics.RecordSignin("error", string(principal.Provenance), time.Since(start))
			telemetry.EndSigninSpan(span, "error", string(principal.Provenance))
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
			return
		}

		metrics.RecordSignin("success", string(principal.Provenance), time.Since(start))
		telemetry.EndSigninSpan(span, "success", string(principal.Provenance))
		metrics.RecordTokenIssued(string(principal.Provenance))
		if opts.Auditor != nil {
			opts.Auditor.Record(audit.Event{
				Timestamp:  time.Now().UTC(),
				Type:       audit.EventSigninSuccess,
				Actor:      principal.ID,
				RemoteAddr: r.RemoteAddr,
				Summary:    "Signin succeeded for " + principal.Username,
				Detail: map[string]string{
					"username":   principal.Username,
					"provenance": string(principal.Provenance),
				},
			})
		}

		AttachSession(w, token, opts.SecureCookie)
		writeJSON(w, http.StatusOK, map[string]any{"user": principal})
	}
}

// HandleSignout clears the session cookie. Idempotent: the already-issued
// token stays valid until expiry, the server only instructs cookie removal.
func HandleSignout(secure bool, auditor AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auditor != nil {
			actor := ""
			if p := PrincipalFromContext(r.Context()); p != nil {
				actor = p.ID
			}
			auditor.Record(audit.Event{
				Timestamp:  time.Now().UTC(),
				Type:       audit.EventSignout,
				Actor:      actor,
				RemoteAddr: r.RemoteAddr,
				Summary:    "Signout",
			})
		}

		ClearSession(w, secure)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out successfully"})
	}
}

// HandleMe returns the current principal. Fixture liveness is re-validated
// once more here for defense in depth.
func HandleMe(fixtures FixtureResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		if principal.Provenance == ProvenanceFixture && fixtures != nil {
			live, err := fixtures.ResolveFixture(principal.ID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			live.Permissions = principal.Permissions
			principal = live
		}

		writeJSON(w, http.StatusOK, map[string]any{"user": principal})
	}
}

// HandleRefresh re-issues a token with the current principal's claims,
// extending the session window. The gate must already have authorized the
// request; a refreshed token carries a fresh jti and expiry.
func HandleRefresh(issuer TokenIssuer, secure bool, auditor AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		_, span := telemetry.StartTokenSpan(r.Context(), "refresh", string(principal.Provenance))
		token, err := issuer.Issue(principal)
		span.End()
		if err != nil || token == "" {
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
			return
		}

		metrics.RecordTokenIssued(string(principal.Provenance))
		if auditor != nil {
			auditor.Record(audit.Event{
				Timestamp:  time.Now().UTC(),
				Type:       audit.EventTokenRefreshed,
				Actor:      principal.ID,
				RemoteAddr: r.RemoteAddr,
				Summary:    "Session refreshed for " + principal.Username,
			})
		}

		AttachSession(w, token, secure)
		writeJSON(w, http.StatusOK, map[string]any{"user": principal})
	}
}

// HandleTestUsers lists fixture accounts without password hashes. The route
// must only be registered outside production.
func HandleTestUsers(store *testusers.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "Fixture store unavailable")
			return
		}

		users := store.List()
		summaries := make([]map[string]any, 0, len(users))
		for _, u := range users {
			summaries = append(summaries, map[string]any{
				"id":        u.ID,
				"username":  u.Username,
				"email":     u.Email,
				"role":      u.Role,
				"isActive":  u.Active,
				"createdAt": u.CreatedAt,
				"lastLogin": u.LastLogin,
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"count": len(summaries),
			"users": summaries,
		})
	}
}

func clientKey(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}
