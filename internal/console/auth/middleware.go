package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/courierops/console/internal/console/audit"
	"github.com/courierops/console/internal/console/metrics"
	"github.com/courierops/console/internal/console/telemetry"
)

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext retrieves the authenticated principal from request context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// IsAuthenticated reports whether a principal is attached to the context.
func IsAuthenticated(ctx context.Context) bool {
	return PrincipalFromContext(ctx) != nil
}

// HasPermissionFromContext checks a required permission for the request's principal.
func HasPermissionFromContext(ctx context.Context, perm Permission) bool {
	return HasPermission(PrincipalFromContext(ctx), perm)
}

// ContextWithPrincipal attaches a principal to the context. Exposed for tests
// and for handlers invoked outside the gate.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// AuditRecorder records auth audit events.
type AuditRecorder interface {
	Record(evt audit.Event)
}

// Gate authorizes protected requests. Per request it extracts the session
// token (cookie, then bearer header), verifies it, re-checks fixture
// principals against the live repository, and attaches the normalized
// principal to the request context.
//
// Every rejection is the same generic 401; the caller never learns whether
// the token was missing, tampered, expired, or tied to a deactivated account.
type Gate struct {
	verifier   TokenVerifier
	fixtures   FixtureResolver
	skipExact  map[string]bool
	skipPrefix []string

	permissions PermissionResolver
	auditor     AuditRecorder
}

// NewGate builds the authorization gate with optional skip paths.
// Paths ending in "*" skip by prefix.
func NewGate(verifier TokenVerifier, fixtures FixtureResolver, skipPaths []string) *Gate {
	skipExact := make(map[string]bool, len(skipPaths))
	skipPrefix := make([]string, 0)
	for _, p := range skipPaths {
		if strings.HasSuffix(p, "*") {
			skipPrefix = append(skipPrefix, strings.TrimSuffix(p, "*"))
			continue
		}
		skipExact[p] = true
	}

	return &Gate{
		verifier:   verifier,
		fixtures:   fixtures,
		skipExact:  skipExact,
		skipPrefix: skipPrefix,
	}
}

// SetPermissionResolver wires role permission resolution into gate decisions.
func (g *Gate) SetPermissionResolver(resolver PermissionResolver) {
	g.permissions = resolver
}

// SetAuditRecorder wires denial auditing.
func (g *Gate) SetAuditRecorder(auditor AuditRecorder) {
	g.auditor = auditor
}

// Wrap returns the wrapped HTTP handler.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := telemetry.StartGateSpan(r.Context(), r.URL.Path)
		r = r.WithContext(ctx)

		token := ExtractToken(r)
		if token == "" {
			telemetry.EndGateSpan(span, false, "missing_credential")
			g.reject(w, r, "missing_credential")
			return
		}

		claims, err := g.verifier.Verify(token)
		if err != nil {
			telemetry.EndGateSpan(span, false, "invalid_credential")
			g.reject(w, r, "invalid_credential")
			return
		}

		principal := claims.Principal()
		if claims.Provenance == ProvenanceFixture {
			// Fixture accounts can be deactivated live even though their
			// token has not expired. Liveness is re-checked, not cached.
			live, err := g.fixtures.ResolveFixture(claims.Subject)
			if err != nil {
				telemetry.EndGateSpan(span, false, "revoked_fixture")
				g.reject(w, r, "revoked_fixture", claims.Username)
				return
			}
			principal = live
		}
		if g.permissions != nil {
			principal.Permissions = g.permissions.PermissionsForRole(principal.Role)
		}
		telemetry.EndGateSpan(span, true, "")

		ctx = context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) shouldSkip(path string) bool {
	if g.skipExact[path] {
		return true
	}
	for _, p := range g.skipPrefix {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, reason string, actor ...string) {
	metrics.RecordGateRejection(reason)
	if g.auditor != nil {
		who := ""
		if len(actor) > 0 {
			who = actor[0]
		}
		g.auditor.Record(audit.Event{
			Timestamp:  time.Now().UTC(),
			Type:       audit.EventAuthorizationDenied,
			Actor:      who,
			RemoteAddr: r.RemoteAddr,
			Summary:    "Request rejected for " + r.Method + " " + r.URL.Path,
			Detail:     map[string]string{"reason": reason},
		})
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
}
