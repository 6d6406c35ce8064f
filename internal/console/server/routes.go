package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courierops/console/internal/console/audit"
	"github.com/courierops/console/internal/console/auth"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health + version
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	// Session lifecycle
	secure := s.cfg.IsProduction()
	mux.HandleFunc("POST /auth/signin", auth.HandleSignin(s.resolver, s.tokens, auth.SigninOptions{
		SecureCookie: secure,
		Auditor:      s.auditRecorder(),
		Limiter:      s.limiter,
	}))
	mux.HandleFunc("POST /auth/signout", auth.HandleSignout(secure, s.auditRecorder()))
	mux.HandleFunc("GET /auth/me", auth.HandleMe(s.resolver))
	mux.HandleFunc("POST /auth/refresh", auth.HandleRefresh(s.tokens, secure, s.auditRecorder()))

	// Fixture listing is a development convenience; production deployments
	// never get the route, so it 404s there.
	if !s.cfg.IsProduction() {
		mux.HandleFunc("GET /auth/test-users", auth.HandleTestUsers(s.fixtures))
	}

	// Audit
	mux.HandleFunc("GET /api/v1/audit", s.withPermission(auth.PermAuditRead, s.handleAuditLog))

	// Admin account management
	mux.HandleFunc("GET /api/v1/admins", s.withPermission(auth.PermAdminsManage, s.handleListAdmins))
	mux.HandleFunc("POST /api/v1/admins", s.withPermission(auth.PermAdminsManage, s.handleCreateAdmin))
	mux.HandleFunc("DELETE /api/v1/admins/{id}", s.withPermission(auth.PermAdminsManage, s.handleDeleteAdmin))
	mux.HandleFunc("POST /api/v1/admins/{id}/enabled", s.withPermission(auth.PermAdminsManage, s.handleSetAdminEnabled))
	mux.HandleFunc("POST /api/v1/admins/{id}/password", s.withPermission(auth.PermAdminsManage, s.handleSetAdminPassword))
}

// withPermission rejects the request with 403 unless the gate attached a
// principal whose role grants the permission.
func (s *Server) withPermission(perm auth.Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.HasPermissionFromContext(r.Context(), perm) {
			writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{
		"version": Version, "commit": Commit, "date": Date,
	})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{
		Actor: r.URL.Query().Get("actor"),
		Type:  audit.EventType(r.URL.Query().Get("type")),
		Limit: 100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			f.Limit = n
		}
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Since = t
		}
	}

	events := s.queryAudit(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}
