package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/courierops/console/internal/console/auth"
	"github.com/courierops/console/internal/console/config"
)

const testSigningKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T, environment string) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Environment = environment
	cfg.SigningKey = testSigningKey
	cfg.RateLimit.SigninPerMinute = 0

	srv, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func signin(t *testing.T, h http.Handler, username, password string) *http.Cookie {
	t.Helper()

	body := fmt.Sprintf(`{"username": %q, "password": %q}`, username, password)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("signin returned %d: %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("signin did not set a session cookie")
	return nil
}

func TestPublicEndpoints(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()

	for _, path := range []string{"/healthz", "/version", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s without a session returned %d", path, w.Code)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()

	cookie := signin(t, h, "testadmin", "password123")
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if cookie.Secure {
		t.Fatal("development cookies must not be Secure")
	}

	// The session cookie authenticates /auth/me.
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("me returned %d: %s", w.Code, w.Body.String())
	}
	var me struct {
		User struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if me.User.Username != "testadmin" || me.User.Role != "admin" {
		t.Fatalf("unexpected principal %+v", me.User)
	}

	// Refresh mints a replacement cookie.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", w.Code, w.Body.String())
	}
	var refreshed *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			refreshed = c
		}
	}
	if refreshed == nil || refreshed.Value == "" {
		t.Fatal("refresh did not set a session cookie")
	}
	if refreshed.Value == cookie.Value {
		t.Fatal("refresh must issue a new token")
	}

	// Signout clears the cookie.
	req = httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("signout returned %d", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.MaxAge >= 0 {
			t.Fatalf("signout must expire the cookie, got MaxAge=%d", c.MaxAge)
		}
	}
}

func TestProtectedRouteRequiresSession(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", w.Code)
	}
}

func TestSigninRejectsBadCredentials(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()

	body := `{"username": "testadmin", "password": "nope"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid username or password") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestTestUsersRouteByEnvironment(t *testing.T) {
	dev := newTestServer(t, config.EnvDevelopment).Handler()
	req := httptest.NewRequest(http.MethodGet, "/auth/test-users", nil)
	w := httptest.NewRecorder()
	dev.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("development should list fixtures, got %d", w.Code)
	}
	var listing struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Count != 2 {
		t.Fatalf("expected 2 fixture accounts, got %d", listing.Count)
	}
	if strings.Contains(w.Body.String(), "$2b$") {
		t.Fatal("fixture listing must not include password hashes")
	}

	prod := newTestServer(t, config.EnvProduction).Handler()
	w = httptest.NewRecorder()
	prod.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/test-users", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("production must not expose fixtures, got %d", w.Code)
	}
}

func TestProductionSetsSecureCookie(t *testing.T) {
	h := newTestServer(t, config.EnvProduction).Handler()

	cookie := signin(t, h, "testadmin", "password123")
	if !cookie.Secure {
		t.Fatal("production cookies must be Secure")
	}
}

func TestProductionRequiresSigningKey(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Environment = config.EnvProduction
	cfg.SigningKey = ""

	if _, err := New(cfg, zap.NewNop()); err == nil {
		t.Fatal("production without a signing key must refuse to start")
	}
}

func TestAdminEndpointsRequireManagePermission(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()

	// "admin" role cannot manage admin accounts.
	adminCookie := signin(t, h, "testadmin", "password123")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admins", nil)
	req.AddCookie(adminCookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for role admin, got %d: %s", w.Code, w.Body.String())
	}

	// "super_admin" can.
	superCookie := signin(t, h, "superadmin", "password123")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admins", nil)
	req.AddCookie(superCookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for super_admin, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateAdminAndSignin(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()
	superCookie := signin(t, h, "superadmin", "password123")

	body := `{"username": "dispatcher", "email": "dispatcher@example.com", "password": "s3cret-pass", "role": "admin"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admins", strings.NewReader(body))
	req.AddCookie(superCookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create admin returned %d: %s", w.Code, w.Body.String())
	}

	// The new account signs in through the same endpoint as fixtures.
	cookie := signin(t, h, "dispatcher", "s3cret-pass")

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("me for persistent admin returned %d", w.Code)
	}
	var me struct {
		User struct {
			Provenance string `json:"provenance"`
			IsTestUser bool   `json:"isTestUser"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if me.User.Provenance != "persistent" || me.User.IsTestUser {
		t.Fatalf("unexpected provenance %+v", me.User)
	}
}

func TestCreateAdminRejectsFixtureUsername(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()
	superCookie := signin(t, h, "superadmin", "password123")

	body := `{"username": "testadmin", "email": "other@example.com", "password": "s3cret-pass", "role": "admin"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admins", strings.NewReader(body))
	req.AddCookie(superCookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("fixture username collision should be 409, got %d", w.Code)
	}
}

func TestAuditEndpointRecordsSignins(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()
	superCookie := signin(t, h, "superadmin", "password123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?type=auth.signin", nil)
	req.AddCookie(superCookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("audit query returned %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode audit response: %v", err)
	}
	if resp.Count == 0 {
		t.Fatal("signin should have produced an audit event")
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	h := newTestServer(t, config.EnvDevelopment).Handler()

	big := bytes.Repeat([]byte("a"), int(maxBodyBytes)+1)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", bytes.NewReader(big))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized body, got %d", w.Code)
	}
}
