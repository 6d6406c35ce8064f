package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubAuthenticator struct {
	principal  *Principal
	err        error
	identifier string
	password   string
}

func (s *stubAuthenticator) Authenticate(identifier, password string) (*Principal, error) {
	s.identifier = identifier
	s.password = password
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

type stubIssuer struct {
	token string
	err   error
}

func (s *stubIssuer) Issue(p *Principal) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

type stubFixtureResolver struct {
	principal *Principal
	err       error
	queriedID string
}

func (s *stubFixtureResolver) ResolveFixture(id string) (*Principal, error) {
	s.queriedID = id
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

func signinRequestBody(username, password string) *strings.Reader {
	b, _ := json.Marshal(map[string]string{"username": username, "password": password})
	return strings.NewReader(string(b))
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSigninSuccessSetsCookie(t *testing.T) {
	authn := &stubAuthenticator{principal: testPrincipal()}
	issuer := &stubIssuer{token: "signed.jwt.token"}

	h := HandleSignin(authn, issuer, SigninOptions{})
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", signinRequestBody("testadmin", "password123"))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if authn.identifier != "testadmin" || authn.password != "password123" {
		t.Fatalf("authenticator called with %q/%q", authn.identifier, authn.password)
	}

	var resp struct {
		User *Principal `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User == nil || resp.User.Username != "testadmin" || resp.User.Role != "admin" {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}
	if !resp.User.IsTestUser {
		t.Fatal("expected isTestUser true for fixture signin")
	}

	cookie := sessionCookie(t, w)
	if cookie == nil {
		t.Fatal("expected session cookie to be set")
	}
	if cookie.Value != "signed.jwt.token" {
		t.Fatalf("unexpected cookie value %q", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if cookie.Secure {
		t.Fatal("Secure should be off outside production")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected SameSite=Lax, got %v", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Fatalf("expected Path=/, got %q", cookie.Path)
	}
	if cookie.MaxAge != sessionMaxAgeSeconds {
		t.Fatalf("expected MaxAge=%d, got %d", sessionMaxAgeSeconds, cookie.MaxAge)
	}
}

func TestSigninSecureCookieInProduction(t *testing.T) {
	h := HandleSignin(
		&stubAuthenticator{principal: testPrincipal()},
		&stubIssuer{token: "tok"},
		SigninOptions{SecureCookie: true},
	)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", signinRequestBody("testadmin", "password123"))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	cookie := sessionCookie(t, w)
	if cookie == nil || !cookie.Secure {
		t.Fatal("expected Secure cookie in production mode")
	}
}

func TestSigninMissingFields(t *testing.T) {
	h := HandleSignin(&stubAuthenticator{}, &stubIssuer{token: "tok"}, SigninOptions{})

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"no password", `{"username":"testadmin"}`},
		{"no username", `{"password":"password123"}`},
		{"blank username", `{"username":"   ","password":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), "Username and password are required") {
				t.Fatalf("unexpected error body: %s", w.Body.String())
			}
		})
	}
}

func TestSigninInvalidCredentialsUniform(t *testing.T) {
	// Unknown user and wrong password produce the identical response.
	h := HandleSignin(&stubAuthenticator{err: ErrInvalidCredentials}, &stubIssuer{token: "tok"}, SigninOptions{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signin", signinRequestBody("nobody", "wrong"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var resp apiError
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Invalid username or password" {
		t.Fatalf("unexpected message %q", resp.Error)
	}
	if cookie := sessionCookie(t, w); cookie != nil && cookie.Value != "" {
		t.Fatal("no session cookie should be set on failure")
	}
}

func TestSigninDeactivatedFixture(t *testing.T) {
	h := HandleSignin(&stubAuthenticator{err: ErrAccountDeactivated}, &stubIssuer{token: "tok"}, SigninOptions{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signin", signinRequestBody("testadmin", "password123"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Account is deactivated") {
		t.Fatalf("expected deactivation message, got %s", w.Body.String())
	}
}

func TestSigninStoreFailureIs500(t *testing.T) {
	h := HandleSignin(&stubAuthenticator{err: errors.New("admin store: connection refused")}, &stubIssuer{token: "tok"}, SigninOptions{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signin", signinRequestBody("someone", "pass"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Fatal("internal error detail must not leak to the client")
	}
}

func TestSigninRateLimited(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	h := HandleSignin(&stubAuthenticator{err: ErrInvalidCredentials}, &stubIssuer{token: "tok"}, SigninOptions{Limiter: limiter})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/signin", signinRequestBody("testadmin", "wrong"))
		req.RemoteAddr = "10.0.0.9:51000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// A different client address is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", signinRequestBody("testadmin", "wrong"))
	req.RemoteAddr = "10.0.0.10:51000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for fresh client, got %d", w.Code)
	}
}

func TestSignoutClearsCookie(t *testing.T) {
	h := HandleSignout(false, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "some.token"})
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Signed out successfully") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	cleared := sessionCookie(t, w)
	if cleared == nil {
		t.Fatal("expected cleared session cookie")
	}
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: value=%q maxage=%d", cleared.Value, cleared.MaxAge)
	}
}

func TestSignoutWithoutSessionStillSucceeds(t *testing.T) {
	h := HandleSignout(false, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("signout must be idempotent, got %d", w.Code)
	}
}

func TestMeReturnsContextPrincipal(t *testing.T) {
	h := HandleMe(nil)

	p := &Principal{ID: "a-1", Username: "ops", Role: "super_admin", Provenance: ProvenancePersistent}
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), p))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		User *Principal `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.Username != "ops" || resp.User.Role != "super_admin" {
		t.Fatalf("unexpected payload: %+v", resp.User)
	}
}

func TestMeRevalidatesFixture(t *testing.T) {
	fixtures := &stubFixtureResolver{err: ErrAccountDeactivated}
	h := HandleMe(fixtures)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), testPrincipal()))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated fixture, got %d", w.Code)
	}
	if fixtures.queriedID != "test-admin-001" {
		t.Fatalf("resolver queried with %q", fixtures.queriedID)
	}
}

func TestMeWithoutPrincipal(t *testing.T) {
	h := HandleMe(nil)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRefreshIssuesNewToken(t *testing.T) {
	h := HandleRefresh(&stubIssuer{token: "fresh.token"}, false, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), testPrincipal()))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(t, w)
	if cookie == nil || cookie.Value != "fresh.token" {
		t.Fatal("expected refreshed session cookie")
	}
	if cookie.MaxAge != sessionMaxAgeSeconds {
		t.Fatalf("refresh should reset cookie lifetime, got %d", cookie.MaxAge)
	}
}

func TestRefreshRequiresPrincipal(t *testing.T) {
	h := HandleRefresh(&stubIssuer{token: "tok"}, false, nil)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
