package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/rollcall/internal/auth"
	"github.com/hitoshi/rollcall/internal/middleware"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/token"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn  func(ctx context.Context, in auth.SignupInput, client auth.ClientInfo) (*auth.Session, error)
	loginFn   func(ctx context.Context, username, password string, client auth.ClientInfo) (*auth.Session, error)
	refreshFn func(ctx context.Context, refreshToken string, client auth.ClientInfo) (*auth.Session, error)
	logoutFn  func(ctx context.Context, refreshToken string) error
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput, client auth.ClientInfo) (*auth.Session, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in, client)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string, client auth.ClientInfo) (*auth.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password, client)
	}
	return nil, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string, client auth.ClientInfo) (*auth.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken, client)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, refreshToken)
	}
	return nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testSession() *auth.Session {
	return &auth.Session{
		User: &model.User{ID: "user-1", Username: "alice", IsActive: true},
		Tokens: token.Pair{
			Access:  token.Issued{Value: "access-jwt", ID: "a1", ExpiresAt: testNow.Add(5 * time.Minute)},
			Refresh: token.Issued{Value: "refresh-jwt", ID: "r1", ExpiresAt: testNow.Add(24 * time.Hour)},
		},
		CSRFToken: "csrf-123",
	}
}

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	h := NewAuthHandler(svc, AuthHandlerConfig{CSRFMaxAge: 3600})
	h.now = func() time.Time { return testNow }
	return h
}

func cookiesByName(resp *http.Response) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range resp.Cookies() {
		out[c.Name] = c
	}
	return out
}

// --- テスト ---

func TestAuthHandler_Signup_SetsSessionCookies(t *testing.T) {
	var got auth.SignupInput
	svc := &mockAuthService{
		signupFn: func(_ context.Context, in auth.SignupInput, client auth.ClientInfo) (*auth.Session, error) {
			got = in
			if client.IP != "192.0.2.1" {
				t.Errorf("client IP = %q, want %q", client.IP, "192.0.2.1")
			}
			return testSession(), nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/signup", jsonBody(t, map[string]any{
		"username":  "alice",
		"password":  "secret",
		"divisions": []string{"0b6f2c1e-6f53-4b8e-9a51-2d7c3c1f0a11"},
	}))
	req.RemoteAddr = "192.0.2.1:5555"
	w := httptest.NewRecorder()

	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if got.Username != "alice" || len(got.DivisionIDs) != 1 {
		t.Errorf("signup input = %+v", got)
	}

	cookies := cookiesByName(resp)
	access := cookies[middleware.AccessCookieName]
	if access == nil || access.Value != "access-jwt" || !access.HttpOnly {
		t.Errorf("access cookie = %+v", access)
	}
	if access != nil && access.MaxAge != 300 {
		t.Errorf("access MaxAge = %d, want 300", access.MaxAge)
	}
	refresh := cookies[middleware.RefreshCookieName]
	if refresh == nil || refresh.Value != "refresh-jwt" || !refresh.HttpOnly {
		t.Errorf("refresh cookie = %+v", refresh)
	}
	csrf := cookies[middleware.CSRFCookieName]
	if csrf == nil || csrf.Value != "csrf-123" || csrf.HttpOnly {
		t.Errorf("csrf cookie = %+v", csrf)
	}

	body := decodeMap(t, w)
	user, ok := body["user"].(map[string]any)
	if !ok || user["username"] != "alice" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthHandler_Signup_InvalidUsername(t *testing.T) {
	called := false
	h := newTestAuthHandler(&mockAuthService{
		signupFn: func(context.Context, auth.SignupInput, auth.ClientInfo) (*auth.Session, error) {
			called = true
			return testSession(), nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/signup", jsonBody(t, map[string]any{
		"username": "has space",
		"password": "secret",
	}))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service must not be called for invalid input")
	}
	body := decodeErrorBody(t, w)
	if _, ok := body.Fields["username"]; !ok {
		t.Errorf("fields = %v, want username", body.Fields)
	}
}

func TestAuthHandler_Signup_InvalidDivisionID(t *testing.T) {
	called := false
	h := newTestAuthHandler(&mockAuthService{
		signupFn: func(context.Context, auth.SignupInput, auth.ClientInfo) (*auth.Session, error) {
			called = true
			return testSession(), nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/signup", jsonBody(t, map[string]any{
		"username":  "alice",
		"password":  "secret",
		"divisions": []string{"nope"},
	}))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service must not be called for invalid input")
	}
	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if msgs := body.Fields["divisions"]; len(msgs) != 1 || msgs[0] != `Invalid pk "nope" - object does not exist.` {
		t.Errorf("fields = %v, want divisions error", body.Fields)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		loginFn: func(context.Context, string, string, auth.ClientInfo) (*auth.Session, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/login", jsonBody(t, map[string]string{
		"username": "alice",
		"password": "wrong",
	}))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookies should be set on failed login")
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestAuthHandler_Refresh_MissingCookie(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		refreshFn: func(context.Context, string, auth.ClientInfo) (*auth.Session, error) {
			t.Error("service must not be called without a refresh cookie")
			return nil, nil
		},
	})

	w := httptest.NewRecorder()
	h.Refresh(w, httptest.NewRequest(http.MethodPost, "/refresh-token", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeInvalidRefreshToken {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidRefreshToken)
	}
}

func TestAuthHandler_Refresh_RotatesCookies(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		refreshFn: func(_ context.Context, refreshToken string, _ auth.ClientInfo) (*auth.Session, error) {
			if refreshToken != "old-refresh" {
				t.Errorf("refreshToken = %q, want %q", refreshToken, "old-refresh")
			}
			return testSession(), nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshCookieName, Value: "old-refresh"})
	w := httptest.NewRecorder()

	h.Refresh(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if c := cookiesByName(w.Result())[middleware.RefreshCookieName]; c == nil || c.Value != "refresh-jwt" {
		t.Errorf("refresh cookie = %+v", c)
	}
}

// assertSessionCookiesCleared は3つのCookieすべてに削除指示が返っていることを検証する。
func assertSessionCookiesCleared(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	cookies := cookiesByName(w.Result())
	for _, name := range []string{middleware.AccessCookieName, middleware.RefreshCookieName, middleware.CSRFCookieName} {
		c := cookies[name]
		if c == nil || c.MaxAge >= 0 {
			t.Errorf("cookie %s not cleared: %+v", name, c)
		}
	}
}

func TestAuthHandler_Refresh_FailureClearsCookies(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		err        error
		wantStatus int
	}{
		{"cookieなし", "", nil, http.StatusUnauthorized},
		{"失効済みトークン", "revoked-jwt", model.NewInvalidRefreshTokenError(), http.StatusUnauthorized},
		{"想定外の障害", "refresh-jwt", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAuthHandler(&mockAuthService{
				refreshFn: func(context.Context, string, auth.ClientInfo) (*auth.Session, error) {
					return nil, tt.err
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/refresh-token", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.RefreshCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			h.Refresh(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			assertSessionCookiesCleared(t, w)
		})
	}
}

func TestAuthHandler_Logout_ClearsCookiesEvenOnError(t *testing.T) {
	revoked := ""
	h := newTestAuthHandler(&mockAuthService{
		logoutFn: func(_ context.Context, refreshToken string) error {
			revoked = refreshToken
			return errors.New("db down")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshCookieName, Value: "refresh-jwt"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if revoked != "refresh-jwt" {
		t.Errorf("revoked = %q, want %q", revoked, "refresh-jwt")
	}
	cookies := cookiesByName(w.Result())
	for _, name := range []string{middleware.AccessCookieName, middleware.RefreshCookieName, middleware.CSRFCookieName} {
		c := cookies[name]
		if c == nil || c.MaxAge >= 0 {
			t.Errorf("cookie %s not cleared: %+v", name, c)
		}
	}
	if body := decodeMap(t, w); body["detail"] != "Successfully logged out." {
		t.Errorf("body = %v", body)
	}
}

func TestAuthHandler_Logout_WithoutCookieSkipsService(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		logoutFn: func(context.Context, string) error {
			t.Error("service must not be called without a refresh cookie")
			return nil
		},
	})

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthHandler_CSRFToken_IssuesCookie(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.CSRFToken().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	c := cookiesByName(w.Result())[middleware.CSRFCookieName]
	if c == nil || c.Value == "" {
		t.Fatal("expected csrftoken cookie")
	}
	if body := decodeMap(t, w); body["csrfToken"] != c.Value {
		t.Errorf("csrfToken = %v, want cookie value %q", body["csrfToken"], c.Value)
	}
}
