package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hitoshi/rollcall/internal/auth"
	"github.com/hitoshi/rollcall/internal/middleware"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput, client auth.ClientInfo) (*auth.Session, error)
	Login(ctx context.Context, username, password string, client auth.ClientInfo) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string, client auth.ClientInfo) (*auth.Session, error)
	// Logout はリフレッシュトークンを失効させる。エラーでもCookieは削除する。
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
	// CSRFMaxAge はCSRFトークンCookieの有効期間（秒）。
	CSRFMaxAge int
}

func (c AuthHandlerConfig) csrfConfig() middleware.CSRFConfig {
	return middleware.CSRFConfig{
		CookieSecure: c.CookieSecure,
		CookieDomain: c.CookieDomain,
		MaxAge:       c.CSRFMaxAge,
		NewToken:     auth.NewCSRFToken,
	}
}

// AuthHandler はサインアップ・ログイン・トークン更新のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	now     func() time.Time
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		now:     time.Now,
	}
}

type signupRequest struct {
	Username       string   `json:"username" validate:"required,max=20,username"`
	Password       string   `json:"password" validate:"required,min=4"`
	PhoneNumber    string   `json:"phone_number" validate:"max=15"`
	FName          string   `json:"fname" validate:"max=128"`
	LName          string   `json:"lname" validate:"max=128"`
	Gender         string   `json:"gender"`
	Occupation     string   `json:"occupation"`
	ProfilePicture string   `json:"profile_picture"`
	Divisions      []string `json:"divisions" validate:"omitempty,dive,uuid"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	User userResponse `json:"user"`
}

// Signup はユーザーを作成し、そのままログインさせる。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.service.Signup(r.Context(), auth.SignupInput{
		Username:       req.Username,
		Password:       req.Password,
		PhoneNumber:    req.PhoneNumber,
		FName:          req.FName,
		LName:          req.LName,
		Gender:         req.Gender,
		Occupation:     req.Occupation,
		ProfilePicture: req.ProfilePicture,
		DivisionIDs:    req.Divisions,
	}, clientInfo(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	writeJSON(w, http.StatusCreated, sessionResponse{User: toUserResponse(session.User)})
}

// Login はユーザー名とパスワードで認証する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password, clientInfo(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(session.User)})
}

// Refresh はリフレッシュトークンCookieから新しいクレデンシャルを発行する。
// 失敗時は理由にかかわらず3つのCookieをすべて削除する。
// POST /refresh-token
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		h.clearSessionCookies(w)
		handleServiceError(w, model.NewInvalidRefreshTokenError())
		return
	}

	session, err := h.service.Refresh(r.Context(), cookie.Value, clientInfo(r))
	if err != nil {
		h.clearSessionCookies(w)
		handleServiceError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(session.User)})
}

// Logout はリフレッシュトークンを失効させ、Cookieを削除する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.RefreshCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			slog.Warn("failed to revoke refresh token on logout", slog.String("error", err.Error()))
		}
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Successfully logged out."})
}

// CSRFToken はCSRFトークンCookieを発行する。
// GET /csrf-token
func (h *AuthHandler) CSRFToken() http.Handler {
	return middleware.NewCSRFTokenHandler(h.config.csrfConfig())
}

// TestConnection は疎通確認用のエンドポイント。
// GET /test-connection
func TestConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

// setSessionCookies はアクセス・リフレッシュ・CSRFの3つのCookieを設定する。
func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, session *auth.Session) {
	now := h.now()
	http.SetCookie(w, h.tokenCookie(middleware.AccessCookieName, session.Tokens.Access, now))
	http.SetCookie(w, h.tokenCookie(middleware.RefreshCookieName, session.Tokens.Refresh, now))
	http.SetCookie(w, middleware.NewCSRFCookie(h.config.csrfConfig(), session.CSRFToken))
}

func (h *AuthHandler) tokenCookie(name string, issued token.Issued, now time.Time) *http.Cookie {
	maxAge := int(issued.ExpiresAt.Sub(now).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     name,
		Value:    issued.Value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessCookieName, middleware.RefreshCookieName, middleware.CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   h.config.CookieDomain,
			MaxAge:   -1,
			HttpOnly: name != middleware.CSRFCookieName,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// clientInfo はリフレッシュトークンの発行記録に残すクライアント情報を返す。
func clientInfo(r *http.Request) auth.ClientInfo {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return auth.ClientInfo{UserAgent: r.UserAgent(), IP: ip}
}
