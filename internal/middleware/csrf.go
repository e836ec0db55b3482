package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// CSRFConfig はCSRFトークンCookieの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// MaxAge はCookieの有効期間（秒）。
	MaxAge int
	// NewToken はトークン生成関数。
	NewToken func() (string, error)
}

// csrfTokenMatches はヘッダーのトークンがCookieのトークンと一致するかを返す。
// どちらかが空の場合は不一致とする。
func csrfTokenMatches(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(CSRFHeaderName)
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) == 1
}

// NewCSRFCookie はフロントエンドから読み取れるCSRFトークンCookieを生成する。
func NewCSRFCookie(config CSRFConfig, token string) *http.Cookie {
	return &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /csrf-token
// 既存のCSRFトークンCookieがある場合はそれを返し、なければ新規生成してCookieに設定する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token, err = config.NewToken()
			if err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			http.SetCookie(w, NewCSRFCookie(config, token))
		}

		w.Header().Set("Content-Type", "application/json")
		encodeJSON(w, map[string]string{"csrfToken": token})
	})
}
