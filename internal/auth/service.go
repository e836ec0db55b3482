// Package auth はサインアップ、ログイン、トークン更新、ログアウトと
// アクセストークンからの認証主体の解決を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/database"
	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/revocation"
	"github.com/hitoshi/rollcall/internal/token"
)

// ErrInactiveUser はトークンは正しいがユーザーが存在しないか無効化されている場合のエラー。
var ErrInactiveUser = errors.New("user is missing or inactive")

// UserStore は認証に必要なユーザー操作。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	IncrementLoginCount(ctx context.Context, id string) error
}

// DivisionFinder はサインアップ時に指定された所属部門の確認に使う。
type DivisionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Division, error)
}

// TokenIssuer はトークンの発行と検証を行う。
type TokenIssuer interface {
	IssuePair(userID string) (token.Pair, error)
	ParseAccess(value string) (*token.Claims, error)
	ParseRefresh(value string) (*token.Claims, error)
}

// ClientInfo はリフレッシュトークンの発行記録に残すクライアント情報。
type ClientInfo struct {
	UserAgent string
	IP        string
}

// Session はログイン成功時に発行される3つのクレデンシャル。
type Session struct {
	User      *model.User
	Tokens    token.Pair
	CSRFToken string
}

// SignupInput はサインアップの入力。形式の検証はハンドラー層で行う。
type SignupInput struct {
	Username       string
	Password       string
	PhoneNumber    string
	FName          string
	LName          string
	Gender         string
	Occupation     string
	ProfilePicture string
	DivisionIDs    []string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users     UserStore
	divisions DivisionFinder
	tokens    TokenIssuer
	refresh   repository.RefreshTokenRepository
	revoked   revocation.List
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。revokedとcollectorはnilの場合に無効化される。
func NewService(
	users UserStore,
	divisions DivisionFinder,
	tokens TokenIssuer,
	refresh repository.RefreshTokenRepository,
	revoked revocation.List,
	collector metrics.MetricsCollector,
) *Service {
	if revoked == nil {
		revoked = revocation.NopList{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		users:     users,
		divisions: divisions,
		tokens:    tokens,
		refresh:   refresh,
		revoked:   revoked,
		metrics:   collector,
		now:       time.Now,
	}
}

// Signup はユーザーを作成し、ログイン済みのセッションを発行する。
// 最初のユーザーは管理者になる。ユーザー名の重複はフィールドエラーを返す。
func (s *Service) Signup(ctx context.Context, in SignupInput, client ClientInfo) (*Session, error) {
	for _, id := range in.DivisionIDs {
		d, err := s.divisions.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to find division: %w", err)
		}
		if d == nil {
			return nil, model.NewUnknownDivisionRefError(id)
		}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:             uuid.New().String(),
		Username:       in.Username,
		PasswordHash:   hash,
		PhoneNumber:    in.PhoneNumber,
		FName:          in.FName,
		LName:          in.LName,
		Gender:         valueOr(in.Gender, model.DefaultGender),
		Occupation:     valueOr(in.Occupation, model.DefaultOccupation),
		ProfilePicture: in.ProfilePicture,
		IsActive:       true,
		DivisionIDs:    in.DivisionIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err, "users_username_key") {
			s.metrics.RecordAuthEvent("signup", "duplicate")
			return nil, model.NewDuplicateUsernameError()
		}
		if database.IsForeignKeyViolation(err) {
			return nil, model.NewFieldError("divisions", "Invalid pk - object does not exist.")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.Bool("is_admin", user.IsAdmin),
	)

	session, err := s.startSession(ctx, user, client)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthEvent("signup", "success")
	return session, nil
}

// Login はユーザー名とパスワードで認証し、セッションを発行する。
// ユーザー不在・無効・パスワード不一致は区別せず同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string, client ClientInfo) (*Session, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive || VerifyPassword(user.PasswordHash, password) != nil {
		s.metrics.RecordAuthEvent("login", "failure")
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.startSession(ctx, user, client)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthEvent("login", "success")
	return session, nil
}

// startSession はログイン回数を加算し、3つのクレデンシャルを発行する。
func (s *Service) startSession(ctx context.Context, user *model.User, client ClientInfo) (*Session, error) {
	if err := s.users.IncrementLoginCount(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to increment login count: %w", err)
	}
	user.LoggedInTimes++

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Create(ctx, &model.RefreshToken{
		ID:        pair.Refresh.ID,
		UserID:    user.ID,
		ExpiresAt: pair.Refresh.ExpiresAt,
		UserAgent: client.UserAgent,
		IP:        client.IP,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to record refresh token: %w", err)
	}
	return s.newSession(user, pair)
}

func (s *Service) newSession(user *model.User, pair token.Pair) (*Session, error) {
	csrf, err := NewCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	return &Session{User: user, Tokens: pair, CSRFToken: csrf}, nil
}

// Refresh はリフレッシュトークンを検証し、新しい3つのクレデンシャルを発行する。
// 使用したリフレッシュトークンは失効し、同じトークンでの更新は1回だけ成功する。
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*Session, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.metrics.RecordAuthEvent("refresh", "invalid")
		return nil, model.NewInvalidRefreshTokenError()
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		// 失効リストは補助。判定はPostgreSQLの条件付き更新に任せる。
		slog.Warn("revocation list lookup failed", slog.String("error", err.Error()))
	}
	if revoked {
		s.metrics.RecordAuthEvent("refresh", "revoked")
		return nil, model.NewInvalidRefreshTokenError()
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		s.metrics.RecordAuthEvent("refresh", "invalid")
		return nil, model.NewInvalidRefreshTokenError()
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	rotated, err := s.refresh.Rotate(ctx, claims.ID, user.ID, &model.RefreshToken{
		ID:        pair.Refresh.ID,
		UserID:    user.ID,
		ExpiresAt: pair.Refresh.ExpiresAt,
		UserAgent: client.UserAgent,
		IP:        client.IP,
		CreatedAt: now,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !rotated {
		s.metrics.RecordAuthEvent("refresh", "revoked")
		return nil, model.NewInvalidRefreshTokenError()
	}

	session, err := s.newSession(user, pair)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthEvent("refresh", "success")
	return session, nil
}

// Logout はリフレッシュトークンを失効させる。
// 返されたエラーは記録用であり、呼び出し側はCookieの削除を必ず行う。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if errors.Is(err, token.ErrExpiredToken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse refresh token: %w", err)
	}

	now := s.now()
	var errs []error
	if err := s.refresh.Revoke(ctx, claims.ID, now); err != nil {
		errs = append(errs, err)
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Sub(now)); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		s.metrics.RecordAuthEvent("logout", "revoke_failed")
		return errors.Join(errs...)
	}

	slog.Info("user logged out", slog.String("user_id", claims.Subject))
	s.metrics.RecordAuthEvent("logout", "success")
	return nil
}

// Authenticate はアクセストークンから認証主体を解決する。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.Principal, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInactiveUser
	}
	p := user.Principal()
	return &p, nil
}

// NewCSRFToken は暗号的に安全なCSRFトークン（32バイト、16進数）を生成する。
func NewCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
