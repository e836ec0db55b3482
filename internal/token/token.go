// Package token はアクセストークンとリフレッシュトークン（HS256 JWT）の発行と検証を行う。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/rollcall/internal/ids"
)

// トークン種別
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrInvalidToken は署名不正・形式不正・種別不一致のトークン。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken は有効期限切れのトークン。
	ErrExpiredToken = errors.New("token has expired")
)

// Claims はトークンのクレーム。sub はユーザーID、jti はULID。
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issued は署名済みトークンとそのメタ情報。
type Issued struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Pair は同時に発行されるアクセストークンとリフレッシュトークン。
type Pair struct {
	Access  Issued
	Refresh Issued
}

// Config はManagerの設定。
type Config struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Manager はトークンの署名と検証を行う。
type Manager struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(cfg Config) *Manager {
	return &Manager{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

// SetNowFunc はテスト用に現在時刻関数を差し替える。
func (m *Manager) SetNowFunc(fn func() time.Time) {
	m.now = fn
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// AccessTTL はアクセストークンの有効期間を返す。
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}

// IssuePair は userID に対するアクセス・リフレッシュトークンを発行する。
func (m *Manager) IssuePair(userID string) (Pair, error) {
	access, err := m.issue(userID, TypeAccess, m.accessKey, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.issue(userID, TypeRefresh, m.refreshKey, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (m *Manager) issue(userID, typ string, key []byte, ttl time.Duration) (Issued, error) {
	now := m.now()
	id := ids.NewAt(now)
	expiresAt := now.Add(ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := t.SignedString(key)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return Issued{Value: signed, ID: id, ExpiresAt: expiresAt}, nil
}

// ParseAccess はアクセストークンを検証してクレームを返す。
func (m *Manager) ParseAccess(value string) (*Claims, error) {
	return m.parse(value, TypeAccess, m.accessKey)
}

// ParseRefresh はリフレッシュトークンを検証してクレームを返す。
func (m *Manager) ParseRefresh(value string) (*Claims, error) {
	return m.parse(value, TypeRefresh, m.refreshKey)
}

func (m *Manager) parse(value, typ string, key []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return key, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
