package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "rollcall-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
}

func TestIssuePair_RoundTrip(t *testing.T) {
	m := newTestManager()

	pair, err := m.IssuePair("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access.Value)
	require.NotEmpty(t, pair.Refresh.Value)
	assert.NotEqual(t, pair.Access.ID, pair.Refresh.ID)

	access, err := m.ParseAccess(pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.Subject)
	assert.Equal(t, TypeAccess, access.Type)
	assert.Equal(t, pair.Access.ID, access.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), access.ExpiresAt.Time, time.Minute)

	refresh, err := m.ParseRefresh(pair.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.Subject)
	assert.Equal(t, pair.Refresh.ID, refresh.ID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), refresh.ExpiresAt.Time, time.Minute)
}

// アクセストークンをリフレッシュとして、またはその逆で使えないこと
func TestParse_RejectsWrongType(t *testing.T) {
	m := newTestManager()
	pair, err := m.IssuePair("user-1")
	require.NoError(t, err)

	_, err = m.ParseRefresh(pair.Access.Value)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseAccess(pair.Refresh.Value)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// 有効期間を過ぎたアクセストークンは期限切れとして扱うこと
func TestParseAccess_Expired(t *testing.T) {
	m := newTestManager()
	issuedAt := time.Now().Add(-time.Hour)
	m.SetNowFunc(func() time.Time { return issuedAt })
	pair, err := m.IssuePair("user-1")
	require.NoError(t, err)

	m.SetNowFunc(time.Now)
	_, err = m.ParseAccess(pair.Access.Value)
	require.ErrorIs(t, err, ErrExpiredToken)

	// リフレッシュトークンはまだ有効
	_, err = m.ParseRefresh(pair.Refresh.Value)
	require.NoError(t, err)
}

func TestParse_RejectsTamperedAndForeignTokens(t *testing.T) {
	m := newTestManager()
	pair, err := m.IssuePair("user-1")
	require.NoError(t, err)

	_, err = m.ParseAccess(pair.Access.Value + "x")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseAccess("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewManager(Config{
		AccessSecret: "other-secret", RefreshSecret: "other", Issuer: "rollcall-test",
		AccessTTL: time.Minute, RefreshTTL: time.Hour,
	})
	foreign, err := other.IssuePair("user-1")
	require.NoError(t, err)
	_, err = m.ParseAccess(foreign.Access.Value)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// 別の署名方式や発行者のトークンを受け付けないこと
func TestParse_RejectsNoneAlgAndWrongIssuer(t *testing.T) {
	m := newTestManager()

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1", ID: "x", Issuer: "rollcall-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	value, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ParseAccess(value)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1", ID: "x", Issuer: "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	value, err = wrongIssuer.SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, err = m.ParseAccess(value)
	require.ErrorIs(t, err, ErrInvalidToken)
}
