// Package revocation はリフレッシュトークンの失効リスト（jti単位）を提供する。
// PostgreSQLの発行記録が正であり、ここは更新処理の前段で使う高速な拒否リスト。
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix は失効済みjtiのRedisキー接頭辞。
const keyPrefix = "rtrl:jti:"

// List はjti単位の失効リスト。
type List interface {
	// Revoke はjtiを ttl の間、失効扱いにする。
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked はjtiが失効済みかを返す。
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisList はRedisを使用した失効リスト。
// キーはトークン本来の有効期限で自然消滅する。
type RedisList struct {
	client redis.UniversalClient
}

// NewRedisList はRedisListを生成する。クライアントのライフサイクルは呼び出し側が管理する。
func NewRedisList(client redis.UniversalClient) *RedisList {
	return &RedisList{client: client}
}

// Revoke はjtiを失効リストに追加する。ttlが0以下の場合は既に期限切れのため何もしない。
func (l *RedisList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token in redis: %w", err)
	}
	return nil
}

// IsRevoked はjtiが失効リストに存在するかを返す。
func (l *RedisList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	err := l.client.Get(ctx, keyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return true, nil
}

// NopList はRedis未設定時に使う何もしない失効リスト。
type NopList struct{}

// Revoke は何もしない。
func (NopList) Revoke(context.Context, string, time.Duration) error { return nil }

// IsRevoked は常にfalseを返す。
func (NopList) IsRevoked(context.Context, string) (bool, error) { return false, nil }

// NewFromURL はredisURLが空ならNopListを、そうでなければRedisListを返す。
// 返されたclose関数で接続を閉じる。
func NewFromURL(redisURL string) (List, func() error, error) {
	if redisURL == "" {
		return NopList{}, func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisList(client), client.Close, nil
}

// compile-time interface check
var (
	_ List = (*RedisList)(nil)
	_ List = NopList{}
)
