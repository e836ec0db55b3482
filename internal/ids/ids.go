// Package ids はトークン識別子（jti）を生成する。
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New は時刻順にソート可能なULID文字列を返す。
func New() string {
	return NewAt(time.Now())
}

// NewAt は t をタイムスタンプとするULID文字列を返す。
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
