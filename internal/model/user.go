// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// ユーザー属性のデフォルト値
const (
	DefaultGender     = "Male"
	DefaultOccupation = "Student"

	// UsernameMaxLength はユーザー名の最大文字数。
	UsernameMaxLength = 20
	// PasswordMinLength はパスワードの最小文字数。
	PasswordMinLength = 4
)

// User はサービス利用ユーザーを表す。
// 最初に作成されたユーザーは自動的に管理者になる。
type User struct {
	ID             string
	Username       string
	PasswordHash   string
	PhoneNumber    string
	FName          string
	LName          string
	Gender         string
	Occupation     string
	ProfilePicture string
	IsAdmin        bool
	IsActive       bool
	LoggedInTimes  int
	DivisionIDs    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ShortName は "F. Lname" 形式の表示名を返す。
// 名が空の場合は姓のみ、両方空の場合はユーザー名を返す。
func (u *User) ShortName() string {
	fname := strings.TrimSpace(u.FName)
	lname := strings.TrimSpace(u.LName)
	switch {
	case fname != "" && lname != "":
		return string([]rune(fname)[0]) + ". " + lname
	case lname != "":
		return lname
	case fname != "":
		return fname
	default:
		return u.Username
	}
}

// InDivision はユーザーが指定部門に所属しているかを返す。
func (u *User) InDivision(divisionID string) bool {
	for _, id := range u.DivisionIDs {
		if id == divisionID {
			return true
		}
	}
	return false
}

// Principal はリクエストを実行している認証済みユーザーを表す。
// サービス層へは常に明示的な引数として渡す。
type Principal struct {
	UserID   string
	Username string
	IsAdmin  bool
}

// Principal はユーザーから認証主体を生成する。
func (u *User) Principal() Principal {
	return Principal{
		UserID:   u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
	}
}

// CanActFor は主体が指定ユーザーに対する操作権限を持つかを返す。
// 管理者は全ユーザー、一般ユーザーは自分自身のみ。
func (p Principal) CanActFor(userID string) bool {
	return p.IsAdmin || p.UserID == userID
}

// RefreshToken はリフレッシュトークンの発行記録を表す。
// IDはJWTのjtiと一致する。
type RefreshToken struct {
	ID         string
	UserID     string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
	UserAgent  string
	IP         string
	CreatedAt  time.Time
}
