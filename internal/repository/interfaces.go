// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを所属部門付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// List は全ユーザーをユーザー名順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// ListByDivision は指定部門に所属するユーザーを返す。
	ListByDivision(ctx context.Context, divisionID string) ([]*model.User, error)

	// Create はユーザーを作成する。
	// ユーザーが1人も存在しない場合は管理者として作成し、user.IsAdminを更新する。
	// 判定と挿入はアドバイザリロックで直列化される。
	Create(ctx context.Context, user *model.User) error

	// Update はプロフィールと権限フラグを更新する。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id string) error

	// IncrementLoginCount はログイン回数を1増やす。
	IncrementLoginCount(ctx context.Context, id string) error

	// AddDivision は部門所属を追加する。既に所属している場合は何もしない。
	AddDivision(ctx context.Context, userID, divisionID string) error

	// RemoveDivision は部門所属を解除する。
	RemoveDivision(ctx context.Context, userID, divisionID string) error

	// CountActive は有効なユーザー数を返す。
	CountActive(ctx context.Context) (int, error)
}

// DivisionRepository は部門データの永続化インターフェース。
type DivisionRepository interface {
	// FindByID は指定IDの部門を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Division, error)

	// List は条件に合う部門を返す。
	// filter.ViewerIDが指定された場合、所属部門を先頭に並べIsJoinedを付与する。
	List(ctx context.Context, filter model.DivisionFilter) ([]model.DivisionListItem, error)

	// ListByUser は指定ユーザーが所属する部門を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Division, error)

	// Create は部門を作成する。
	Create(ctx context.Context, division *model.Division) error

	// Update は部門を更新する。
	Update(ctx context.Context, division *model.Division) error

	// DeleteByID は部門を削除する。申請と出欠記録はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// VenueStats は部門に紐づく開催予定の件数を today 基準で集計する。
	VenueStats(ctx context.Context, divisionID string, today time.Time) (model.VenueStats, error)
}

// VenueRepository は開催予定データの永続化インターフェース。
type VenueRepository interface {
	// FindByID は指定IDの開催予定を紐づく部門付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Venue, error)

	// List は条件に合う開催予定を返す。
	List(ctx context.Context, filter model.VenueFilter) ([]*model.Venue, error)

	// Create は開催予定を作成する。
	Create(ctx context.Context, venue *model.Venue) error

	// CreateForDivision は開催予定と初期状態の申請を同一トランザクションで作成する。
	CreateForDivision(ctx context.Context, venue *model.Venue, request *model.PendingRequest) error

	// Update は開催予定を更新する。
	Update(ctx context.Context, venue *model.Venue) error

	// DeleteByID は開催予定を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// PendingRequestRepository は出欠申請の永続化インターフェース。
type PendingRequestRepository interface {
	// FindByID は指定IDの申請を表示用情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PendingRequest, error)

	// List は条件に合う申請を返す。
	List(ctx context.Context, filter model.PendingRequestFilter) ([]*model.PendingRequest, error)

	// ListAwaitingReview は申請者付きで審査待ちの申請を返す。
	ListAwaitingReview(ctx context.Context) ([]*model.PendingRequest, error)

	// ListForUser は指定ユーザーの所属部門の申請と、ユーザー自身の申請を返す。
	ListForUser(ctx context.Context, userID string) ([]*model.PendingRequest, error)

	// Create は申請を作成する。
	Create(ctx context.Context, request *model.PendingRequest) error

	// Update は申請を更新する。
	Update(ctx context.Context, request *model.PendingRequest) error

	// DeleteByID は申請を削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByDivisionAndVenue は (部門, 開催予定) の申請を削除する。
	// 削除対象が無い場合はfalseを返す。
	DeleteByDivisionAndVenue(ctx context.Context, divisionID, venueID string) (bool, error)

	// WithinTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックする。
	WithinTx(ctx context.Context, fn func(tx RequestTx) error) error
}

// RequestTx は状態遷移トランザクション内で使う操作。
type RequestTx interface {
	// LockByDivisionAndVenue は (部門, 開催予定) の申請を行ロックして取得する。
	// 見つからない場合はnilを返す。
	LockByDivisionAndVenue(ctx context.Context, divisionID, venueID string) (*model.PendingRequest, error)

	// LockByID は指定IDの申請を行ロックして取得する。見つからない場合はnilを返す。
	LockByID(ctx context.Context, id string) (*model.PendingRequest, error)

	// SaveState は申請者・理由・4フラグを書き込む。
	SaveState(ctx context.Context, request *model.PendingRequest) error

	// InsertAttendance は出席記録を追加する。
	InsertAttendance(ctx context.Context, attendance *model.Attendance) error

	// InsertAbsent は欠席記録を追加する。
	InsertAbsent(ctx context.Context, absent *model.Absent) error
}

// LedgerRepository は出席・欠席記録の永続化インターフェース。
type LedgerRepository interface {
	// FindAttendance は指定IDの出席記録を取得する。見つからない場合はnilを返す。
	FindAttendance(ctx context.Context, id string) (*model.Attendance, error)

	// ListAttendances は条件に合う出席記録を開催日の降順で返す。
	ListAttendances(ctx context.Context, filter model.LedgerFilter) ([]*model.Attendance, error)

	// CreateAttendances は出席記録をまとめて作成する。全件成功か全件失敗のどちらか。
	CreateAttendances(ctx context.Context, attendances []*model.Attendance) error

	// UpdateAttendance は出席記録を更新する。
	UpdateAttendance(ctx context.Context, attendance *model.Attendance) error

	// DeleteAttendance は出席記録を削除する。
	DeleteAttendance(ctx context.Context, id string) error

	// FindAbsent は指定IDの欠席記録を取得する。見つからない場合はnilを返す。
	FindAbsent(ctx context.Context, id string) (*model.Absent, error)

	// ListAbsents は条件に合う欠席記録を開催日の降順で返す。
	ListAbsents(ctx context.Context, filter model.LedgerFilter) ([]*model.Absent, error)

	// CreateAbsent は欠席記録を作成する。
	CreateAbsent(ctx context.Context, absent *model.Absent) error

	// UpdateAbsent は欠席記録を更新する。
	UpdateAbsent(ctx context.Context, absent *model.Absent) error

	// DeleteAbsent は欠席記録を削除する。
	DeleteAbsent(ctx context.Context, id string) error

	// MonthlyAttendance は since 以降の出席数を (月, 部門名) ごとに合計する。
	MonthlyAttendance(ctx context.Context, since time.Time) ([]MonthlyAttendanceRow, error)

	// TopAttendees は所属部門の出席数合計が多いユーザーを limit 件返す。
	TopAttendees(ctx context.Context, limit int) ([]AttendeeTotal, error)

	// Totals は全体の出席数合計と、出席・欠席を合わせたセッション数合計を返す。
	Totals(ctx context.Context) (attended, sessions int, err error)
}

// MonthlyAttendanceRow は月次出席集計の1行。
type MonthlyAttendanceRow struct {
	Month        time.Time
	DivisionName string
	Attended     int
}

// AttendeeTotal はユーザーごとの出席数合計。
type AttendeeTotal struct {
	User     model.User
	Attended int
}

// SongFilter は練習曲一覧の絞り込み条件。
type SongFilter struct {
	DivisionID string
	From       *time.Time
	To         *time.Time
}

// SongRepository は練習曲の永続化インターフェース。
type SongRepository interface {
	FindByID(ctx context.Context, id string) (*model.Song, error)
	List(ctx context.Context, filter SongFilter) ([]*model.Song, error)
	// Create は曲と部門の紐付けを同一トランザクションで作成する。
	Create(ctx context.Context, song *model.Song) error
	// Update は曲を更新し、部門の紐付けを置き換える。
	Update(ctx context.Context, song *model.Song) error
	DeleteByID(ctx context.Context, id string) error
}

// PerformanceRepository は公演記録の永続化インターフェース。
type PerformanceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Performance, error)
	// List は公演を返す。divisionIDが空でない場合はその部門に限定する。
	List(ctx context.Context, divisionID string) ([]*model.Performance, error)
	Create(ctx context.Context, performance *model.Performance) error
	Update(ctx context.Context, performance *model.Performance) error
	DeleteByID(ctx context.Context, id string) error
}

// ActivityRepository はアクティビティの永続化インターフェース。
type ActivityRepository interface {
	FindByID(ctx context.Context, id string) (*model.Activity, error)
	List(ctx context.Context) ([]*model.Activity, error)
	// Create はactivity.Venueが指定されていれば開催予定も同時に作成する。
	Create(ctx context.Context, activity *model.Activity) error
	// Update はactivity.Venueが指定されていれば開催予定も更新または作成する。
	Update(ctx context.Context, activity *model.Activity) error
	// DeleteByID はアクティビティと紐づく開催予定を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// RatingFilter は評価一覧の絞り込み条件。
type RatingFilter struct {
	UserID     string
	DivisionID string
}

// RatingRepository は評価の永続化インターフェース。
type RatingRepository interface {
	FindByID(ctx context.Context, id string) (*model.Rating, error)
	List(ctx context.Context, filter RatingFilter) ([]*model.Rating, error)
	// Upsert は (user, division) の評価を作成または更新する。
	Upsert(ctx context.Context, rating *model.Rating) error
	Update(ctx context.Context, rating *model.Rating) error
	DeleteByID(ctx context.Context, id string) error
}

// FeedbackRepository はフィードバックの永続化インターフェース。
type FeedbackRepository interface {
	FindByID(ctx context.Context, id string) (*model.Feedback, error)
	// List は作成日時の降順で返す。userIDが空の場合は全件。
	List(ctx context.Context, userID string) ([]*model.Feedback, error)
	Create(ctx context.Context, feedback *model.Feedback) error
	Update(ctx context.Context, feedback *model.Feedback) error
	DeleteByID(ctx context.Context, id string) error
}

// RefreshTokenRepository はリフレッシュトークン発行記録の永続化インターフェース。
type RefreshTokenRepository interface {
	// Create は発行記録を作成する。
	Create(ctx context.Context, token *model.RefreshToken) error

	// Rotate は有効な oldID を失効させ next を作成する。
	// 失効済み・期限切れ・他ユーザーのトークンの場合はfalseを返し、何も変更しない。
	Rotate(ctx context.Context, oldID, userID string, next *model.RefreshToken, now time.Time) (bool, error)

	// Revoke は指定トークンを失効させる。既に失効済みでもエラーにしない。
	Revoke(ctx context.Context, id string, now time.Time) error

	// DeleteStale は before より前に期限切れまたは失効したトークンを削除し、件数を返す。
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
