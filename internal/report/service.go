package report

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// AllDivisions は部門を限定しない集計を表す指定値。
const AllDivisions = "all"

// 既定値
const (
	DefaultTotalMonths = 3
	DefaultTopUsers    = 5
)

// Ledger は集計に使う出欠記録の読み取り操作。
type Ledger interface {
	ListAttendances(ctx context.Context, filter model.LedgerFilter) ([]*model.Attendance, error)
	ListAbsents(ctx context.Context, filter model.LedgerFilter) ([]*model.Absent, error)
	MonthlyAttendance(ctx context.Context, since time.Time) ([]repository.MonthlyAttendanceRow, error)
	TopAttendees(ctx context.Context, limit int) ([]repository.AttendeeTotal, error)
	Totals(ctx context.Context) (attended, sessions int, err error)
}

// Divisions は集計に使う部門の読み取り操作。
type Divisions interface {
	FindByID(ctx context.Context, id string) (*model.Division, error)
	List(ctx context.Context, filter model.DivisionFilter) ([]model.DivisionListItem, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Division, error)
}

// Users は集計に使うユーザーの読み取り操作。
type Users interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	CountActive(ctx context.Context) (int, error)
}

// Ratings は評価の読み取り操作。
type Ratings interface {
	List(ctx context.Context, filter repository.RatingFilter) ([]*model.Rating, error)
}

// DateRange は集計期間（両端を含む）。
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DivisionStats は期間内の出欠集計と、その元になった記録。
type DivisionStats struct {
	Stats       Stats
	Attendances []*model.Attendance
	Absents     []*model.Absent
	Divisions   []*model.Division
	DateRange   DateRange
}

// AttendanceTotals は部門の出席集計。
type AttendanceTotals struct {
	TotalSessions   int
	TotalAttendance int
	AttendanceRate  float64
}

// TopAttendee は出席数上位のユーザー。
type TopAttendee struct {
	Name            string
	TotalAttendance int
}

// TopAttendance は出席数ランキングと全体集計。
type TopAttendance struct {
	Top         []TopAttendee
	Attendance  int
	Sessions    int
	ActiveUsers int
}

// Service は集計のサービス層。
type Service struct {
	ledger    Ledger
	divisions Divisions
	users     Users
	ratings   Ratings
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(ledger Ledger, divisions Divisions, users Users, ratings Ratings) *Service {
	return &Service{
		ledger:    ledger,
		divisions: divisions,
		users:     users,
		ratings:   ratings,
		now:       time.Now,
	}
}

// ParseRange は "YYYY-MM-DD" の開始日・終了日を解析する。
// 空の場合は当月1日から今日まで。形式が不正な場合は INVALID_DATE。
func (s *Service) ParseRange(start, end string) (DateRange, error) {
	today := s.today()
	r := DateRange{
		Start: time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC),
		End:   today,
	}
	if start != "" {
		t, err := model.ParseDate(start)
		if err != nil {
			return DateRange{}, model.NewInvalidDateError()
		}
		r.Start = t
	}
	if end != "" {
		t, err := model.ParseDate(end)
		if err != nil {
			return DateRange{}, model.NewInvalidDateError()
		}
		r.End = t
	}
	return r, nil
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// UserDivisionStats は対象ユーザーの所属部門（divisionIDがallなら全所属部門）の集計を返す。
// 所属していない部門を指定した場合は空の集計になる。
func (s *Service) UserDivisionStats(ctx context.Context, userID, divisionID string, r DateRange) (*DivisionStats, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	divisions, err := s.divisions.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("所属部門の取得に失敗しました: %w", err)
	}

	var ids []string
	for _, d := range divisions {
		if divisionID == AllDivisions || divisionID == "" || d.ID == divisionID {
			ids = append(ids, d.ID)
		}
	}

	result := &DivisionStats{
		Attendances: []*model.Attendance{},
		Absents:     []*model.Absent{},
		Divisions:   divisions,
		DateRange:   r,
	}
	if len(ids) == 0 {
		return result, nil
	}

	if err := s.loadLedger(ctx, result, ids, r); err != nil {
		return nil, err
	}
	result.Stats = summarize(result.Attendances, result.Absents)
	return result, nil
}

// AllDivisionStats は全部門または指定部門の集計を返す。最も多い欠席理由を含む。
func (s *Service) AllDivisionStats(ctx context.Context, divisionID string, r DateRange) (*DivisionStats, error) {
	result := &DivisionStats{
		Attendances: []*model.Attendance{},
		Absents:     []*model.Absent{},
		DateRange:   r,
	}

	var ids []string
	if divisionID == AllDivisions || divisionID == "" {
		items, err := s.divisions.List(ctx, model.DivisionFilter{})
		if err != nil {
			return nil, fmt.Errorf("部門一覧の取得に失敗しました: %w", err)
		}
		for i := range items {
			d := items[i].Division
			result.Divisions = append(result.Divisions, &d)
		}
	} else {
		d, err := s.divisions.FindByID(ctx, divisionID)
		if err != nil {
			return nil, fmt.Errorf("部門の取得に失敗しました: %w", err)
		}
		if d == nil {
			return nil, model.NewDivisionNotFoundError()
		}
		result.Divisions = []*model.Division{d}
		ids = []string{d.ID}
	}

	if err := s.loadLedger(ctx, result, ids, r); err != nil {
		return nil, err
	}
	st := summarize(result.Attendances, result.Absents)
	st.TopAbsenceReason = topAbsenceReason(result.Absents)
	result.Stats = st
	return result, nil
}

// loadLedger は期間内の出席・欠席記録を読み込む。idsが空の場合は全部門。
func (s *Service) loadLedger(ctx context.Context, dst *DivisionStats, ids []string, r DateRange) error {
	filter := model.LedgerFilter{DivisionIDs: ids, From: &r.Start, To: &r.End}

	attendances, err := s.ledger.ListAttendances(ctx, filter)
	if err != nil {
		return fmt.Errorf("出席記録の取得に失敗しました: %w", err)
	}
	absents, err := s.ledger.ListAbsents(ctx, filter)
	if err != nil {
		return fmt.Errorf("欠席記録の取得に失敗しました: %w", err)
	}
	if attendances != nil {
		dst.Attendances = attendances
	}
	if absents != nil {
		dst.Absents = absents
	}
	return nil
}

// MonthlyAttendance は直近 totalMonths か月の部門別出席数を月ごとに返す。
// 全部門について、記録の無い月は0で埋める。
func (s *Service) MonthlyAttendance(ctx context.Context, totalMonths int) ([]MonthBucket, error) {
	if totalMonths < 0 {
		return nil, model.NewFieldError("totalMonths", "Ensure this value is greater than or equal to 0.")
	}
	today := s.today()
	since := subMonths(today, totalMonths)

	rows, err := s.ledger.MonthlyAttendance(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("月次出席の集計に失敗しました: %w", err)
	}
	items, err := s.divisions.List(ctx, model.DivisionFilter{})
	if err != nil {
		return nil, fmt.Errorf("部門一覧の取得に失敗しました: %w", err)
	}
	names := make([]string, 0, len(items))
	for _, d := range items {
		names = append(names, d.Name)
	}
	return bucketMonthly(rows, names, since, today), nil
}

// DivisionAttendanceStats は部門の出席記録の合計と出席率を返す。
func (s *Service) DivisionAttendanceStats(ctx context.Context, divisionID string) (*AttendanceTotals, error) {
	if err := s.requireDivision(ctx, divisionID); err != nil {
		return nil, err
	}
	attendances, err := s.ledger.ListAttendances(ctx, model.LedgerFilter{DivisionIDs: []string{divisionID}})
	if err != nil {
		return nil, fmt.Errorf("出席記録の取得に失敗しました: %w", err)
	}

	totals := &AttendanceTotals{}
	for _, a := range attendances {
		totals.TotalSessions += a.Sessions
		totals.TotalAttendance += a.Attended
	}
	totals.AttendanceRate = Round2(Percentage(totals.TotalAttendance, totals.TotalSessions))
	return totals, nil
}

// RatingsStats は部門の評価の平均・件数・分布を返す。
func (s *Service) RatingsStats(ctx context.Context, divisionID string) (*RatingStats, error) {
	if err := s.requireDivision(ctx, divisionID); err != nil {
		return nil, err
	}
	ratings, err := s.ratings.List(ctx, repository.RatingFilter{DivisionID: divisionID})
	if err != nil {
		return nil, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}
	st := summarizeRatings(ratings)
	return &st, nil
}

// TopAttendance は所属部門の出席数が多いユーザー上位 maxUsers 人と全体集計を返す。
func (s *Service) TopAttendance(ctx context.Context, maxUsers int) (*TopAttendance, error) {
	if maxUsers < 0 {
		return nil, model.NewFieldError("max_users", "Ensure this value is greater than or equal to 0.")
	}
	ranked, err := s.ledger.TopAttendees(ctx, maxUsers)
	if err != nil {
		return nil, fmt.Errorf("出席ランキングの取得に失敗しました: %w", err)
	}
	attended, sessions, err := s.ledger.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("出欠合計の取得に失敗しました: %w", err)
	}
	active, err := s.users.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("有効ユーザー数の取得に失敗しました: %w", err)
	}

	result := &TopAttendance{
		Top:         make([]TopAttendee, 0, len(ranked)),
		Attendance:  attended,
		Sessions:    sessions,
		ActiveUsers: active,
	}
	for _, r := range ranked {
		u := r.User
		result.Top = append(result.Top, TopAttendee{Name: u.ShortName(), TotalAttendance: r.Attended})
	}
	return result, nil
}

func (s *Service) requireDivision(ctx context.Context, divisionID string) error {
	d, err := s.divisions.FindByID(ctx, divisionID)
	if err != nil {
		return fmt.Errorf("部門の取得に失敗しました: %w", err)
	}
	if d == nil {
		return model.NewDivisionNotFoundError()
	}
	return nil
}
