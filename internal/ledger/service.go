// Package ledger は出席・欠席記録の直接編集を提供する。
// 通常の記録は申請ワークフローから追記されるが、管理用にCRUDも公開する。
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// Finder は参照先の存在確認に使う。
type Finder[T any] interface {
	FindByID(ctx context.Context, id string) (*T, error)
}

// Input は出席・欠席記録の作成・更新入力。nilのフィールドは変更しない。
type Input struct {
	VenueID    *string
	DivisionID *string
	Sessions   *int
	Attended   *int
	Reason     *string
}

// Filter は一覧の絞り込み条件。Reason は欠席記録のみに効く。
type Filter struct {
	VenueID    string
	DivisionID string
	Reason     string
}

func (f Filter) ledgerFilter() model.LedgerFilter {
	lf := model.LedgerFilter{VenueID: f.VenueID, Reason: f.Reason}
	if f.DivisionID != "" {
		lf.DivisionIDs = []string{f.DivisionID}
	}
	return lf
}

// Service は出欠記録のサービス層。
type Service struct {
	ledger    repository.LedgerRepository
	venues    Finder[model.Venue]
	divisions Finder[model.Division]
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(ledger repository.LedgerRepository, venues Finder[model.Venue], divisions Finder[model.Division], collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		ledger:    ledger,
		venues:    venues,
		divisions: divisions,
		metrics:   collector,
		now:       time.Now,
	}
}

// ListAttendances は出席記録を返す。
func (s *Service) ListAttendances(ctx context.Context, f Filter) ([]*model.Attendance, error) {
	list, err := s.ledger.ListAttendances(ctx, Filter{VenueID: f.VenueID, DivisionID: f.DivisionID}.ledgerFilter())
	if err != nil {
		return nil, fmt.Errorf("出席記録の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.Attendance{}
	}
	return list, nil
}

// GetAttendance は出席記録を返す。
func (s *Service) GetAttendance(ctx context.Context, id string) (*model.Attendance, error) {
	a, err := s.ledger.FindAttendance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("出席記録の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewNotFoundError(model.ErrCodeAttendanceNotFound, "Attendance")
	}
	return a, nil
}

// CreateAttendance は出席記録を1件作成する。
func (s *Service) CreateAttendance(ctx context.Context, in Input) (*model.Attendance, error) {
	list, err := s.BulkCreateAttendances(ctx, []Input{in})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// BulkCreateAttendances は出席記録をまとめて作成する。
// 1件でも不正な入力があれば何も作成せず、インデックス付きのフィールドエラーを返す。
func (s *Service) BulkCreateAttendances(ctx context.Context, inputs []Input) ([]*model.Attendance, error) {
	if len(inputs) == 0 {
		return nil, model.NewInvalidRequestError("Expected a non-empty list of items.")
	}

	now := s.now()
	fields := map[string][]string{}
	list := make([]*model.Attendance, 0, len(inputs))
	for i, in := range inputs {
		prefix := ""
		if len(inputs) > 1 {
			prefix = strconv.Itoa(i) + "."
		}
		a := &model.Attendance{ID: uuid.New().String(), Sessions: 1, CreatedAt: now}
		for k, v := range s.applyAttendance(ctx, a, in, true) {
			fields[prefix+k] = v
		}
		list = append(list, a)
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	if err := s.ledger.CreateAttendances(ctx, list); err != nil {
		return nil, fmt.Errorf("出席記録の作成に失敗しました: %w", err)
	}
	s.metrics.RecordLedgerRows("attendance", len(list))
	return list, nil
}

// UpdateAttendance は出席記録を更新する。
func (s *Service) UpdateAttendance(ctx context.Context, id string, in Input) (*model.Attendance, error) {
	a, err := s.GetAttendance(ctx, id)
	if err != nil {
		return nil, err
	}
	if fields := s.applyAttendance(ctx, a, in, false); len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}
	if err := s.ledger.UpdateAttendance(ctx, a); err != nil {
		return nil, fmt.Errorf("出席記録の更新に失敗しました: %w", err)
	}
	return a, nil
}

// DeleteAttendance は出席記録を削除する。
func (s *Service) DeleteAttendance(ctx context.Context, id string) error {
	if _, err := s.GetAttendance(ctx, id); err != nil {
		return err
	}
	if err := s.ledger.DeleteAttendance(ctx, id); err != nil {
		return fmt.Errorf("出席記録の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) applyAttendance(ctx context.Context, a *model.Attendance, in Input, create bool) map[string][]string {
	fields := s.checkRefs(ctx, in, create)
	if in.VenueID != nil {
		a.VenueID = *in.VenueID
	}
	if in.DivisionID != nil {
		a.DivisionID = *in.DivisionID
	}
	if in.Sessions != nil {
		a.Sessions = *in.Sessions
	}
	if in.Attended != nil {
		a.Attended = *in.Attended
	}
	checkCounts(fields, a.Sessions, a.Attended)
	return fields
}

// ListAbsents は欠席記録を返す。
func (s *Service) ListAbsents(ctx context.Context, f Filter) ([]*model.Absent, error) {
	list, err := s.ledger.ListAbsents(ctx, f.ledgerFilter())
	if err != nil {
		return nil, fmt.Errorf("欠席記録の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.Absent{}
	}
	return list, nil
}

// GetAbsent は欠席記録を返す。
func (s *Service) GetAbsent(ctx context.Context, id string) (*model.Absent, error) {
	a, err := s.ledger.FindAbsent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("欠席記録の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewNotFoundError(model.ErrCodeAbsentNotFound, "Absent")
	}
	return a, nil
}

// CreateAbsent は欠席記録を作成する。理由の既定値は "study/work"。
func (s *Service) CreateAbsent(ctx context.Context, in Input) (*model.Absent, error) {
	a := &model.Absent{
		ID:        uuid.New().String(),
		Sessions:  1,
		Reason:    model.DefaultAbsentReason,
		CreatedAt: s.now(),
	}
	if fields := s.applyAbsent(ctx, a, in, true); len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}
	if err := s.ledger.CreateAbsent(ctx, a); err != nil {
		return nil, fmt.Errorf("欠席記録の作成に失敗しました: %w", err)
	}
	s.metrics.RecordLedgerRows("absent", 1)
	return a, nil
}

// UpdateAbsent は欠席記録を更新する。
func (s *Service) UpdateAbsent(ctx context.Context, id string, in Input) (*model.Absent, error) {
	a, err := s.GetAbsent(ctx, id)
	if err != nil {
		return nil, err
	}
	if fields := s.applyAbsent(ctx, a, in, false); len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}
	if err := s.ledger.UpdateAbsent(ctx, a); err != nil {
		return nil, fmt.Errorf("欠席記録の更新に失敗しました: %w", err)
	}
	return a, nil
}

// DeleteAbsent は欠席記録を削除する。
func (s *Service) DeleteAbsent(ctx context.Context, id string) error {
	if _, err := s.GetAbsent(ctx, id); err != nil {
		return err
	}
	if err := s.ledger.DeleteAbsent(ctx, id); err != nil {
		return fmt.Errorf("欠席記録の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) applyAbsent(ctx context.Context, a *model.Absent, in Input, create bool) map[string][]string {
	fields := s.checkRefs(ctx, in, create)
	if in.VenueID != nil {
		a.VenueID = *in.VenueID
	}
	if in.DivisionID != nil {
		a.DivisionID = *in.DivisionID
	}
	if in.Sessions != nil {
		a.Sessions = *in.Sessions
	}
	if in.Attended != nil {
		a.Attended = *in.Attended
	}
	if in.Reason != nil && *in.Reason != "" {
		a.Reason = *in.Reason
	}
	checkCounts(fields, a.Sessions, a.Attended)
	return fields
}

// checkRefs は venue と division の参照先を確認する。作成時は両方必須。
// 参照先の取得自体に失敗した場合も、その項目のエラーとして扱う。
func (s *Service) checkRefs(ctx context.Context, in Input, create bool) map[string][]string {
	fields := map[string][]string{}
	check := func(name string, id *string, exists func(string) bool) {
		switch {
		case id == nil:
			if create {
				fields[name] = []string{"This field is required."}
			}
		case !exists(*id):
			fields[name] = []string{fmt.Sprintf("Invalid pk %q - object does not exist.", *id)}
		}
	}
	check("venue", in.VenueID, func(id string) bool {
		v, err := s.venues.FindByID(ctx, id)
		return err == nil && v != nil
	})
	check("division", in.DivisionID, func(id string) bool {
		d, err := s.divisions.FindByID(ctx, id)
		return err == nil && d != nil
	})
	return fields
}

func checkCounts(fields map[string][]string, sessions, attended int) {
	if sessions < 0 {
		fields["sessions"] = []string{"Ensure this value is greater than or equal to 0."}
	}
	if attended < 0 {
		fields["attendance"] = []string{"Ensure this value is greater than or equal to 0."}
	}
}
