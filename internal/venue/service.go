// Package venue は開催予定の管理を提供する。
package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// upcomingWindow は「直近」とみなす日数。
const upcomingWindow = 30

// DivisionLister は開催予定に紐づく部門を引くためのインターフェース。
type DivisionLister interface {
	List(ctx context.Context, filter model.DivisionFilter) ([]model.DivisionListItem, error)
}

// Input は開催予定の作成・更新入力。nilのフィールドは変更しない。
// EndTime に空文字列を指定すると終了時刻を消去する。
type Input struct {
	Date      *string
	StartTime *string
	EndTime   *string
	Place     *string
	Role      *string
	Img       *string
}

// Build は入力から新しい開催予定を組み立てる。date と startTime は必須。
func (in Input) Build(now time.Time) (*model.Venue, error) {
	fields := map[string][]string{}
	if in.Date == nil {
		fields["date"] = []string{"This field is required."}
	}
	if in.StartTime == nil {
		fields["startTime"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	v := &model.Venue{ID: uuid.New().String(), CreatedAt: now}
	if err := in.Apply(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Apply は指定されたフィールドを v に反映する。
func (in Input) Apply(v *model.Venue) error {
	fields := map[string][]string{}
	if in.Date != nil {
		if d, err := model.ParseDate(*in.Date); err != nil {
			fields["date"] = []string{"Date has wrong format. Use one of these formats instead: YYYY-MM-DD."}
		} else {
			v.Date = d
		}
	}
	if in.StartTime != nil {
		if c, err := model.ParseClock(*in.StartTime); err != nil {
			fields["startTime"] = []string{"Time has wrong format. Use one of these formats instead: hh:mm[:ss]."}
		} else {
			v.StartTime = c
		}
	}
	if in.EndTime != nil {
		if *in.EndTime == "" {
			v.EndTime = nil
		} else if c, err := model.ParseClock(*in.EndTime); err != nil {
			fields["endTime"] = []string{"Time has wrong format. Use one of these formats instead: hh:mm[:ss]."}
		} else {
			v.EndTime = &c
		}
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	if in.Place != nil {
		v.Place = *in.Place
	}
	if in.Role != nil {
		v.Role = *in.Role
	}
	if in.Img != nil {
		v.Img = *in.Img
	}
	return nil
}

// ListFilter は一覧のクエリ条件。
type ListFilter struct {
	Upcoming   bool
	DivisionID string
}

// Service は開催予定のサービス層。
type Service struct {
	venues    repository.VenueRepository
	divisions DivisionLister
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(venues repository.VenueRepository, divisions DivisionLister) *Service {
	return &Service{venues: venues, divisions: divisions, now: time.Now}
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// List は開催予定を date 降順で返す。
func (s *Service) List(ctx context.Context, f ListFilter) ([]*model.Venue, error) {
	filter := model.VenueFilter{DivisionID: f.DivisionID}
	if f.Upcoming {
		today := s.today()
		filter.From = &today
	}
	return s.list(ctx, filter)
}

func (s *Service) list(ctx context.Context, filter model.VenueFilter) ([]*model.Venue, error) {
	venues, err := s.venues.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("開催予定一覧の取得に失敗しました: %w", err)
	}
	if venues == nil {
		venues = []*model.Venue{}
	}
	return venues, nil
}

// Get は開催予定を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Venue, error) {
	v, err := s.venues.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("開催予定の取得に失敗しました: %w", err)
	}
	if v == nil {
		return nil, model.NewVenueNotFoundError()
	}
	return v, nil
}

// Create は開催予定を作成する。
func (s *Service) Create(ctx context.Context, in Input) (*model.Venue, error) {
	v, err := in.Build(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.venues.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("開催予定の作成に失敗しました: %w", err)
	}
	return v, nil
}

// Update は開催予定を更新する。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Venue, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.Apply(v); err != nil {
		return nil, err
	}
	if err := s.venues.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("開催予定の更新に失敗しました: %w", err)
	}
	return v, nil
}

// Delete は開催予定を削除する。紐づく申請と出欠記録も削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.venues.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("開催予定の削除に失敗しました: %w", err)
	}
	return nil
}

// Upcoming は今日から30日以内の開催予定を日時の昇順で返す。
func (s *Service) Upcoming(ctx context.Context) ([]*model.Venue, error) {
	from := s.today()
	to := from.AddDate(0, 0, upcomingWindow)
	return s.list(ctx, model.VenueFilter{From: &from, To: &to, Ascending: true})
}

// WithDivision はいずれかの部門に紐づく開催予定を返す。
func (s *Service) WithDivision(ctx context.Context) ([]*model.Venue, error) {
	return s.list(ctx, model.VenueFilter{WithDivision: true})
}

// UpcomingWithDivision は30日以内で部門に紐づく開催予定を返す。
// users はカンマ区切りのユーザーIDで、指定時はそのユーザーの所属部門に限定する。
func (s *Service) UpcomingWithDivision(ctx context.Context, users string) ([]*model.Venue, error) {
	from := s.today()
	to := from.AddDate(0, 0, upcomingWindow)
	filter := model.VenueFilter{From: &from, To: &to, WithDivision: true, Ascending: true}

	if users != "" {
		ids, err := ParseUserIDs(users)
		if err != nil {
			return nil, err
		}
		filter.MemberIDs = ids
	}
	return s.list(ctx, filter)
}

// ParseUserIDs はカンマ区切りのユーザーIDを検証して返す。
func ParseUserIDs(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(strings.TrimSpace(p))
		if err != nil {
			return nil, model.NewInvalidRequestError("Invalid user ID format")
		}
		ids = append(ids, id.String())
	}
	return ids, nil
}

// Divisions は開催予定に紐づく部門を返す。
func (s *Service) Divisions(ctx context.Context, venueID string) ([]model.DivisionListItem, error) {
	if _, err := s.Get(ctx, venueID); err != nil {
		return nil, err
	}
	items, err := s.divisions.List(ctx, model.DivisionFilter{VenueID: venueID})
	if err != nil {
		return nil, fmt.Errorf("部門一覧の取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []model.DivisionListItem{}
	}
	return items, nil
}
