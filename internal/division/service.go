// Package division は部門の管理と詳細ビューの集約を提供する。
package division

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/database"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/report"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
	"github.com/hitoshi/rollcall/internal/venue"
)

// Input は部門の作成・更新入力。nilのフィールドは変更しない。
type Input struct {
	Name             *string
	Role             *string
	UserRole         *string
	IsRegistered     *bool
	IsActive         *bool
	Value            *string
	ShowRatings      *bool
	ShortWords       *string
	ShowVenue        *bool
	Title            *string
	TitleDesc        *string
	TitleQuote       *string
	ShowUser         *bool
	BaseUser         *string
	BaseUserModifier *string
}

func (in Input) apply(d *model.Division, text security.Sanitizer) {
	setString(&d.Name, in.Name, nil)
	setString(&d.Role, in.Role, nil)
	setString(&d.UserRole, in.UserRole, nil)
	setString(&d.Value, in.Value, nil)
	setString(&d.ShortWords, in.ShortWords, text)
	setString(&d.Title, in.Title, text)
	setString(&d.TitleDesc, in.TitleDesc, text)
	setString(&d.TitleQuote, in.TitleQuote, text)
	setString(&d.BaseUser, in.BaseUser, nil)
	setString(&d.BaseUserModifier, in.BaseUserModifier, nil)
	setBool(&d.IsRegistered, in.IsRegistered)
	setBool(&d.IsActive, in.IsActive)
	setBool(&d.ShowRatings, in.ShowRatings)
	setBool(&d.ShowVenue, in.ShowVenue)
	setBool(&d.ShowUser, in.ShowUser)
}

// Repos は詳細ビューの集約に使うリポジトリ群。
type Repos struct {
	Divisions    repository.DivisionRepository
	Venues       repository.VenueRepository
	Requests     repository.PendingRequestRepository
	Songs        repository.SongRepository
	Ledger       repository.LedgerRepository
	Ratings      repository.RatingRepository
	Performances repository.PerformanceRepository
	Users        repository.UserRepository
}

// Service は部門のサービス層。
type Service struct {
	repos Repos
	text  security.Sanitizer
	now   func() time.Time
}

// NewService はServiceを生成する。text がnilの場合は無害化しない。
func NewService(repos Repos, text security.Sanitizer) *Service {
	if text == nil {
		text = security.Nop{}
	}
	return &Service{repos: repos, text: text, now: time.Now}
}

// List は部門一覧を返す。viewerIDが指定された場合は所属部門を先頭に並べる。
func (s *Service) List(ctx context.Context, filter model.DivisionFilter) ([]model.DivisionListItem, error) {
	items, err := s.repos.Divisions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("部門一覧の取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []model.DivisionListItem{}
	}
	for i := range items {
		items[i].AverageRating = report.Round2(items[i].AverageRating)
	}
	return items, nil
}

// Get は部門を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Division, error) {
	d, err := s.repos.Divisions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("部門の取得に失敗しました: %w", err)
	}
	if d == nil {
		return nil, model.NewDivisionNotFoundError()
	}
	return d, nil
}

// Detail は部門詳細ビューを集約して返す。
func (s *Service) Detail(ctx context.Context, id string) (*model.DivisionDetail, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &model.DivisionDetail{Division: *d}

	venues, err := s.repos.Venues.List(ctx, model.VenueFilter{DivisionID: id})
	if err != nil {
		return nil, fmt.Errorf("開催予定の取得に失敗しました: %w", err)
	}
	for _, v := range venues {
		detail.Venues = append(detail.Venues, *v)
	}

	songs, err := s.repos.Songs.List(ctx, repository.SongFilter{DivisionID: id})
	if err != nil {
		return nil, fmt.Errorf("練習曲の取得に失敗しました: %w", err)
	}
	for _, song := range songs {
		detail.Songs = append(detail.Songs, *song)
	}

	ledgerFilter := model.LedgerFilter{DivisionIDs: []string{id}}
	attendances, err := s.repos.Ledger.ListAttendances(ctx, ledgerFilter)
	if err != nil {
		return nil, fmt.Errorf("出席記録の取得に失敗しました: %w", err)
	}
	for _, a := range attendances {
		detail.Attendances = append(detail.Attendances, *a)
	}
	absents, err := s.repos.Ledger.ListAbsents(ctx, ledgerFilter)
	if err != nil {
		return nil, fmt.Errorf("欠席記録の取得に失敗しました: %w", err)
	}
	for _, a := range absents {
		detail.Absents = append(detail.Absents, *a)
	}

	ratings, err := s.repos.Ratings.List(ctx, repository.RatingFilter{DivisionID: id})
	if err != nil {
		return nil, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}
	var sum float64
	for _, r := range ratings {
		detail.Ratings = append(detail.Ratings, *r)
		sum += r.Value
	}
	if len(ratings) > 0 {
		detail.AverageRating = report.Round2(sum / float64(len(ratings)))
	}

	performances, err := s.repos.Performances.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("公演記録の取得に失敗しました: %w", err)
	}
	for _, p := range performances {
		detail.Performances = append(detail.Performances, *p)
	}

	requests, err := s.repos.Requests.List(ctx, model.PendingRequestFilter{DivisionID: id})
	if err != nil {
		return nil, fmt.Errorf("申請の取得に失敗しました: %w", err)
	}
	for _, r := range requests {
		detail.PendingRequests = append(detail.PendingRequests, *r)
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	detail.VenueStats, err = s.repos.Divisions.VenueStats(ctx, id, today)
	if err != nil {
		return nil, fmt.Errorf("開催予定の集計に失敗しました: %w", err)
	}
	return detail, nil
}

// Create は部門を作成する。name と role の組が重複する場合は DUPLICATE_DIVISION。
func (s *Service) Create(ctx context.Context, in Input) (*model.Division, error) {
	fields := map[string][]string{}
	if in.Name == nil || *in.Name == "" {
		fields["name"] = []string{"This field is required."}
	}
	if in.Role == nil || *in.Role == "" {
		fields["role"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	d := model.NewDivision(*in.Name, *in.Role)
	d.ID = uuid.New().String()
	d.CreatedAt = s.now()
	in.apply(d, s.text)

	if err := s.repos.Divisions.Create(ctx, d); err != nil {
		if database.IsUniqueViolation(err, "divisions_name_role_key") {
			return nil, model.NewDuplicateDivisionError()
		}
		return nil, fmt.Errorf("部門の作成に失敗しました: %w", err)
	}
	return d, nil
}

// Update は部門を更新する。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Division, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(d, s.text)

	if err := s.repos.Divisions.Update(ctx, d); err != nil {
		if database.IsUniqueViolation(err, "divisions_name_role_key") {
			return nil, model.NewDuplicateDivisionError()
		}
		return nil, fmt.Errorf("部門の更新に失敗しました: %w", err)
	}
	return d, nil
}

// Delete は部門を削除する。申請と出欠記録は連鎖して削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repos.Divisions.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("部門の削除に失敗しました: %w", err)
	}
	slog.Info("部門を削除しました", slog.String("division_id", id))
	return nil
}

// CreateVenue は開催予定と、部門に紐づく初期状態の申請を作成する。
func (s *Service) CreateVenue(ctx context.Context, divisionID string, in venue.Input) (*model.Venue, error) {
	if _, err := s.Get(ctx, divisionID); err != nil {
		return nil, err
	}
	now := s.now()
	v, err := in.Build(now)
	if err != nil {
		return nil, err
	}
	req := &model.PendingRequest{
		ID:         uuid.New().String(),
		VenueID:    v.ID,
		DivisionID: divisionID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repos.Venues.CreateForDivision(ctx, v, req); err != nil {
		return nil, fmt.Errorf("開催予定の作成に失敗しました: %w", err)
	}
	v.DivisionIDs = []string{divisionID}
	return v, nil
}

// RemoveVenue は部門と開催予定の紐付け（申請）を削除する。開催予定自体は残る。
func (s *Service) RemoveVenue(ctx context.Context, divisionID, venueID string) error {
	if _, err := s.Get(ctx, divisionID); err != nil {
		return err
	}
	v, err := s.repos.Venues.FindByID(ctx, venueID)
	if err != nil {
		return fmt.Errorf("開催予定の取得に失敗しました: %w", err)
	}
	if v == nil {
		return model.NewVenueNotFoundError()
	}
	if _, err := s.repos.Requests.DeleteByDivisionAndVenue(ctx, divisionID, venueID); err != nil {
		return fmt.Errorf("紐付けの削除に失敗しました: %w", err)
	}
	return nil
}

// Users は部門の所属ユーザーを返す。
func (s *Service) Users(ctx context.Context, divisionID string) ([]*model.User, error) {
	if _, err := s.Get(ctx, divisionID); err != nil {
		return nil, err
	}
	users, err := s.repos.Users.ListByDivision(ctx, divisionID)
	if err != nil {
		return nil, fmt.Errorf("所属ユーザーの取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Songs は部門の練習曲を返す。
func (s *Service) Songs(ctx context.Context, divisionID string) ([]*model.Song, error) {
	if _, err := s.Get(ctx, divisionID); err != nil {
		return nil, err
	}
	songs, err := s.repos.Songs.List(ctx, repository.SongFilter{DivisionID: divisionID})
	if err != nil {
		return nil, fmt.Errorf("練習曲の取得に失敗しました: %w", err)
	}
	if songs == nil {
		songs = []*model.Song{}
	}
	return songs, nil
}

func setString(dst *string, v *string, text security.Sanitizer) {
	if v == nil {
		return
	}
	if text != nil {
		*dst = text.Sanitize(*v)
		return
	}
	*dst = *v
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
