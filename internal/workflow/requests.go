package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/database"
	"github.com/hitoshi/rollcall/internal/model"
)

// RequestInput は申請の作成・更新入力。
type RequestInput struct {
	UserID      *string
	VenueID     string
	DivisionID  string
	Reason      string
	Pending     bool
	AdminCheck  bool
	AdminAccept bool
	Attended    bool
}

// ListRequests は申請一覧を返す。一般ユーザーは自分の申請のみ。
func (s *Service) ListRequests(ctx context.Context, actor model.Principal, filter model.PendingRequestFilter) ([]*model.PendingRequest, error) {
	if !actor.IsAdmin {
		filter.UserID = actor.UserID
	}
	list, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("申請一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// GetRequest は申請を返す。他人の申請は一般ユーザーには存在しないものとして扱う。
func (s *Service) GetRequest(ctx context.Context, actor model.Principal, id string) (*model.PendingRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("申請の取得に失敗しました: %w", err)
	}
	if req == nil || !canSee(actor, req) {
		return nil, model.NewRequestNotFoundError()
	}
	return req, nil
}

func canSee(actor model.Principal, req *model.PendingRequest) bool {
	return actor.IsAdmin || (req.UserID != nil && *req.UserID == actor.UserID)
}

// CreateRequest は申請を作成する。
// 申請者の指定が無ければ実行者本人になる。一般ユーザーは本人の申請のみ作成でき、
// 判定フラグは設定できない。
func (s *Service) CreateRequest(ctx context.Context, actor model.Principal, in RequestInput) (*model.PendingRequest, error) {
	if in.UserID == nil || *in.UserID == "" {
		id := actor.UserID
		in.UserID = &id
	}
	if !actor.CanActFor(*in.UserID) {
		return nil, model.NewFieldError("user", "You can only create requests for yourself.")
	}
	if !actor.IsAdmin {
		in.AdminCheck, in.AdminAccept, in.Attended = false, false, false
	}
	if err := s.checkReferences(ctx, in.DivisionID, in.VenueID); err != nil {
		return nil, err
	}

	now := s.now()
	req := &model.PendingRequest{
		ID:          uuid.New().String(),
		UserID:      in.UserID,
		VenueID:     in.VenueID,
		DivisionID:  in.DivisionID,
		Reason:      in.Reason,
		Pending:     in.Pending,
		AdminCheck:  in.AdminCheck,
		AdminAccept: in.AdminAccept,
		Attended:    in.Attended,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		if database.IsUniqueViolation(err, "pending_requests_division_venue_key") {
			return nil, model.NewDuplicateRequestError()
		}
		return nil, fmt.Errorf("申請の作成に失敗しました: %w", err)
	}
	return req, nil
}

// UpdateRequest は申請を更新する。
// 一般ユーザーは自分の申請の理由のみ変更できる。
func (s *Service) UpdateRequest(ctx context.Context, actor model.Principal, id string, in RequestInput) (*model.PendingRequest, error) {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if actor.IsAdmin {
		if in.DivisionID != "" || in.VenueID != "" {
			if in.DivisionID == "" {
				in.DivisionID = req.DivisionID
			}
			if in.VenueID == "" {
				in.VenueID = req.VenueID
			}
			if err := s.checkReferences(ctx, in.DivisionID, in.VenueID); err != nil {
				return nil, err
			}
			req.DivisionID, req.VenueID = in.DivisionID, in.VenueID
		}
		if in.UserID != nil {
			req.UserID = in.UserID
		}
		req.Pending = in.Pending
		req.AdminCheck = in.AdminCheck
		req.AdminAccept = in.AdminAccept
		req.Attended = in.Attended
	}
	req.Reason = in.Reason
	req.UpdatedAt = s.now()

	if err := s.requests.Update(ctx, req); err != nil {
		if database.IsUniqueViolation(err, "pending_requests_division_venue_key") {
			return nil, model.NewDuplicateRequestError()
		}
		return nil, fmt.Errorf("申請の更新に失敗しました: %w", err)
	}
	return req, nil
}

// DeleteRequest は申請を削除する。
func (s *Service) DeleteRequest(ctx context.Context, actor model.Principal, id string) error {
	if _, err := s.GetRequest(ctx, actor, id); err != nil {
		return err
	}
	if err := s.requests.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("申請の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) checkReferences(ctx context.Context, divisionID, venueID string) error {
	division, err := s.divisions.FindByID(ctx, divisionID)
	if err != nil {
		return fmt.Errorf("部門の取得に失敗しました: %w", err)
	}
	if division == nil {
		return model.NewDivisionNotFoundError()
	}
	venue, err := s.venues.FindByID(ctx, venueID)
	if err != nil {
		return fmt.Errorf("開催予定の取得に失敗しました: %w", err)
	}
	if venue == nil {
		return model.NewVenueNotFoundError()
	}
	return nil
}

// ListPendingVenues は申請者が設定された審査待ちの申請を返す。
func (s *Service) ListPendingVenues(ctx context.Context) ([]*model.PendingRequest, error) {
	list, err := s.requests.ListAwaitingReview(ctx)
	if err != nil {
		return nil, fmt.Errorf("審査待ち申請の取得に失敗しました: %w", err)
	}
	return list, nil
}

// UserVenues は対象ユーザーの所属部門の開催予定を申請状態で分類する。
//
//	new      : 所属部門の (F,F,F) の申請で、開催が始まっているもの
//	pending  : 本人の (T,F,F) の申請
//	accepted : 本人の (F,T,T) の申請
//	rejected : 本人の (T,T,F) の申請
//
// 各分類内で開催予定は重複しない。
func (s *Service) UserVenues(ctx context.Context, userID string) (*model.UserVenues, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	requests, err := s.requests.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("申請一覧の取得に失敗しました: %w", err)
	}
	return partitionVenues(user, requests, s.now()), nil
}

func partitionVenues(user *model.User, requests []*model.PendingRequest, now time.Time) *model.UserVenues {
	// 所属部門の申請が1件でもある開催予定はユーザーに関係する
	associated := make(map[string]bool)
	for _, r := range requests {
		if user.InDivision(r.DivisionID) {
			associated[r.VenueID] = true
		}
	}

	var groups [4]venueGroup
	const (
		groupNew = iota
		groupPending
		groupAccepted
		groupRejected
	)

	for _, r := range requests {
		if !user.InDivision(r.DivisionID) {
			continue
		}
		own := r.UserID != nil && *r.UserID == user.ID
		switch {
		case !r.Pending && !r.AdminCheck && !r.AdminAccept:
			if r.Venue != nil && r.Venue.StartedBy(now) {
				groups[groupNew].add(r, associated[r.VenueID])
			}
		case own && r.Pending && !r.AdminCheck && !r.AdminAccept:
			groups[groupPending].add(r, associated[r.VenueID])
		case own && !r.Pending && r.AdminCheck && r.AdminAccept:
			groups[groupAccepted].add(r, associated[r.VenueID])
		case own && r.Pending && r.AdminCheck && !r.AdminAccept:
			groups[groupRejected].add(r, associated[r.VenueID])
		}
	}

	return &model.UserVenues{
		New:      groups[groupNew].sorted(),
		Pending:  groups[groupPending].sorted(),
		Accepted: groups[groupAccepted].sorted(),
		Rejected: groups[groupRejected].sorted(),
	}
}

// venueGroup は開催予定の重複を除いて集める。
type venueGroup struct {
	seen  map[string]bool
	items []model.VenueWithAssociation
}

func (g *venueGroup) add(r *model.PendingRequest, associated bool) {
	if r.Venue == nil || g.seen[r.VenueID] {
		return
	}
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	g.seen[r.VenueID] = true
	g.items = append(g.items, model.VenueWithAssociation{
		Venue:            *r.Venue,
		RequestID:        r.ID,
		DivisionID:       r.DivisionID,
		IsUserAssociated: associated,
	})
}

// sorted は開催日の降順、開始時刻の昇順に並べて返す。空の場合も非nil。
func (g *venueGroup) sorted() []model.VenueWithAssociation {
	list := g.items
	if list == nil {
		list = []model.VenueWithAssociation{}
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Venue, list[j].Venue
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.StartTime < b.StartTime
	})
	return list
}
