// Package workflow は出欠申請の状態遷移と、遷移に伴う出欠記録の作成を提供する。
//
// 申請は (部門, 開催予定) ごとに1件で、次の2段階で処理される。
//
//	Phase A（本人申告）: 審査依頼 → (T,F,F,·)、自己申告の欠席 → (F,T,T,F) + Absent
//	Phase B（管理者判定）: 承認 → (F,T,T,T) + Attendance(2,2)、却下 → (T,T,F,·)
//
// どちらの遷移も申請行をロックしたトランザクション内で判定と書き込みを行う。
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// 承認時に作成する出席記録のセッション数
const acceptedSessions = 2

// DivisionFinder は部門の存在確認に使う。
type DivisionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Division, error)
}

// VenueFinder は開催予定の存在確認に使う。
type VenueFinder interface {
	FindByID(ctx context.Context, id string) (*model.Venue, error)
}

// UserFinder は申請者の解決に使う。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// Options はワークフローの動作設定。
type Options struct {
	// StrictClaimantLookup がtrueの場合、Phase Aでユーザー名が解決できなければ失敗させる。
	StrictClaimantLookup bool
}

// VenueResponseInput は process_venue_response の入力。
type VenueResponseInput struct {
	VenueID        string
	Reason         string
	Username       string
	ReqAdminReview bool
	ReqAdminAccept bool
	IsUserState    bool
}

// Service は出欠申請ワークフローのサービス層。
type Service struct {
	requests  repository.PendingRequestRepository
	divisions DivisionFinder
	venues    VenueFinder
	users     UserFinder
	metrics   metrics.MetricsCollector
	opts      Options
	now       func() time.Time
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	requests repository.PendingRequestRepository,
	divisions DivisionFinder,
	venues VenueFinder,
	users UserFinder,
	collector metrics.MetricsCollector,
	opts Options,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		requests:  requests,
		divisions: divisions,
		venues:    venues,
		users:     users,
		metrics:   collector,
		opts:      opts,
		now:       time.Now,
	}
}

// ProcessVenueResponse は (部門, 開催予定) の申請を1段階進める。
// IsUserStateがtrueならPhase A、falseならPhase B（管理者のみ）として扱う。
func (s *Service) ProcessVenueResponse(ctx context.Context, actor model.Principal, divisionID string, in VenueResponseInput) (*model.PendingRequest, error) {
	division, err := s.divisions.FindByID(ctx, divisionID)
	if err != nil {
		return nil, fmt.Errorf("部門の取得に失敗しました: %w", err)
	}
	if division == nil {
		return nil, model.NewDivisionNotFoundError()
	}
	venue, err := s.venues.FindByID(ctx, in.VenueID)
	if err != nil {
		return nil, fmt.Errorf("開催予定の取得に失敗しました: %w", err)
	}
	if venue == nil {
		return nil, model.NewVenueNotFoundError()
	}

	if !in.IsUserState {
		if !actor.IsAdmin {
			return nil, model.NewForbiddenError()
		}
		return s.adjudicate(ctx, actor, "phase_b", func(tx repository.RequestTx) (*model.PendingRequest, error) {
			return tx.LockByDivisionAndVenue(ctx, division.ID, venue.ID)
		}, in.ReqAdminAccept)
	}

	claimant, err := s.resolveClaimant(ctx, actor, in.Username)
	if err != nil {
		return nil, err
	}
	return s.selfReport(ctx, division.ID, venue.ID, claimant, in)
}

// resolveClaimant はPhase Aの申請者を解決する。
// ユーザー名が空なら実行者本人。解決できない場合はnilを返し、既存の申請者を維持する。
func (s *Service) resolveClaimant(ctx context.Context, actor model.Principal, username string) (*string, error) {
	if username == "" {
		id := actor.UserID
		return &id, nil
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if s.opts.StrictClaimantLookup {
			return nil, fmt.Errorf("申請者の取得に失敗しました: %w", err)
		}
		slog.Warn("claimant lookup failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if user == nil {
		if s.opts.StrictClaimantLookup {
			return nil, model.NewUserNotFoundError()
		}
		slog.Debug("claimant not found, keeping current claimant", slog.String("username", username))
		return nil, nil
	}
	return &user.ID, nil
}

// selfReport はPhase Aを実行する。管理者判定済みの申請には適用できない。
func (s *Service) selfReport(ctx context.Context, divisionID, venueID string, claimant *string, in VenueResponseInput) (*model.PendingRequest, error) {
	reason := in.Reason
	if reason == "" {
		reason = model.DefaultClaimReason
	}

	var result *model.PendingRequest
	err := s.requests.WithinTx(ctx, func(tx repository.RequestTx) error {
		req, err := tx.LockByDivisionAndVenue(ctx, divisionID, venueID)
		if err != nil {
			return fmt.Errorf("申請の取得に失敗しました: %w", err)
		}
		if req == nil {
			return model.NewRequestNotFoundError()
		}
		if req.AdminCheck {
			return model.NewTransitionRejectedError(req.State())
		}

		if claimant != nil {
			req.UserID = claimant
		}
		req.UpdatedAt = s.now()

		if in.ReqAdminReview {
			req.Pending = true
			req.AdminCheck = false
			req.AdminAccept = false
		} else {
			req.Reason = reason
			req.Pending = false
			req.AdminCheck = true
			req.AdminAccept = true
			req.Attended = false
			if err := tx.InsertAbsent(ctx, &model.Absent{
				ID:         uuid.New().String(),
				VenueID:    venueID,
				DivisionID: divisionID,
				Sessions:   1,
				Reason:     reason,
				CreatedAt:  req.UpdatedAt,
			}); err != nil {
				return fmt.Errorf("欠席記録の作成に失敗しました: %w", err)
			}
		}

		if err := tx.SaveState(ctx, req); err != nil {
			return fmt.Errorf("申請の更新に失敗しました: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		s.recordRejection("phase_a", err)
		return nil, err
	}

	if in.ReqAdminReview {
		s.metrics.RecordTransition("phase_a", "review")
	} else {
		s.metrics.RecordTransition("phase_a", "absent")
		s.metrics.RecordLedgerRows("absent", 1)
	}
	return result, nil
}

// adjudicate はPhase Bを実行する。出席確定済みの申請には適用できない。
func (s *Service) adjudicate(
	ctx context.Context,
	actor model.Principal,
	phase string,
	lock func(tx repository.RequestTx) (*model.PendingRequest, error),
	accept bool,
) (*model.PendingRequest, error) {
	var result *model.PendingRequest
	err := s.requests.WithinTx(ctx, func(tx repository.RequestTx) error {
		req, err := lock(tx)
		if err != nil {
			return fmt.Errorf("申請の取得に失敗しました: %w", err)
		}
		if req == nil {
			return model.NewRequestNotFoundError()
		}
		if req.Attended {
			return model.NewTransitionRejectedError(req.State())
		}

		req.UpdatedAt = s.now()
		req.Pending = !accept
		req.AdminCheck = true
		req.AdminAccept = accept
		if accept {
			req.Attended = true
			if err := tx.InsertAttendance(ctx, &model.Attendance{
				ID:         uuid.New().String(),
				VenueID:    req.VenueID,
				DivisionID: req.DivisionID,
				Sessions:   acceptedSessions,
				Attended:   acceptedSessions,
				CreatedAt:  req.UpdatedAt,
			}); err != nil {
				return fmt.Errorf("出席記録の作成に失敗しました: %w", err)
			}
		}

		if err := tx.SaveState(ctx, req); err != nil {
			return fmt.Errorf("申請の更新に失敗しました: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		s.recordRejection(phase, err)
		return nil, err
	}

	slog.Info("pending request adjudicated",
		slog.String("request_id", result.ID),
		slog.String("admin_id", actor.UserID),
		slog.Bool("accepted", accept),
	)
	if accept {
		s.metrics.RecordTransition(phase, "accept")
		s.metrics.RecordLedgerRows("attendance", 1)
	} else {
		s.metrics.RecordTransition(phase, "reject")
	}
	return result, nil
}

// Approve はIDで指定した申請を承認する。Phase Bの承認と同じ遷移を行う。
func (s *Service) Approve(ctx context.Context, actor model.Principal, requestID string) (*model.PendingRequest, error) {
	return s.decide(ctx, actor, requestID, true)
}

// Reject はIDで指定した申請を却下する。Phase Bの却下と同じ遷移を行う。
func (s *Service) Reject(ctx context.Context, actor model.Principal, requestID string) (*model.PendingRequest, error) {
	return s.decide(ctx, actor, requestID, false)
}

func (s *Service) decide(ctx context.Context, actor model.Principal, requestID string, accept bool) (*model.PendingRequest, error) {
	if !actor.IsAdmin {
		return nil, model.NewForbiddenError()
	}
	return s.adjudicate(ctx, actor, "direct", func(tx repository.RequestTx) (*model.PendingRequest, error) {
		return tx.LockByID(ctx, requestID)
	}, accept)
}

// Reset は申請を初期状態 (F,F,F,F) に戻し、新しい申請サイクルを開始できるようにする。
// 作成済みの出欠記録は変更しない。
func (s *Service) Reset(ctx context.Context, actor model.Principal, requestID string) (*model.PendingRequest, error) {
	if !actor.IsAdmin {
		return nil, model.NewForbiddenError()
	}

	var result *model.PendingRequest
	err := s.requests.WithinTx(ctx, func(tx repository.RequestTx) error {
		req, err := tx.LockByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("申請の取得に失敗しました: %w", err)
		}
		if req == nil {
			return model.NewRequestNotFoundError()
		}
		req.Reset()
		req.UpdatedAt = s.now()
		if err := tx.SaveState(ctx, req); err != nil {
			return fmt.Errorf("申請の更新に失敗しました: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("reset", "success")
	return result, nil
}

func (s *Service) recordRejection(phase string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeTransitionRejected {
		s.metrics.RecordTransition(phase, "rejected")
	}
}
