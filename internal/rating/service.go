// Package rating は部門評価のドメインロジックを提供する。
package rating

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// DivisionFinder は部門の存在確認インターフェース。
type DivisionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Division, error)
}

// Query は一覧の絞り込み条件。
type Query struct {
	UserID     string
	DivisionID string
	// Mine が true の場合は呼び出し元の評価のみ返す。未認証では無視する。
	Mine bool
}

// Input は評価の作成・更新入力。
type Input struct {
	DivisionID *string
	Value      *float64
}

// Service は評価のサービス層。
type Service struct {
	ratings   repository.RatingRepository
	divisions DivisionFinder
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(ratings repository.RatingRepository, divisions DivisionFinder) *Service {
	return &Service{ratings: ratings, divisions: divisions, now: time.Now}
}

// IsOwner は actor が評価の作成者かを返す。actor が nil なら false。
func IsOwner(r *model.Rating, actor *model.Principal) bool {
	return actor != nil && r.UserID != nil && *r.UserID == actor.UserID
}

// List は評価を返す。
func (s *Service) List(ctx context.Context, actor *model.Principal, q Query) ([]*model.Rating, error) {
	filter := repository.RatingFilter{UserID: q.UserID, DivisionID: q.DivisionID}
	if q.Mine && actor != nil {
		filter.UserID = actor.UserID
	}
	list, err := s.ratings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.Rating{}
	}
	return list, nil
}

// Get は評価を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Rating, error) {
	r, err := s.ratings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}
	if r == nil {
		return nil, model.NewNotFoundError(model.ErrCodeRatingNotFound, "Rating")
	}
	return r, nil
}

// Create は actor の (user, division) 評価を作成し、既にあれば値を上書きする。
func (s *Service) Create(ctx context.Context, actor model.Principal, in Input) (*model.Rating, error) {
	fields := map[string][]string{}
	if in.DivisionID == nil || *in.DivisionID == "" {
		fields["division"] = []string{"This field is required."}
	}
	if in.Value == nil {
		fields["value"] = []string{"This field is required."}
	} else if msg := checkValue(*in.Value); msg != "" {
		fields["value"] = []string{msg}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}
	if err := s.requireDivision(ctx, *in.DivisionID); err != nil {
		return nil, err
	}

	now := s.now()
	userID := actor.UserID
	r := &model.Rating{
		ID:         uuid.New().String(),
		UserID:     &userID,
		DivisionID: *in.DivisionID,
		Value:      *in.Value,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// 既存の評価がある場合、IDと作成日時はリポジトリが既存の値で上書きする
	if err := s.ratings.Upsert(ctx, r); err != nil {
		return nil, fmt.Errorf("評価の保存に失敗しました: %w", err)
	}
	return r, nil
}

// Update は評価を更新する。作成者か管理者のみ。
func (s *Service) Update(ctx context.Context, actor model.Principal, id string, in Input) (*model.Rating, error) {
	r, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Value != nil {
		if msg := checkValue(*in.Value); msg != "" {
			return nil, model.NewFieldError("value", msg)
		}
		r.Value = *in.Value
	}
	if in.DivisionID != nil && *in.DivisionID != r.DivisionID {
		if err := s.requireDivision(ctx, *in.DivisionID); err != nil {
			return nil, err
		}
		r.DivisionID = *in.DivisionID
	}
	r.UpdatedAt = s.now()

	if err := s.ratings.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}
	return r, nil
}

// Delete は評価を削除する。作成者か管理者のみ。
func (s *Service) Delete(ctx context.Context, actor model.Principal, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.ratings.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("評価の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, actor model.Principal, id string) (*model.Rating, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !IsOwner(r, &actor) {
		return nil, model.NewForbiddenError()
	}
	return r, nil
}

func (s *Service) requireDivision(ctx context.Context, id string) error {
	d, err := s.divisions.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("部門の取得に失敗しました: %w", err)
	}
	if d == nil {
		return model.NewFieldError("division", fmt.Sprintf("Invalid pk %q - object does not exist.", id))
	}
	return nil
}

func checkValue(v float64) string {
	switch {
	case v < model.RatingMin:
		return "Ensure this value is greater than or equal to 1.0."
	case v > model.RatingMax:
		return "Ensure this value is less than or equal to 5.0."
	}
	return ""
}
