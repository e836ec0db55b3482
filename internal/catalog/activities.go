package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/venue"
)

// ActivityInput はアクティビティの作成・更新入力。
// Venue を指定すると開催予定も同時に作成または更新する。
type ActivityInput struct {
	Title       *string
	Description *string
	ShowPoster  *bool
	Poster      *string
	Venue       *venue.Input
}

// ListActivities はアクティビティを返す。
func (s *Service) ListActivities(ctx context.Context) ([]*model.Activity, error) {
	list, err := s.activities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.Activity{}
	}
	return list, nil
}

// GetActivity はアクティビティを返す。
func (s *Service) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	a, err := s.activities.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewNotFoundError(model.ErrCodeActivityNotFound, "Activity")
	}
	return a, nil
}

// CreateActivity はアクティビティを作成する。title は必須。
func (s *Service) CreateActivity(ctx context.Context, in ActivityInput) (*model.Activity, error) {
	if in.Title == nil || *in.Title == "" {
		return nil, model.NewFieldError("title", "This field is required.")
	}
	a := &model.Activity{ID: uuid.New().String()}
	if in.Venue != nil {
		v, err := in.Venue.Build(s.now())
		if err != nil {
			return nil, err
		}
		a.Venue = v
	}
	s.applyActivity(a, in)

	if err := s.activities.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("アクティビティの作成に失敗しました: %w", err)
	}
	return a, nil
}

// UpdateActivity はアクティビティを更新する。
// 既存の開催予定があれば更新し、無ければ新しく作成して紐付ける。
func (s *Service) UpdateActivity(ctx context.Context, id string, in ActivityInput) (*model.Activity, error) {
	a, err := s.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Venue != nil {
		if a.Venue != nil {
			if err := in.Venue.Apply(a.Venue); err != nil {
				return nil, err
			}
		} else {
			v, err := in.Venue.Build(s.now())
			if err != nil {
				return nil, err
			}
			a.Venue = v
		}
	} else {
		// 開催予定を変更しない場合はリポジトリに渡さない
		a.Venue = nil
	}
	s.applyActivity(a, in)

	if err := s.activities.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("アクティビティの更新に失敗しました: %w", err)
	}
	return s.GetActivity(ctx, id)
}

func (s *Service) applyActivity(a *model.Activity, in ActivityInput) {
	if in.Title != nil {
		a.Title = *in.Title
	}
	if in.Description != nil {
		a.Description = s.richText.Sanitize(*in.Description)
	}
	if in.ShowPoster != nil {
		a.ShowPoster = *in.ShowPoster
	}
	if in.Poster != nil {
		a.Poster = *in.Poster
	}
}

// DeleteActivity はアクティビティと紐づく開催予定を削除する。
func (s *Service) DeleteActivity(ctx context.Context, id string) error {
	if _, err := s.GetActivity(ctx, id); err != nil {
		return err
	}
	if err := s.activities.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("アクティビティの削除に失敗しました: %w", err)
	}
	return nil
}
