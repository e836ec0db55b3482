package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
)

// PerformanceInput は公演の作成・更新入力。DivisionID に空文字列を指定すると部門を外す。
type PerformanceInput struct {
	DivisionID *string
	VenueIDs   *[]string
}

// ListPerformances は公演を返す。divisionID と venueID は空なら絞り込まない。
func (s *Service) ListPerformances(ctx context.Context, divisionID, venueID string) ([]*model.Performance, error) {
	list, err := s.performances.List(ctx, divisionID)
	if err != nil {
		return nil, fmt.Errorf("公演の取得に失敗しました: %w", err)
	}
	out := make([]*model.Performance, 0, len(list))
	for _, p := range list {
		if venueID == "" || slices.Contains(p.VenueIDs, venueID) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetPerformance は公演を返す。
func (s *Service) GetPerformance(ctx context.Context, id string) (*model.Performance, error) {
	p, err := s.performances.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("公演の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError(model.ErrCodePerformanceNotFound, "Performance")
	}
	return p, nil
}

// CreatePerformance は公演を作成する。
func (s *Service) CreatePerformance(ctx context.Context, in PerformanceInput) (*model.Performance, error) {
	p := &model.Performance{ID: uuid.New().String(), VenueIDs: []string{}}
	if err := s.applyPerformance(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.performances.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("公演の作成に失敗しました: %w", err)
	}
	return s.GetPerformance(ctx, p.ID)
}

// UpdatePerformance は公演を更新する。VenueIDs を指定した場合は紐付けを置き換える。
func (s *Service) UpdatePerformance(ctx context.Context, id string, in PerformanceInput) (*model.Performance, error) {
	p, err := s.GetPerformance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyPerformance(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.performances.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("公演の更新に失敗しました: %w", err)
	}
	return s.GetPerformance(ctx, p.ID)
}

func (s *Service) applyPerformance(ctx context.Context, p *model.Performance, in PerformanceInput) error {
	fields := map[string][]string{}
	if in.DivisionID != nil && *in.DivisionID != "" {
		if err := s.checkDivisions(ctx, "division", []string{*in.DivisionID}, fields); err != nil {
			return err
		}
	}
	if in.VenueIDs != nil {
		if err := s.checkVenues(ctx, "venue", *in.VenueIDs, fields); err != nil {
			return err
		}
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}

	if in.DivisionID != nil {
		if *in.DivisionID == "" {
			p.DivisionID = nil
		} else {
			id := *in.DivisionID
			p.DivisionID = &id
		}
	}
	if in.VenueIDs != nil {
		p.VenueIDs = *in.VenueIDs
	}
	return nil
}

// DeletePerformance は公演を削除する。
func (s *Service) DeletePerformance(ctx context.Context, id string) error {
	if _, err := s.GetPerformance(ctx, id); err != nil {
		return err
	}
	if err := s.performances.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("公演の削除に失敗しました: %w", err)
	}
	return nil
}
