// Package catalog は練習曲・公演・アクティビティの管理を提供する。
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
)

// DivisionFinder は部門の参照に使う。
type DivisionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Division, error)
}

// VenueFinder は開催予定の参照に使う。
type VenueFinder interface {
	FindByID(ctx context.Context, id string) (*model.Venue, error)
}

// Service はカタログ系リソースのサービス層。
type Service struct {
	songs        repository.SongRepository
	performances repository.PerformanceRepository
	activities   repository.ActivityRepository
	divisions    DivisionFinder
	venues       VenueFinder
	richText     security.Sanitizer
	now          func() time.Time
}

// Deps はServiceの依存。
type Deps struct {
	Songs        repository.SongRepository
	Performances repository.PerformanceRepository
	Activities   repository.ActivityRepository
	Divisions    DivisionFinder
	Venues       VenueFinder
	// RichText はアクティビティ説明の無害化に使う。nilの場合は無害化しない。
	RichText security.Sanitizer
}

// NewService はServiceを生成する。
func NewService(d Deps) *Service {
	rich := d.RichText
	if rich == nil {
		rich = security.Nop{}
	}
	return &Service{
		songs:        d.Songs,
		performances: d.Performances,
		activities:   d.Activities,
		divisions:    d.Divisions,
		venues:       d.Venues,
		richText:     rich,
		now:          time.Now,
	}
}

// checkDivisions は部門IDが全て存在するかを確認し、無効なIDをフィールドエラーに積む。
func (s *Service) checkDivisions(ctx context.Context, field string, ids []string, fields map[string][]string) error {
	for _, id := range ids {
		d, err := s.divisions.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("部門の取得に失敗しました: %w", err)
		}
		if d == nil {
			fields[field] = append(fields[field], invalidPK(id))
		}
	}
	return nil
}

func (s *Service) checkVenues(ctx context.Context, field string, ids []string, fields map[string][]string) error {
	for _, id := range ids {
		v, err := s.venues.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("開催予定の取得に失敗しました: %w", err)
		}
		if v == nil {
			fields[field] = append(fields[field], invalidPK(id))
		}
	}
	return nil
}

func invalidPK(id string) string {
	return fmt.Sprintf("Invalid pk %q - object does not exist.", id)
}
