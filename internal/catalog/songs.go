package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// SongInput は練習曲の作成・更新入力。
type SongInput struct {
	Title       *string
	Date        *string
	DivisionIDs *[]string
}

// SongQuery は一覧のクエリ条件。日付は YYYY-MM-DD。
type SongQuery struct {
	DivisionID string
	StartDate  string
	EndDate    string
}

// ListSongs は練習曲を日付の降順で返す。
func (s *Service) ListSongs(ctx context.Context, q SongQuery) ([]*model.Song, error) {
	filter := repository.SongFilter{DivisionID: q.DivisionID}
	if q.StartDate != "" {
		t, err := model.ParseDate(q.StartDate)
		if err != nil {
			return nil, model.NewInvalidDateError()
		}
		filter.From = &t
	}
	if q.EndDate != "" {
		t, err := model.ParseDate(q.EndDate)
		if err != nil {
			return nil, model.NewInvalidDateError()
		}
		filter.To = &t
	}

	songs, err := s.songs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("練習曲の取得に失敗しました: %w", err)
	}
	if songs == nil {
		songs = []*model.Song{}
	}
	return songs, nil
}

// GetSong は練習曲を返す。
func (s *Service) GetSong(ctx context.Context, id string) (*model.Song, error) {
	song, err := s.songs.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("練習曲の取得に失敗しました: %w", err)
	}
	if song == nil {
		return nil, model.NewNotFoundError(model.ErrCodeSongNotFound, "Song")
	}
	return song, nil
}

// CreateSong は練習曲を作成する。title と date は必須。
func (s *Service) CreateSong(ctx context.Context, in SongInput) (*model.Song, error) {
	fields := map[string][]string{}
	if in.Title == nil || *in.Title == "" {
		fields["title"] = []string{"This field is required."}
	}
	if in.Date == nil {
		fields["date"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	song := &model.Song{ID: uuid.New().String(), DivisionIDs: []string{}}
	if err := s.applySong(ctx, song, in); err != nil {
		return nil, err
	}
	if err := s.songs.Create(ctx, song); err != nil {
		return nil, fmt.Errorf("練習曲の作成に失敗しました: %w", err)
	}
	return song, nil
}

// UpdateSong は練習曲を更新する。DivisionIDs を指定した場合は紐付けを置き換える。
func (s *Service) UpdateSong(ctx context.Context, id string, in SongInput) (*model.Song, error) {
	song, err := s.GetSong(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applySong(ctx, song, in); err != nil {
		return nil, err
	}
	if err := s.songs.Update(ctx, song); err != nil {
		return nil, fmt.Errorf("練習曲の更新に失敗しました: %w", err)
	}
	return song, nil
}

func (s *Service) applySong(ctx context.Context, song *model.Song, in SongInput) error {
	fields := map[string][]string{}
	if in.Date != nil {
		if d, err := model.ParseDate(*in.Date); err != nil {
			fields["date"] = []string{"Date has wrong format. Use one of these formats instead: YYYY-MM-DD."}
		} else {
			song.Date = d
		}
	}
	if in.DivisionIDs != nil {
		if err := s.checkDivisions(ctx, "divisions", *in.DivisionIDs, fields); err != nil {
			return err
		}
		song.DivisionIDs = *in.DivisionIDs
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	if in.Title != nil {
		song.Title = *in.Title
	}
	return nil
}

// DeleteSong は練習曲を削除する。
func (s *Service) DeleteSong(ctx context.Context, id string) error {
	if _, err := s.GetSong(ctx, id); err != nil {
		return err
	}
	if err := s.songs.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("練習曲の削除に失敗しました: %w", err)
	}
	return nil
}

// SongDivisions は練習曲を練習した部門を返す。
func (s *Service) SongDivisions(ctx context.Context, id string) ([]*model.Division, error) {
	song, err := s.GetSong(ctx, id)
	if err != nil {
		return nil, err
	}
	divisions := make([]*model.Division, 0, len(song.DivisionIDs))
	for _, divisionID := range song.DivisionIDs {
		d, err := s.divisions.FindByID(ctx, divisionID)
		if err != nil {
			return nil, fmt.Errorf("部門の取得に失敗しました: %w", err)
		}
		if d != nil {
			divisions = append(divisions, d)
		}
	}
	return divisions, nil
}
