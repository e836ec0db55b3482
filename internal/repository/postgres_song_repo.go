package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/rollcall/internal/model"
)

const songSelect = `SELECT s.id, s.title, s.date,
	ARRAY(SELECT ds.division_id::text FROM division_songs ds WHERE ds.song_id = s.id ORDER BY ds.division_id)
	FROM songs s`

// PostgresSongRepo はPostgreSQLを使用した練習曲リポジトリ。
type PostgresSongRepo struct {
	db *sql.DB
}

// NewPostgresSongRepo はPostgresSongRepoを生成する。
func NewPostgresSongRepo(db *sql.DB) *PostgresSongRepo {
	return &PostgresSongRepo{db: db}
}

func scanSong(row rowScanner) (*model.Song, error) {
	s := &model.Song{}
	var divisions pq.StringArray
	if err := row.Scan(&s.ID, &s.Title, &s.Date, &divisions); err != nil {
		return nil, err
	}
	s.DivisionIDs = []string(divisions)
	return s, nil
}

// FindByID は指定IDの曲を取得する。見つからない場合はnilを返す。
func (r *PostgresSongRepo) FindByID(ctx context.Context, id string) (*model.Song, error) {
	s, err := scanSong(r.db.QueryRowContext(ctx, songSelect+` WHERE s.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find song by ID: %w", err)
	}
	return s, nil
}

// List は条件に合う曲を日付の降順で返す。
func (r *PostgresSongRepo) List(ctx context.Context, filter SongFilter) ([]*model.Song, error) {
	var conds []string
	var args []any
	if filter.DivisionID != "" {
		args = append(args, filter.DivisionID)
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM division_songs ds WHERE ds.song_id = s.id AND ds.division_id::text = $%d)`, len(args)))
	}
	if filter.From != nil {
		args = append(args, filter.From.Format(model.DateLayout))
		conds = append(conds, fmt.Sprintf(`s.date >= $%d::date`, len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.Format(model.DateLayout))
		conds = append(conds, fmt.Sprintf(`s.date <= $%d::date`, len(args)))
	}
	query := songSelect
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}

	rows, err := r.db.QueryContext(ctx, query+` ORDER BY s.date DESC, s.title`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer rows.Close()

	var songs []*model.Song
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate songs: %w", err)
	}
	return songs, nil
}

func replaceSongDivisions(ctx context.Context, tx *sql.Tx, song *model.Song) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM division_songs WHERE song_id = $1`, song.ID); err != nil {
		return fmt.Errorf("failed to clear song divisions: %w", err)
	}
	for _, divisionID := range song.DivisionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO division_songs (division_id, song_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			divisionID, song.ID,
		); err != nil {
			return fmt.Errorf("failed to insert song division: %w", err)
		}
	}
	return nil
}

// Create は曲と部門の紐付けを作成する。
func (r *PostgresSongRepo) Create(ctx context.Context, song *model.Song) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO songs (id, title, date) VALUES ($1, $2, $3::date)`,
		song.ID, song.Title, song.Date.Format(model.DateLayout),
	); err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}
	if err := replaceSongDivisions(ctx, tx, song); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は曲を更新し、部門の紐付けを置き換える。
func (r *PostgresSongRepo) Update(ctx context.Context, song *model.Song) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE songs SET title = $2, date = $3::date WHERE id = $1`,
		song.ID, song.Title, song.Date.Format(model.DateLayout),
	); err != nil {
		return fmt.Errorf("failed to update song: %w", err)
	}
	if err := replaceSongDivisions(ctx, tx, song); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByID は曲を削除する。
func (r *PostgresSongRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM songs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete song: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SongRepository = (*PostgresSongRepo)(nil)
