package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rollcall/internal/model"
)

const activitySelect = `SELECT a.id, a.title, a.description, a.venue_id::text, a.show_poster, a.poster,
	v.date, v.start_time::text, v.end_time::text, v.place, v.role, v.img, v.created_at
	FROM activities a
	LEFT JOIN venues v ON v.id = a.venue_id`

// PostgresActivityRepo はPostgreSQLを使用したアクティビティリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

func scanActivity(row rowScanner) (*model.Activity, error) {
	a := &model.Activity{}
	var (
		venueID, start, end, place, role, img sql.NullString
		date, createdAt                       sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &venueID, &a.ShowPoster, &a.Poster,
		&date, &start, &end, &place, &role, &img, &createdAt); err != nil {
		return nil, err
	}
	if venueID.Valid {
		a.VenueID = &venueID.String
		a.Venue = &model.Venue{
			ID:        venueID.String,
			Date:      date.Time,
			StartTime: start.String,
			Place:     place.String,
			Role:      role.String,
			Img:       img.String,
			CreatedAt: createdAt.Time,
		}
		if end.Valid {
			a.Venue.EndTime = &end.String
		}
	}
	return a, nil
}

// FindByID は指定IDのアクティビティを取得する。見つからない場合はnilを返す。
func (r *PostgresActivityRepo) FindByID(ctx context.Context, id string) (*model.Activity, error) {
	a, err := scanActivity(r.db.QueryRowContext(ctx, activitySelect+` WHERE a.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find activity by ID: %w", err)
	}
	return a, nil
}

// List は全アクティビティを開催日の降順で返す。
func (r *PostgresActivityRepo) List(ctx context.Context) ([]*model.Activity, error) {
	rows, err := r.db.QueryContext(ctx, activitySelect+` ORDER BY v.date DESC NULLS LAST, a.title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var list []*model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return list, nil
}

// Create はアクティビティを作成する。Venueが指定されていれば開催予定も作成する。
func (r *PostgresActivityRepo) Create(ctx context.Context, a *model.Activity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if a.Venue != nil {
		if err := insertVenue(ctx, tx, a.Venue); err != nil {
			return err
		}
		a.VenueID = &a.Venue.ID
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO activities (id, title, description, venue_id, show_poster, poster)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Title, a.Description, nullableString(a.VenueID), a.ShowPoster, a.Poster,
	); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update はアクティビティを更新する。
// Venueが指定され、既存の開催予定があれば更新し、無ければ作成して紐付ける。
func (r *PostgresActivityRepo) Update(ctx context.Context, a *model.Activity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if a.Venue != nil {
		if a.VenueID != nil && *a.VenueID == a.Venue.ID {
			err = updateVenue(ctx, tx, a.Venue)
		} else {
			err = insertVenue(ctx, tx, a.Venue)
			a.VenueID = &a.Venue.ID
		}
		if err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE activities SET title = $2, description = $3, venue_id = $4, show_poster = $5, poster = $6
		 WHERE id = $1`,
		a.ID, a.Title, a.Description, nullableString(a.VenueID), a.ShowPoster, a.Poster,
	); err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByID はアクティビティと紐づく開催予定を削除する。
func (r *PostgresActivityRepo) DeleteByID(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var venueID sql.NullString
	err = tx.QueryRowContext(ctx,
		`DELETE FROM activities WHERE id = $1 RETURNING venue_id::text`, id,
	).Scan(&venueID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	if venueID.Valid {
		if _, err := tx.ExecContext(ctx, `DELETE FROM venues WHERE id = $1`, venueID.String); err != nil {
			return fmt.Errorf("failed to delete activity venue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
