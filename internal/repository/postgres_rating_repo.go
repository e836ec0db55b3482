package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/rollcall/internal/model"
)

const ratingSelect = `SELECT r.id, r.user_id::text, r.division_id, r.value, r.created_at, r.updated_at,
	d.name, COALESCE(u.username, '')
	FROM ratings r
	JOIN divisions d ON d.id = r.division_id
	LEFT JOIN users u ON u.id = r.user_id`

// PostgresRatingRepo はPostgreSQLを使用した評価リポジトリ。
type PostgresRatingRepo struct {
	db *sql.DB
}

// NewPostgresRatingRepo はPostgresRatingRepoを生成する。
func NewPostgresRatingRepo(db *sql.DB) *PostgresRatingRepo {
	return &PostgresRatingRepo{db: db}
}

func scanRating(row rowScanner) (*model.Rating, error) {
	rt := &model.Rating{}
	var userID sql.NullString
	if err := row.Scan(&rt.ID, &userID, &rt.DivisionID, &rt.Value, &rt.CreatedAt, &rt.UpdatedAt,
		&rt.DivisionName, &rt.Username); err != nil {
		return nil, err
	}
	if userID.Valid {
		rt.UserID = &userID.String
	}
	return rt, nil
}

// FindByID は指定IDの評価を取得する。見つからない場合はnilを返す。
func (r *PostgresRatingRepo) FindByID(ctx context.Context, id string) (*model.Rating, error) {
	rt, err := scanRating(r.db.QueryRowContext(ctx, ratingSelect+` WHERE r.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rating by ID: %w", err)
	}
	return rt, nil
}

// List は条件に合う評価を更新日時の降順で返す。
func (r *PostgresRatingRepo) List(ctx context.Context, filter RatingFilter) ([]*model.Rating, error) {
	var conds []string
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("r.user_id::text = $%d", len(args)))
	}
	if filter.DivisionID != "" {
		args = append(args, filter.DivisionID)
		conds = append(conds, fmt.Sprintf("r.division_id::text = $%d", len(args)))
	}
	query := ratingSelect
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}

	rows, err := r.db.QueryContext(ctx, query+` ORDER BY r.updated_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	var list []*model.Rating
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		list = append(list, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}
	return list, nil
}

// Upsert は (user, division) の評価を作成または更新する。
// 既存行がある場合はそのIDと作成日時をratingに反映する。
func (r *PostgresRatingRepo) Upsert(ctx context.Context, rt *model.Rating) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO ratings (id, user_id, division_id, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT ratings_user_division_key
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		rt.ID, nullableString(rt.UserID), rt.DivisionID, rt.Value, rt.CreatedAt, rt.UpdatedAt,
	).Scan(&rt.ID, &rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// Update は評価を更新する。
func (r *PostgresRatingRepo) Update(ctx context.Context, rt *model.Rating) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ratings SET division_id = $2, value = $3, updated_at = $4 WHERE id = $1`,
		rt.ID, rt.DivisionID, rt.Value, rt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return nil
}

// DeleteByID は評価を削除する。
func (r *PostgresRatingRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ratings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete rating: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RatingRepository = (*PostgresRatingRepo)(nil)
