package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
)

const divisionColumns = `d.id, d.name, d.role, d.user_role, d.is_registered, d.is_active, d.value,
	d.show_ratings, d.short_words, d.show_venue, d.title, d.title_desc, d.title_quote,
	d.show_user, d.base_user, d.base_user_modifier, d.created_at`

// PostgresDivisionRepo はPostgreSQLを使用した部門リポジトリ。
type PostgresDivisionRepo struct {
	db *sql.DB
}

// NewPostgresDivisionRepo はPostgresDivisionRepoを生成する。
func NewPostgresDivisionRepo(db *sql.DB) *PostgresDivisionRepo {
	return &PostgresDivisionRepo{db: db}
}

func divisionDest(d *model.Division) []any {
	return []any{
		&d.ID, &d.Name, &d.Role, &d.UserRole, &d.IsRegistered, &d.IsActive, &d.Value,
		&d.ShowRatings, &d.ShortWords, &d.ShowVenue, &d.Title, &d.TitleDesc, &d.TitleQuote,
		&d.ShowUser, &d.BaseUser, &d.BaseUserModifier, &d.CreatedAt,
	}
}

// FindByID は指定IDの部門を取得する。見つからない場合はnilを返す。
func (r *PostgresDivisionRepo) FindByID(ctx context.Context, id string) (*model.Division, error) {
	d := &model.Division{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+divisionColumns+` FROM divisions d WHERE d.id::text = $1`, id,
	).Scan(divisionDest(d)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find division by ID: %w", err)
	}
	return d, nil
}

// List は条件に合う部門を返す。
func (r *PostgresDivisionRepo) List(ctx context.Context, filter model.DivisionFilter) ([]model.DivisionListItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+divisionColumns+`,
		   EXISTS (SELECT 1 FROM user_divisions m WHERE m.division_id = d.id AND m.user_id::text = $1) AS is_joined,
		   (SELECT COUNT(*) FROM pending_requests pr WHERE pr.division_id = d.id),
		   (SELECT COUNT(*) FROM division_songs ds WHERE ds.division_id = d.id),
		   COALESCE((SELECT AVG(rt.value) FROM ratings rt WHERE rt.division_id = d.id), 0)
		 FROM divisions d
		 WHERE ($2 = false OR d.is_active)
		   AND ($3 = '' OR EXISTS (
		     SELECT 1 FROM pending_requests pr WHERE pr.division_id = d.id AND pr.venue_id::text = $3))
		 ORDER BY is_joined DESC, d.name, d.role`,
		filter.ViewerID, filter.ActiveOnly, filter.VenueID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list divisions: %w", err)
	}
	defer rows.Close()

	var items []model.DivisionListItem
	for rows.Next() {
		var item model.DivisionListItem
		dest := append(divisionDest(&item.Division), &item.IsJoined, &item.VenueCount, &item.SongsCount, &item.AverageRating)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan division: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate divisions: %w", err)
	}
	return items, nil
}

// ListByUser は指定ユーザーが所属する部門を返す。
func (r *PostgresDivisionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Division, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+divisionColumns+` FROM divisions d
		 JOIN user_divisions m ON m.division_id = d.id
		 WHERE m.user_id::text = $1
		 ORDER BY d.name, d.role`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user divisions: %w", err)
	}
	defer rows.Close()

	var divisions []*model.Division
	for rows.Next() {
		d := &model.Division{}
		if err := rows.Scan(divisionDest(d)...); err != nil {
			return nil, fmt.Errorf("failed to scan division: %w", err)
		}
		divisions = append(divisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate divisions: %w", err)
	}
	return divisions, nil
}

// Create は部門を作成する。
func (r *PostgresDivisionRepo) Create(ctx context.Context, d *model.Division) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO divisions (id, name, role, user_role, is_registered, is_active, value,
		   show_ratings, short_words, show_venue, title, title_desc, title_quote,
		   show_user, base_user, base_user_modifier, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		d.ID, d.Name, d.Role, d.UserRole, d.IsRegistered, d.IsActive, d.Value,
		d.ShowRatings, d.ShortWords, d.ShowVenue, d.Title, d.TitleDesc, d.TitleQuote,
		d.ShowUser, d.BaseUser, d.BaseUserModifier, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert division: %w", err)
	}
	return nil
}

// Update は部門を更新する。
func (r *PostgresDivisionRepo) Update(ctx context.Context, d *model.Division) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE divisions SET name = $2, role = $3, user_role = $4, is_registered = $5, is_active = $6,
		   value = $7, show_ratings = $8, short_words = $9, show_venue = $10, title = $11,
		   title_desc = $12, title_quote = $13, show_user = $14, base_user = $15, base_user_modifier = $16
		 WHERE id = $1`,
		d.ID, d.Name, d.Role, d.UserRole, d.IsRegistered, d.IsActive, d.Value,
		d.ShowRatings, d.ShortWords, d.ShowVenue, d.Title, d.TitleDesc, d.TitleQuote,
		d.ShowUser, d.BaseUser, d.BaseUserModifier,
	)
	if err != nil {
		return fmt.Errorf("failed to update division: %w", err)
	}
	return nil
}

// DeleteByID は部門を削除する。
func (r *PostgresDivisionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM divisions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete division: %w", err)
	}
	return nil
}

// VenueStats は部門に紐づく開催予定の件数を集計する。
func (r *PostgresDivisionRepo) VenueStats(ctx context.Context, divisionID string, today time.Time) (model.VenueStats, error) {
	var stats model.VenueStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		   COUNT(*) FILTER (WHERE v.date >= $2::date),
		   COUNT(*) FILTER (WHERE v.date < $2::date)
		 FROM pending_requests pr
		 JOIN venues v ON v.id = pr.venue_id
		 WHERE pr.division_id::text = $1`,
		divisionID, today.Format(model.DateLayout),
	).Scan(&stats.Total, &stats.Upcoming, &stats.Past)
	if err != nil {
		return model.VenueStats{}, fmt.Errorf("failed to aggregate venue stats: %w", err)
	}
	return stats, nil
}

// compile-time interface check
var _ DivisionRepository = (*PostgresDivisionRepo)(nil)
