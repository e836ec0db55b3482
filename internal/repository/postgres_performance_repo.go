package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rollcall/internal/model"
)

// PostgresPerformanceRepo はPostgreSQLを使用した公演リポジトリ。
type PostgresPerformanceRepo struct {
	db *sql.DB
}

// NewPostgresPerformanceRepo はPostgresPerformanceRepoを生成する。
func NewPostgresPerformanceRepo(db *sql.DB) *PostgresPerformanceRepo {
	return &PostgresPerformanceRepo{db: db}
}

// FindByID は指定IDの公演を取得する。見つからない場合はnilを返す。
func (r *PostgresPerformanceRepo) FindByID(ctx context.Context, id string) (*model.Performance, error) {
	list, err := r.query(ctx, `WHERE p.id::text = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// List は公演を返す。divisionIDが空でない場合はその部門に限定する。
func (r *PostgresPerformanceRepo) List(ctx context.Context, divisionID string) ([]*model.Performance, error) {
	if divisionID == "" {
		return r.query(ctx, ``)
	}
	return r.query(ctx, `WHERE p.division_id::text = $1`, divisionID)
}

// query は公演と紐づく開催予定を1回のJOINで取得し、公演ごとにまとめる。
func (r *PostgresPerformanceRepo) query(ctx context.Context, where string, args ...any) ([]*model.Performance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.division_id::text, COALESCE(d.name, ''),
		   v.id::text, v.date, v.start_time::text, v.end_time::text, v.place, v.role, v.img, v.created_at
		 FROM performances p
		 LEFT JOIN divisions d ON d.id = p.division_id
		 LEFT JOIN performance_venues pv ON pv.performance_id = p.id
		 LEFT JOIN venues v ON v.id = pv.venue_id
		 `+where+`
		 ORDER BY p.id, v.date DESC, v.start_time`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list performances: %w", err)
	}
	defer rows.Close()

	var list []*model.Performance
	var current *model.Performance
	for rows.Next() {
		var (
			id, divisionName                string
			divisionID, venueID, start, end sql.NullString
			date, createdAt                 sql.NullTime
			place, role, img                sql.NullString
		)
		if err := rows.Scan(&id, &divisionID, &divisionName,
			&venueID, &date, &start, &end, &place, &role, &img, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan performance: %w", err)
		}
		if current == nil || current.ID != id {
			current = &model.Performance{ID: id, DivisionName: divisionName, VenueIDs: []string{}}
			if divisionID.Valid {
				current.DivisionID = &divisionID.String
			}
			list = append(list, current)
		}
		if !venueID.Valid {
			continue
		}
		v := model.Venue{
			ID:        venueID.String,
			Date:      date.Time,
			StartTime: start.String,
			Place:     place.String,
			Role:      role.String,
			Img:       img.String,
			CreatedAt: createdAt.Time,
		}
		if end.Valid {
			v.EndTime = &end.String
		}
		current.VenueIDs = append(current.VenueIDs, v.ID)
		current.Venues = append(current.Venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate performances: %w", err)
	}
	return list, nil
}

func replacePerformanceVenues(ctx context.Context, tx *sql.Tx, p *model.Performance) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM performance_venues WHERE performance_id = $1`, p.ID); err != nil {
		return fmt.Errorf("failed to clear performance venues: %w", err)
	}
	for _, venueID := range p.VenueIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO performance_venues (performance_id, venue_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			p.ID, venueID,
		); err != nil {
			return fmt.Errorf("failed to insert performance venue: %w", err)
		}
	}
	return nil
}

func (r *PostgresPerformanceRepo) save(ctx context.Context, p *model.Performance, stmt string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt, p.ID, nullableString(p.DivisionID)); err != nil {
		return fmt.Errorf("failed to save performance: %w", err)
	}
	if err := replacePerformanceVenues(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Create は公演と開催予定の紐付けを作成する。
func (r *PostgresPerformanceRepo) Create(ctx context.Context, p *model.Performance) error {
	return r.save(ctx, p, `INSERT INTO performances (id, division_id) VALUES ($1, $2)`)
}

// Update は公演を更新し、開催予定の紐付けを置き換える。
func (r *PostgresPerformanceRepo) Update(ctx context.Context, p *model.Performance) error {
	return r.save(ctx, p, `UPDATE performances SET division_id = $2 WHERE id = $1`)
}

// DeleteByID は公演を削除する。
func (r *PostgresPerformanceRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM performances WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete performance: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PerformanceRepository = (*PostgresPerformanceRepo)(nil)
