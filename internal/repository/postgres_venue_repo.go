package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/rollcall/internal/model"
)

const venueColumns = `v.id, v.date, v.start_time::text, v.end_time::text, v.place, v.role, v.img, v.created_at,
	ARRAY(SELECT pr.division_id::text FROM pending_requests pr WHERE pr.venue_id = v.id ORDER BY pr.division_id)`

// PostgresVenueRepo はPostgreSQLを使用した開催予定リポジトリ。
type PostgresVenueRepo struct {
	db *sql.DB
}

// NewPostgresVenueRepo はPostgresVenueRepoを生成する。
func NewPostgresVenueRepo(db *sql.DB) *PostgresVenueRepo {
	return &PostgresVenueRepo{db: db}
}

func scanVenue(row rowScanner) (*model.Venue, error) {
	v := &model.Venue{}
	var end sql.NullString
	var divisions pq.StringArray
	if err := row.Scan(&v.ID, &v.Date, &v.StartTime, &end, &v.Place, &v.Role, &v.Img, &v.CreatedAt, &divisions); err != nil {
		return nil, err
	}
	if end.Valid {
		v.EndTime = &end.String
	}
	v.DivisionIDs = []string(divisions)
	return v, nil
}

// nullableString は空の*stringをNULLとして渡す。
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// FindByID は指定IDの開催予定を取得する。見つからない場合はnilを返す。
func (r *PostgresVenueRepo) FindByID(ctx context.Context, id string) (*model.Venue, error) {
	v, err := scanVenue(r.db.QueryRowContext(ctx,
		`SELECT `+venueColumns+` FROM venues v WHERE v.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find venue by ID: %w", err)
	}
	return v, nil
}

// List は条件に合う開催予定を返す。
func (r *PostgresVenueRepo) List(ctx context.Context, filter model.VenueFilter) ([]*model.Venue, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DivisionID != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM pending_requests pr
			WHERE pr.venue_id = v.id AND pr.division_id::text = `+arg(filter.DivisionID)+`)`)
	}
	if filter.From != nil {
		conds = append(conds, `v.date >= `+arg(filter.From.Format(model.DateLayout))+`::date`)
	}
	if filter.To != nil {
		conds = append(conds, `v.date <= `+arg(filter.To.Format(model.DateLayout))+`::date`)
	}
	if filter.WithDivision {
		conds = append(conds, `EXISTS (SELECT 1 FROM pending_requests pr WHERE pr.venue_id = v.id)`)
	}
	if len(filter.MemberIDs) > 0 {
		conds = append(conds, `EXISTS (SELECT 1 FROM pending_requests pr
			JOIN user_divisions m ON m.division_id = pr.division_id
			WHERE pr.venue_id = v.id AND m.user_id::text = ANY(`+arg(pq.Array(filter.MemberIDs))+`))`)
	}

	query := `SELECT ` + venueColumns + ` FROM venues v`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	if filter.Ascending {
		query += ` ORDER BY v.date, v.start_time`
	} else {
		query += ` ORDER BY v.date DESC, v.start_time`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	defer rows.Close()

	var venues []*model.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate venues: %w", err)
	}
	return venues, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertVenue(ctx context.Context, db execer, v *model.Venue) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO venues (id, date, start_time, end_time, place, role, img, created_at)
		 VALUES ($1, $2::date, $3::time, $4::time, $5, $6, $7, $8)`,
		v.ID, v.Date.Format(model.DateLayout), v.StartTime, nullableString(v.EndTime),
		v.Place, v.Role, v.Img, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert venue: %w", err)
	}
	return nil
}

func updateVenue(ctx context.Context, db execer, v *model.Venue) error {
	_, err := db.ExecContext(ctx,
		`UPDATE venues SET date = $2::date, start_time = $3::time, end_time = $4::time,
		   place = $5, role = $6, img = $7
		 WHERE id = $1`,
		v.ID, v.Date.Format(model.DateLayout), v.StartTime, nullableString(v.EndTime),
		v.Place, v.Role, v.Img,
	)
	if err != nil {
		return fmt.Errorf("failed to update venue: %w", err)
	}
	return nil
}

// Create は開催予定を作成する。
func (r *PostgresVenueRepo) Create(ctx context.Context, v *model.Venue) error {
	return insertVenue(ctx, r.db, v)
}

// CreateForDivision は開催予定と初期状態の申請を同一トランザクションで作成する。
func (r *PostgresVenueRepo) CreateForDivision(ctx context.Context, v *model.Venue, req *model.PendingRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertVenue(ctx, tx, v); err != nil {
		return err
	}
	if err := insertPendingRequest(ctx, tx, req); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は開催予定を更新する。
func (r *PostgresVenueRepo) Update(ctx context.Context, v *model.Venue) error {
	return updateVenue(ctx, r.db, v)
}

// DeleteByID は開催予定を削除する。申請と出欠記録はCASCADE削除される。
func (r *PostgresVenueRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM venues WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete venue: %w", err)
	}
	return nil
}

// compile-time interface check
var _ VenueRepository = (*PostgresVenueRepo)(nil)
