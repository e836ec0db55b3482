package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/rollcall/internal/model"
)

// ledgerJoin は出欠記録 l に開催予定と部門名を結合する。
const ledgerJoin = `
	JOIN venues v ON v.id = l.venue_id
	JOIN divisions d ON d.id = l.division_id`

const ledgerVenueColumns = `v.date, v.start_time::text, v.end_time::text, v.place, v.role, d.name`

// PostgresLedgerRepo はPostgreSQLを使用した出欠記録リポジトリ。
type PostgresLedgerRepo struct {
	db *sql.DB
}

// NewPostgresLedgerRepo はPostgresLedgerRepoを生成する。
func NewPostgresLedgerRepo(db *sql.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

// ledgerWhere はLedgerFilterからWHERE句と引数を組み立てる。
func ledgerWhere(filter model.LedgerFilter, withReason bool) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.VenueID != "" {
		add("l.venue_id::text = $%d", filter.VenueID)
	}
	if len(filter.DivisionIDs) > 0 {
		add("l.division_id::text = ANY($%d)", pq.Array(filter.DivisionIDs))
	}
	if withReason && filter.Reason != "" {
		add("l.reason = $%d", filter.Reason)
	}
	if filter.From != nil {
		add("v.date >= $%d::date", filter.From.Format(model.DateLayout))
	}
	if filter.To != nil {
		add("v.date <= $%d::date", filter.To.Format(model.DateLayout))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func ledgerVenue(venueID string, end sql.NullString, v *model.Venue) *model.Venue {
	v.ID = venueID
	if end.Valid {
		v.EndTime = &end.String
	}
	return v
}

func scanAttendance(row rowScanner) (*model.Attendance, error) {
	a := &model.Attendance{}
	v := &model.Venue{}
	var end sql.NullString
	err := row.Scan(&a.ID, &a.VenueID, &a.DivisionID, &a.Sessions, &a.Attended, &a.CreatedAt,
		&v.Date, &v.StartTime, &end, &v.Place, &v.Role, &a.DivisionName)
	if err != nil {
		return nil, err
	}
	a.Venue = ledgerVenue(a.VenueID, end, v)
	return a, nil
}

func scanAbsent(row rowScanner) (*model.Absent, error) {
	a := &model.Absent{}
	v := &model.Venue{}
	var end sql.NullString
	err := row.Scan(&a.ID, &a.VenueID, &a.DivisionID, &a.Sessions, &a.Attended, &a.Reason, &a.CreatedAt,
		&v.Date, &v.StartTime, &end, &v.Place, &v.Role, &a.DivisionName)
	if err != nil {
		return nil, err
	}
	a.Venue = ledgerVenue(a.VenueID, end, v)
	return a, nil
}

const attendanceSelect = `SELECT l.id, l.venue_id, l.division_id, l.sessions, l.attendance, l.created_at, ` +
	ledgerVenueColumns + ` FROM attendances l` + ledgerJoin

const absentSelect = `SELECT l.id, l.venue_id, l.division_id, l.sessions, l.attendance, l.reason, l.created_at, ` +
	ledgerVenueColumns + ` FROM absents l` + ledgerJoin

// FindAttendance は指定IDの出席記録を取得する。見つからない場合はnilを返す。
func (r *PostgresLedgerRepo) FindAttendance(ctx context.Context, id string) (*model.Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, attendanceSelect+` WHERE l.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance by ID: %w", err)
	}
	return a, nil
}

// ListAttendances は条件に合う出席記録を開催日の降順で返す。
func (r *PostgresLedgerRepo) ListAttendances(ctx context.Context, filter model.LedgerFilter) ([]*model.Attendance, error) {
	where, args := ledgerWhere(filter, false)
	rows, err := r.db.QueryContext(ctx, attendanceSelect+where+` ORDER BY v.date DESC, v.start_time, l.created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendances: %w", err)
	}
	defer rows.Close()

	var list []*model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendances: %w", err)
	}
	return list, nil
}

func insertAttendance(ctx context.Context, db execer, a *model.Attendance) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO attendances (id, venue_id, division_id, sessions, attendance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.VenueID, a.DivisionID, a.Sessions, a.Attended, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	return nil
}

// CreateAttendances は出席記録をまとめて作成する。
func (r *PostgresLedgerRepo) CreateAttendances(ctx context.Context, attendances []*model.Attendance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range attendances {
		if err := insertAttendance(ctx, tx, a); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateAttendance は出席記録を更新する。
func (r *PostgresLedgerRepo) UpdateAttendance(ctx context.Context, a *model.Attendance) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE attendances SET venue_id = $2, division_id = $3, sessions = $4, attendance = $5 WHERE id = $1`,
		a.ID, a.VenueID, a.DivisionID, a.Sessions, a.Attended,
	)
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	return nil
}

// DeleteAttendance は出席記録を削除する。
func (r *PostgresLedgerRepo) DeleteAttendance(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attendances WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	return nil
}

// FindAbsent は指定IDの欠席記録を取得する。見つからない場合はnilを返す。
func (r *PostgresLedgerRepo) FindAbsent(ctx context.Context, id string) (*model.Absent, error) {
	a, err := scanAbsent(r.db.QueryRowContext(ctx, absentSelect+` WHERE l.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find absent by ID: %w", err)
	}
	return a, nil
}

// ListAbsents は条件に合う欠席記録を開催日の降順で返す。
func (r *PostgresLedgerRepo) ListAbsents(ctx context.Context, filter model.LedgerFilter) ([]*model.Absent, error) {
	where, args := ledgerWhere(filter, true)
	rows, err := r.db.QueryContext(ctx, absentSelect+where+` ORDER BY v.date DESC, v.start_time, l.created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list absents: %w", err)
	}
	defer rows.Close()

	var list []*model.Absent
	for rows.Next() {
		a, err := scanAbsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan absent: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate absents: %w", err)
	}
	return list, nil
}

func insertAbsent(ctx context.Context, db execer, a *model.Absent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO absents (id, venue_id, division_id, sessions, attendance, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.VenueID, a.DivisionID, a.Sessions, a.Attended, a.Reason, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert absent: %w", err)
	}
	return nil
}

// CreateAbsent は欠席記録を作成する。
func (r *PostgresLedgerRepo) CreateAbsent(ctx context.Context, a *model.Absent) error {
	return insertAbsent(ctx, r.db, a)
}

// UpdateAbsent は欠席記録を更新する。
func (r *PostgresLedgerRepo) UpdateAbsent(ctx context.Context, a *model.Absent) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE absents SET venue_id = $2, division_id = $3, sessions = $4, attendance = $5, reason = $6
		 WHERE id = $1`,
		a.ID, a.VenueID, a.DivisionID, a.Sessions, a.Attended, a.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to update absent: %w", err)
	}
	return nil
}

// DeleteAbsent は欠席記録を削除する。
func (r *PostgresLedgerRepo) DeleteAbsent(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM absents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete absent: %w", err)
	}
	return nil
}

// MonthlyAttendance は since 以降の出席数を (月, 部門名) ごとに合計する。
func (r *PostgresLedgerRepo) MonthlyAttendance(ctx context.Context, since time.Time) ([]MonthlyAttendanceRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date_trunc('month', v.date)::date AS month, d.name, COALESCE(SUM(l.attendance), 0)
		 FROM attendances l`+ledgerJoin+`
		 WHERE v.date >= $1::date
		 GROUP BY month, d.name
		 ORDER BY month, d.name`,
		since.Format(model.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly attendance: %w", err)
	}
	defer rows.Close()

	var result []MonthlyAttendanceRow
	for rows.Next() {
		var row MonthlyAttendanceRow
		if err := rows.Scan(&row.Month, &row.DivisionName, &row.Attended); err != nil {
			return nil, fmt.Errorf("failed to scan monthly attendance: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monthly attendance: %w", err)
	}
	return result, nil
}

// TopAttendees は所属部門の出席数合計が多いユーザーを返す。
func (r *PostgresLedgerRepo) TopAttendees(ctx context.Context, limit int) ([]AttendeeTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.fname, u.lname, COALESCE(SUM(a.attendance), 0) AS total
		 FROM users u
		 JOIN user_divisions m ON m.user_id = u.id
		 JOIN attendances a ON a.division_id = m.division_id
		 WHERE u.is_active
		 GROUP BY u.id, u.username, u.fname, u.lname
		 ORDER BY total DESC, u.username
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rank attendees: %w", err)
	}
	defer rows.Close()

	var result []AttendeeTotal
	for rows.Next() {
		var t AttendeeTotal
		if err := rows.Scan(&t.User.ID, &t.User.Username, &t.User.FName, &t.User.LName, &t.Attended); err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendees: %w", err)
	}
	return result, nil
}

// Totals は出席数合計と、出席・欠席を合わせたセッション数合計を返す。
func (r *PostgresLedgerRepo) Totals(ctx context.Context) (int, int, error) {
	var attended, sessions int
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COALESCE(SUM(attendance), 0) FROM attendances),
		   (SELECT COALESCE(SUM(sessions), 0) FROM attendances) +
		   (SELECT COALESCE(SUM(sessions), 0) FROM absents)`,
	).Scan(&attended, &sessions)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate ledger totals: %w", err)
	}
	return attended, sessions, nil
}

// compile-time interface check
var _ LedgerRepository = (*PostgresLedgerRepo)(nil)
