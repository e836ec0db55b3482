package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/rollcall/internal/model"
)

const requestColumns = `pr.id, pr.user_id::text, pr.venue_id, pr.division_id, pr.reason,
	pr.pending, pr.admin_check, pr.admin_accept, pr.attended, pr.created_at, pr.updated_at`

// requestDetailSelect は申請に申請者・部門・開催予定の表示用情報を結合する。
const requestDetailSelect = `SELECT ` + requestColumns + `,
	u.username, u.fname, u.lname, d.name, d.role,
	v.date, v.start_time::text, v.end_time::text, v.place, v.role
	FROM pending_requests pr
	JOIN divisions d ON d.id = pr.division_id
	JOIN venues v ON v.id = pr.venue_id
	LEFT JOIN users u ON u.id = pr.user_id`

// PostgresPendingRequestRepo はPostgreSQLを使用した出欠申請リポジトリ。
type PostgresPendingRequestRepo struct {
	db *sql.DB
}

// NewPostgresPendingRequestRepo はPostgresPendingRequestRepoを生成する。
func NewPostgresPendingRequestRepo(db *sql.DB) *PostgresPendingRequestRepo {
	return &PostgresPendingRequestRepo{db: db}
}

func requestDest(p *model.PendingRequest, userID *sql.NullString) []any {
	return []any{
		&p.ID, userID, &p.VenueID, &p.DivisionID, &p.Reason,
		&p.Pending, &p.AdminCheck, &p.AdminAccept, &p.Attended, &p.CreatedAt, &p.UpdatedAt,
	}
}

func scanRequest(row rowScanner) (*model.PendingRequest, error) {
	p := &model.PendingRequest{}
	var userID sql.NullString
	if err := row.Scan(requestDest(p, &userID)...); err != nil {
		return nil, err
	}
	if userID.Valid {
		p.UserID = &userID.String
	}
	return p, nil
}

func scanRequestDetail(row rowScanner) (*model.PendingRequest, error) {
	p := &model.PendingRequest{}
	var userID, username, fname, lname, end sql.NullString
	v := &model.Venue{}
	dest := append(requestDest(p, &userID),
		&username, &fname, &lname, &p.DivisionName, &p.DivisionRole,
		&v.Date, &v.StartTime, &end, &v.Place, &v.Role,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if userID.Valid {
		p.UserID = &userID.String
		p.Claimant = &model.User{
			ID:       userID.String,
			Username: username.String,
			FName:    fname.String,
			LName:    lname.String,
		}
	}
	v.ID = p.VenueID
	if end.Valid {
		v.EndTime = &end.String
	}
	p.Venue = v
	return p, nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresPendingRequestRepo) FindByID(ctx context.Context, id string) (*model.PendingRequest, error) {
	p, err := scanRequestDetail(r.db.QueryRowContext(ctx, requestDetailSelect+` WHERE pr.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending request by ID: %w", err)
	}
	return p, nil
}

// List は条件に合う申請を作成日時順で返す。
func (r *PostgresPendingRequestRepo) List(ctx context.Context, filter model.PendingRequestFilter) ([]*model.PendingRequest, error) {
	var conds []string
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("pr.user_id::text = $%d", len(args)))
	}
	if filter.DivisionID != "" {
		args = append(args, filter.DivisionID)
		conds = append(conds, fmt.Sprintf("pr.division_id::text = $%d", len(args)))
	}
	if filter.VenueID != "" {
		args = append(args, filter.VenueID)
		conds = append(conds, fmt.Sprintf("pr.venue_id::text = $%d", len(args)))
	}
	query := requestDetailSelect
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	return r.queryDetails(ctx, query+` ORDER BY pr.created_at`, args...)
}

// ListAwaitingReview は申請者付きで審査待ちの申請を返す。
func (r *PostgresPendingRequestRepo) ListAwaitingReview(ctx context.Context) ([]*model.PendingRequest, error) {
	return r.queryDetails(ctx, requestDetailSelect+`
		WHERE pr.user_id IS NOT NULL AND pr.pending AND NOT pr.admin_check
		ORDER BY pr.created_at`)
}

// ListForUser は指定ユーザーの所属部門の申請と、ユーザー自身の申請を返す。
func (r *PostgresPendingRequestRepo) ListForUser(ctx context.Context, userID string) ([]*model.PendingRequest, error) {
	return r.queryDetails(ctx, requestDetailSelect+`
		WHERE pr.user_id::text = $1
		   OR pr.division_id IN (SELECT m.division_id FROM user_divisions m WHERE m.user_id::text = $1)
		ORDER BY v.date, v.start_time`,
		userID,
	)
}

func (r *PostgresPendingRequestRepo) queryDetails(ctx context.Context, query string, args ...any) ([]*model.PendingRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.PendingRequest
	for rows.Next() {
		p, err := scanRequestDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		requests = append(requests, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending requests: %w", err)
	}
	return requests, nil
}

func insertPendingRequest(ctx context.Context, db execer, p *model.PendingRequest) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO pending_requests (id, user_id, venue_id, division_id, reason,
		   pending, admin_check, admin_accept, attended, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, nullableString(p.UserID), p.VenueID, p.DivisionID, p.Reason,
		p.Pending, p.AdminCheck, p.AdminAccept, p.Attended, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending request: %w", err)
	}
	return nil
}

// Create は申請を作成する。
func (r *PostgresPendingRequestRepo) Create(ctx context.Context, p *model.PendingRequest) error {
	return insertPendingRequest(ctx, r.db, p)
}

// Update は申請を更新する。
func (r *PostgresPendingRequestRepo) Update(ctx context.Context, p *model.PendingRequest) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_requests SET user_id = $2, venue_id = $3, division_id = $4, reason = $5,
		   pending = $6, admin_check = $7, admin_accept = $8, attended = $9, updated_at = $10
		 WHERE id = $1`,
		p.ID, nullableString(p.UserID), p.VenueID, p.DivisionID, p.Reason,
		p.Pending, p.AdminCheck, p.AdminAccept, p.Attended, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update pending request: %w", err)
	}
	return nil
}

// DeleteByID は申請を削除する。
func (r *PostgresPendingRequestRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete pending request: %w", err)
	}
	return nil
}

// DeleteByDivisionAndVenue は (部門, 開催予定) の申請を削除する。
func (r *PostgresPendingRequestRepo) DeleteByDivisionAndVenue(ctx context.Context, divisionID, venueID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_requests WHERE division_id = $1 AND venue_id = $2`,
		divisionID, venueID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// WithinTx はfnを1つのトランザクション内で実行する。
func (r *PostgresPendingRequestRepo) WithinTx(ctx context.Context, fn func(tx RequestTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresRequestTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresRequestTx は*sql.Tx上のRequestTx実装。
type postgresRequestTx struct {
	tx *sql.Tx
}

func (t *postgresRequestTx) lock(ctx context.Context, where string, args ...any) (*model.PendingRequest, error) {
	p, err := scanRequest(t.tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM pending_requests pr WHERE `+where+` FOR UPDATE`, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending request: %w", err)
	}
	return p, nil
}

// LockByDivisionAndVenue は (部門, 開催予定) の申請を行ロックして取得する。
func (t *postgresRequestTx) LockByDivisionAndVenue(ctx context.Context, divisionID, venueID string) (*model.PendingRequest, error) {
	return t.lock(ctx, `pr.division_id::text = $1 AND pr.venue_id::text = $2`, divisionID, venueID)
}

// LockByID は指定IDの申請を行ロックして取得する。
func (t *postgresRequestTx) LockByID(ctx context.Context, id string) (*model.PendingRequest, error) {
	return t.lock(ctx, `pr.id::text = $1`, id)
}

// SaveState は申請者・理由・4フラグを書き込む。
func (t *postgresRequestTx) SaveState(ctx context.Context, p *model.PendingRequest) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE pending_requests SET user_id = $2, reason = $3,
		   pending = $4, admin_check = $5, admin_accept = $6, attended = $7, updated_at = $8
		 WHERE id = $1`,
		p.ID, nullableString(p.UserID), p.Reason,
		p.Pending, p.AdminCheck, p.AdminAccept, p.Attended, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending request state: %w", err)
	}
	return nil
}

// InsertAttendance は出席記録を追加する。
func (t *postgresRequestTx) InsertAttendance(ctx context.Context, a *model.Attendance) error {
	return insertAttendance(ctx, t.tx, a)
}

// InsertAbsent は欠席記録を追加する。
func (t *postgresRequestTx) InsertAbsent(ctx context.Context, a *model.Absent) error {
	return insertAbsent(ctx, t.tx, a)
}

// compile-time interface check
var (
	_ PendingRequestRepository = (*PostgresPendingRequestRepo)(nil)
	_ RequestTx                = (*postgresRequestTx)(nil)
)
