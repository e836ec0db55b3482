package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/rollcall/internal/model"
)

// firstUserLockKey は最初のユーザー作成を直列化するアドバイザリロックのキー。
const firstUserLockKey = 72001

const userColumns = `u.id, u.username, u.password_hash, u.phone_number, u.fname, u.lname,
	u.gender, u.occupation, u.profile_picture, u.is_admin, u.is_active, u.logged_in_times,
	ARRAY(SELECT ud.division_id::text FROM user_divisions ud WHERE ud.user_id = u.id ORDER BY ud.division_id),
	u.created_at, u.updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var divisions pq.StringArray
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.PhoneNumber, &u.FName, &u.LName,
		&u.Gender, &u.Occupation, &u.ProfilePicture, &u.IsAdmin, &u.IsActive, &u.LoggedInTimes,
		&divisions, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.DivisionIDs = []string(divisions)
	return u, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `u.id::text = $1`, id)
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `u.username = $1`, username)
}

// List は全ユーザーをユーザー名順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.username`)
}

// ListByDivision は指定部門に所属するユーザーを返す。
func (r *PostgresUserRepo) ListByDivision(ctx context.Context, divisionID string) ([]*model.User, error) {
	return r.query(ctx,
		`SELECT `+userColumns+` FROM users u
		 JOIN user_divisions m ON m.user_id = u.id
		 WHERE m.division_id::text = $1
		 ORDER BY u.username`,
		divisionID,
	)
}

func (r *PostgresUserRepo) query(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。最初のユーザーは管理者になる。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, firstUserLockKey); err != nil {
		return fmt.Errorf("failed to acquire first-user lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if !exists {
		user.IsAdmin = true
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, phone_number, fname, lname,
		   gender, occupation, profile_picture, is_admin, is_active, logged_in_times, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		user.ID, user.Username, user.PasswordHash, user.PhoneNumber, user.FName, user.LName,
		user.Gender, user.Occupation, user.ProfilePicture, user.IsAdmin, user.IsActive,
		user.LoggedInTimes, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	for _, divisionID := range user.DivisionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_divisions (user_id, division_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			user.ID, divisionID,
		); err != nil {
			return fmt.Errorf("failed to insert user division: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update はプロフィールと権限フラグを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = $2, password_hash = $3, phone_number = $4, fname = $5, lname = $6,
		   gender = $7, occupation = $8, profile_picture = $9, is_admin = $10, is_active = $11,
		   updated_at = $12
		 WHERE id = $1`,
		user.ID, user.Username, user.PasswordHash, user.PhoneNumber, user.FName, user.LName,
		user.Gender, user.Occupation, user.ProfilePicture, user.IsAdmin, user.IsActive, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 所属、フィードバック、リフレッシュトークンはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// IncrementLoginCount はログイン回数を1増やす。
func (r *PostgresUserRepo) IncrementLoginCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET logged_in_times = logged_in_times + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment login count: %w", err)
	}
	return nil
}

// AddDivision は部門所属を追加する。
func (r *PostgresUserRepo) AddDivision(ctx context.Context, userID, divisionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_divisions (user_id, division_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, divisionID,
	)
	if err != nil {
		return fmt.Errorf("failed to add division: %w", err)
	}
	return nil
}

// RemoveDivision は部門所属を解除する。
func (r *PostgresUserRepo) RemoveDivision(ctx context.Context, userID, divisionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_divisions WHERE user_id = $1 AND division_id = $2`,
		userID, divisionID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove division: %w", err)
	}
	return nil
}

// CountActive は有効なユーザー数を返す。
func (r *PostgresUserRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_active`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
