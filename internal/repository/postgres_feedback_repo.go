package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rollcall/internal/model"
)

const feedbackSelect = `SELECT f.id, f.user_id, f.sender_id::text, f.title, f.highlighted_title,
	f.description, f.completed, f.created_at, u.username, COALESCE(s.username, '')
	FROM feedbacks f
	JOIN users u ON u.id = f.user_id
	LEFT JOIN users s ON s.id = f.sender_id`

// PostgresFeedbackRepo はPostgreSQLを使用したフィードバックリポジトリ。
type PostgresFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresFeedbackRepo はPostgresFeedbackRepoを生成する。
func NewPostgresFeedbackRepo(db *sql.DB) *PostgresFeedbackRepo {
	return &PostgresFeedbackRepo{db: db}
}

func scanFeedback(row rowScanner) (*model.Feedback, error) {
	f := &model.Feedback{}
	var senderID sql.NullString
	if err := row.Scan(&f.ID, &f.UserID, &senderID, &f.Title, &f.HighlightedTitle,
		&f.Description, &f.Completed, &f.CreatedAt, &f.UserName, &f.SenderName); err != nil {
		return nil, err
	}
	if senderID.Valid {
		f.SenderID = &senderID.String
	}
	return f, nil
}

// FindByID は指定IDのフィードバックを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedbackRepo) FindByID(ctx context.Context, id string) (*model.Feedback, error) {
	f, err := scanFeedback(r.db.QueryRowContext(ctx, feedbackSelect+` WHERE f.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find feedback by ID: %w", err)
	}
	return f, nil
}

// List は作成日時の降順で返す。userIDが空の場合は全件。
func (r *PostgresFeedbackRepo) List(ctx context.Context, userID string) ([]*model.Feedback, error) {
	rows, err := r.db.QueryContext(ctx,
		feedbackSelect+` WHERE ($1 = '' OR f.user_id::text = $1) ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedbacks: %w", err)
	}
	defer rows.Close()

	var list []*model.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedbacks: %w", err)
	}
	return list, nil
}

// Create はフィードバックを作成する。
func (r *PostgresFeedbackRepo) Create(ctx context.Context, f *model.Feedback) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feedbacks (id, user_id, sender_id, title, highlighted_title, description, completed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.UserID, nullableString(f.SenderID), f.Title, f.HighlightedTitle, f.Description, f.Completed, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// Update はフィードバックを更新する。
func (r *PostgresFeedbackRepo) Update(ctx context.Context, f *model.Feedback) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feedbacks SET user_id = $2, sender_id = $3, title = $4, highlighted_title = $5,
		   description = $6, completed = $7
		 WHERE id = $1`,
		f.ID, f.UserID, nullableString(f.SenderID), f.Title, f.HighlightedTitle, f.Description, f.Completed,
	)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	return nil
}

// DeleteByID はフィードバックを削除する。
func (r *PostgresFeedbackRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM feedbacks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FeedbackRepository = (*PostgresFeedbackRepo)(nil)
