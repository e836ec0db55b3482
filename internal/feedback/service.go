// Package feedback はユーザーへのフィードバックを扱う。
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
)

const senderOnlySelf = "You can only set yourself as the sender unless you're an admin."

// UserFinder はユーザーの存在確認インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Input はフィードバックの作成・更新入力。
type Input struct {
	UserID           *string
	SenderID         *string
	Title            *string
	HighlightedTitle *string
	Description      *string
	Completed        *bool
}

// Service はフィードバックのサービス層。
type Service struct {
	feedbacks repository.FeedbackRepository
	users     UserFinder
	text      security.Sanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(feedbacks repository.FeedbackRepository, users UserFinder, text security.Sanitizer) *Service {
	return &Service{feedbacks: feedbacks, users: users, text: text, now: time.Now}
}

// List は actor が閲覧できるフィードバックを新しい順に返す。
// 管理者は全件、それ以外は自分宛てのもののみ。
func (s *Service) List(ctx context.Context, actor model.Principal) ([]*model.Feedback, error) {
	userID := actor.UserID
	if actor.IsAdmin {
		userID = ""
	}
	list, err := s.feedbacks.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.Feedback{}
	}
	return list, nil
}

// Get はフィードバックを返す。閲覧できないものは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, actor model.Principal, id string) (*model.Feedback, error) {
	f, err := s.feedbacks.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの取得に失敗しました: %w", err)
	}
	if f == nil || !actor.CanActFor(f.UserID) {
		return nil, model.NewNotFoundError(model.ErrCodeFeedbackNotFound, "Feedback")
	}
	return f, nil
}

// Create はフィードバックを作成する。user は必須で、sender は省略時に actor となる。
func (s *Service) Create(ctx context.Context, actor model.Principal, in Input) (*model.Feedback, error) {
	fields := map[string][]string{}
	if in.UserID == nil || *in.UserID == "" {
		fields["user"] = []string{"This field is required."}
	}
	if in.Title == nil || *in.Title == "" {
		fields["title"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	sender := actor.UserID
	if in.SenderID != nil {
		sender = *in.SenderID
	}
	f := &model.Feedback{
		ID:        uuid.New().String(),
		CreatedAt: s.now(),
	}
	in.SenderID = &sender
	if err := s.apply(ctx, actor, f, in); err != nil {
		return nil, err
	}
	if err := s.feedbacks.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("フィードバックの作成に失敗しました: %w", err)
	}
	return s.reload(ctx, f)
}

// Update はフィードバックを更新する。
func (s *Service) Update(ctx context.Context, actor model.Principal, id string, in Input) (*model.Feedback, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, actor, f, in); err != nil {
		return nil, err
	}
	if err := s.feedbacks.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("フィードバックの更新に失敗しました: %w", err)
	}
	return s.reload(ctx, f)
}

// Delete はフィードバックを削除する。
func (s *Service) Delete(ctx context.Context, actor model.Principal, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.feedbacks.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("フィードバックの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, actor model.Principal, f *model.Feedback, in Input) error {
	fields := map[string][]string{}
	if in.UserID != nil {
		if err := s.checkUser(ctx, "user", *in.UserID, fields); err != nil {
			return err
		}
	}
	if in.SenderID != nil {
		if *in.SenderID != actor.UserID && !actor.IsAdmin {
			fields["sender"] = []string{senderOnlySelf}
		} else if err := s.checkUser(ctx, "sender", *in.SenderID, fields); err != nil {
			return err
		}
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}

	if in.UserID != nil {
		f.UserID = *in.UserID
	}
	if in.SenderID != nil {
		id := *in.SenderID
		f.SenderID = &id
	}
	if in.Title != nil {
		f.Title = s.text.Sanitize(*in.Title)
	}
	if in.HighlightedTitle != nil {
		f.HighlightedTitle = s.text.Sanitize(*in.HighlightedTitle)
	}
	if in.Description != nil {
		f.Description = s.text.Sanitize(*in.Description)
	}
	if in.Completed != nil {
		f.Completed = *in.Completed
	}
	return nil
}

func (s *Service) checkUser(ctx context.Context, field, id string, fields map[string][]string) error {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		fields[field] = []string{fmt.Sprintf("Invalid pk %q - object does not exist.", id)}
	}
	return nil
}

// reload はユーザー名などの結合項目を埋めた状態で返す。
func (s *Service) reload(ctx context.Context, f *model.Feedback) (*model.Feedback, error) {
	got, err := s.feedbacks.FindByID(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの取得に失敗しました: %w", err)
	}
	if got == nil {
		return f, nil
	}
	return got, nil
}
