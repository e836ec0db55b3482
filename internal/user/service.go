// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/auth"
	"github.com/hitoshi/rollcall/internal/database"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// DivisionFinder は部門の存在確認インターフェース。
type DivisionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Division, error)
}

// CreateInput は管理者によるユーザー作成の入力。
type CreateInput struct {
	Username       string
	Password       string
	PhoneNumber    string
	FName          string
	LName          string
	Gender         string
	Occupation     string
	ProfilePicture string
	IsAdmin        bool
	IsActive       *bool
	DivisionIDs    []string
}

// UpdateInput はユーザー更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Username       *string
	Password       *string
	PhoneNumber    *string
	FName          *string
	LName          *string
	Gender         *string
	Occupation     *string
	ProfilePicture *string
	IsAdmin        *bool
	IsActive       *bool
	DivisionIDs    *[]string
}

// PermissionsInput は権限変更の入力。RequestIDが空の場合は何も変更しない。
type PermissionsInput struct {
	RequestID string
	Activate  *bool
	Admin     *bool
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	divisions DivisionFinder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, divisions DivisionFinder) *Service {
	return &Service{
		userRepo:  userRepo,
		divisions: divisions,
		now:       time.Now,
	}
}

// List はユーザー一覧を返す。管理者は全員、一般ユーザーは自分のみ。
func (s *Service) List(ctx context.Context, actor model.Principal) ([]*model.User, error) {
	if !actor.IsAdmin {
		u, err := s.Get(ctx, actor, actor.UserID)
		if err != nil {
			return nil, err
		}
		return []*model.User{u}, nil
	}
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get はユーザーを返す。一般ユーザーが他人を指定した場合は存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, actor model.Principal, id string) (*model.User, error) {
	if !actor.CanActFor(id) {
		return nil, model.NewUserNotFoundError()
	}
	return s.find(ctx, id)
}

func (s *Service) find(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// PublicList は公開プロフィールの一覧を返す。
func (s *Service) PublicList(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// PublicGet は公開プロフィールを返す。
func (s *Service) PublicGet(ctx context.Context, id string) (*model.User, error) {
	return s.find(ctx, id)
}

// ListByDivision は部門の所属ユーザーを返す。
func (s *Service) ListByDivision(ctx context.Context, divisionID string) ([]*model.User, error) {
	if err := s.requireDivision(ctx, divisionID); err != nil {
		return nil, err
	}
	users, err := s.userRepo.ListByDivision(ctx, divisionID)
	if err != nil {
		return nil, fmt.Errorf("所属ユーザーの取得に失敗しました: %w", err)
	}
	return users, nil
}

// Create は管理者がユーザーを作成する。
func (s *Service) Create(ctx context.Context, actor model.Principal, in CreateInput) (*model.User, error) {
	if !actor.IsAdmin {
		return nil, model.NewForbiddenError()
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	u := &model.User{
		ID:             uuid.New().String(),
		Username:       in.Username,
		PasswordHash:   hash,
		PhoneNumber:    in.PhoneNumber,
		FName:          in.FName,
		LName:          in.LName,
		Gender:         orDefault(in.Gender, model.DefaultGender),
		Occupation:     orDefault(in.Occupation, model.DefaultOccupation),
		ProfilePicture: in.ProfilePicture,
		IsAdmin:        in.IsAdmin,
		IsActive:       in.IsActive == nil || *in.IsActive,
		DivisionIDs:    in.DivisionIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.requireDivisionRefs(ctx, in.DivisionIDs); err != nil {
		return nil, err
	}

	if err := s.userRepo.Create(ctx, u); err != nil {
		if database.IsUniqueViolation(err, "users_username_key") {
			return nil, model.NewDuplicateUsernameError()
		}
		// 確認後に部門が削除された場合
		if database.IsForeignKeyViolation(err) {
			return nil, model.NewFieldError("divisions", "Invalid pk - object does not exist.")
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", u.ID),
		slog.String("admin_id", actor.UserID),
	)
	return u, nil
}

// Update はユーザーを更新する。管理者は全員、一般ユーザーは自分のみ。
// is_admin と is_active は管理者のみ変更できる。
func (s *Service) Update(ctx context.Context, actor model.Principal, id string, in UpdateInput) (*model.User, error) {
	u, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && (in.IsAdmin != nil || in.IsActive != nil) {
		return nil, model.NewForbiddenError()
	}
	// 部門IDの誤りで部分的に更新されないよう、書き込み前に確認する
	if in.DivisionIDs != nil {
		if err := s.requireDivisionRefs(ctx, *in.DivisionIDs); err != nil {
			return nil, err
		}
	}

	setString(&u.Username, in.Username)
	setString(&u.PhoneNumber, in.PhoneNumber)
	setString(&u.FName, in.FName)
	setString(&u.LName, in.LName)
	setString(&u.Gender, in.Gender)
	setString(&u.Occupation, in.Occupation)
	setString(&u.ProfilePicture, in.ProfilePicture)
	if in.IsAdmin != nil {
		u.IsAdmin = *in.IsAdmin
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
		}
		u.PasswordHash = hash
	}
	u.UpdatedAt = s.now()

	if err := s.userRepo.Update(ctx, u); err != nil {
		if database.IsUniqueViolation(err, "users_username_key") {
			return nil, model.NewDuplicateUsernameError()
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	if in.DivisionIDs != nil {
		if err := s.replaceDivisions(ctx, u, *in.DivisionIDs); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// replaceDivisions は所属部門を want に置き換える。
// want は requireDivisionRefs で確認済みであること。
func (s *Service) replaceDivisions(ctx context.Context, u *model.User, want []string) error {
	keep := make(map[string]bool, len(want))
	for _, id := range want {
		keep[id] = true
	}
	for _, id := range u.DivisionIDs {
		if keep[id] {
			continue
		}
		if err := s.userRepo.RemoveDivision(ctx, u.ID, id); err != nil {
			return fmt.Errorf("部門所属の解除に失敗しました: %w", err)
		}
	}
	for _, id := range want {
		if u.InDivision(id) {
			continue
		}
		if err := s.userRepo.AddDivision(ctx, u.ID, id); err != nil {
			return fmt.Errorf("部門所属の追加に失敗しました: %w", err)
		}
	}
	u.DivisionIDs = append([]string(nil), want...)
	return nil
}

// Delete はユーザーを削除する。所属とフィードバック、発行済みトークンはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, actor model.Principal, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.userRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	slog.Info("ユーザーを削除しました",
		slog.String("user_id", id),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

// AddDivision はユーザーを部門に所属させる。
func (s *Service) AddDivision(ctx context.Context, actor model.Principal, userID, divisionID string) error {
	if _, err := s.Get(ctx, actor, userID); err != nil {
		return err
	}
	if err := s.requireDivision(ctx, divisionID); err != nil {
		return err
	}
	if err := s.userRepo.AddDivision(ctx, userID, divisionID); err != nil {
		return fmt.Errorf("部門所属の追加に失敗しました: %w", err)
	}
	return nil
}

// RemoveDivision はユーザーの部門所属を解除する。
func (s *Service) RemoveDivision(ctx context.Context, actor model.Principal, userID, divisionID string) error {
	if _, err := s.Get(ctx, actor, userID); err != nil {
		return err
	}
	if err := s.requireDivision(ctx, divisionID); err != nil {
		return err
	}
	if err := s.userRepo.RemoveDivision(ctx, userID, divisionID); err != nil {
		return fmt.Errorf("部門所属の解除に失敗しました: %w", err)
	}
	return nil
}

// SetPermissions は管理者がユーザーの有効状態と管理者権限を変更する。
// RequestIDが無い場合は何も変更せずfalseを返す。
func (s *Service) SetPermissions(ctx context.Context, actor model.Principal, id string, in PermissionsInput) (*model.User, bool, error) {
	if !actor.IsAdmin {
		return nil, false, model.NewForbiddenError()
	}
	if in.RequestID == "" {
		return nil, false, nil
	}
	u, err := s.find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if in.Activate != nil {
		u.IsActive = *in.Activate
	}
	if in.Admin != nil {
		u.IsAdmin = *in.Admin
	}
	u.UpdatedAt = s.now()
	if err := s.userRepo.Update(ctx, u); err != nil {
		return nil, false, fmt.Errorf("権限の更新に失敗しました: %w", err)
	}

	slog.Info("ユーザー権限を変更しました",
		slog.String("user_id", u.ID),
		slog.Bool("is_admin", u.IsAdmin),
		slog.Bool("is_active", u.IsActive),
		slog.String("admin_id", actor.UserID),
	)
	return u, true, nil
}

// requireDivisionRefs は入力ボディの divisions に含まれる部門IDを確認する。
// 存在しないIDは404ではなく divisions フィールドのエラーになる。
func (s *Service) requireDivisionRefs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		d, err := s.divisions.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("部門の取得に失敗しました: %w", err)
		}
		if d == nil {
			return model.NewUnknownDivisionRefError(id)
		}
	}
	return nil
}

func (s *Service) requireDivision(ctx context.Context, id string) error {
	d, err := s.divisions.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("部門の取得に失敗しました: %w", err)
	}
	if d == nil {
		return model.NewDivisionNotFoundError()
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
