package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context, actor model.Principal) ([]*model.User, error)
	Get(ctx context.Context, actor model.Principal, id string) (*model.User, error)
	PublicList(ctx context.Context) ([]*model.User, error)
	PublicGet(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, actor model.Principal, in user.CreateInput) (*model.User, error)
	Update(ctx context.Context, actor model.Principal, id string, in user.UpdateInput) (*model.User, error)
	Delete(ctx context.Context, actor model.Principal, id string) error
	AddDivision(ctx context.Context, actor model.Principal, userID, divisionID string) error
	RemoveDivision(ctx context.Context, actor model.Principal, userID, divisionID string) error
	// SetPermissions は管理者のみ。request_id が無い場合は変更せずfalseを返す。
	SetPermissions(ctx context.Context, actor model.Principal, id string, in user.PermissionsInput) (*model.User, bool, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type createUserRequest struct {
	Username       string   `json:"username" validate:"required,max=20,username"`
	Password       string   `json:"password" validate:"required,min=4"`
	PhoneNumber    string   `json:"phone_number" validate:"max=15"`
	FName          string   `json:"fname" validate:"max=128"`
	LName          string   `json:"lname" validate:"max=128"`
	Gender         string   `json:"gender"`
	Occupation     string   `json:"occupation"`
	ProfilePicture string   `json:"profile_picture"`
	IsAdmin        bool     `json:"is_admin"`
	IsActive       *bool    `json:"is_active"`
	Divisions      []string `json:"divisions" validate:"omitempty,dive,uuid"`
}

// updateUserRequest は部分更新。PUTでも指定されたフィールドのみ反映する。
type updateUserRequest struct {
	Username       *string   `json:"username" validate:"omitempty,max=20,username"`
	Password       *string   `json:"password" validate:"omitempty,min=4"`
	PhoneNumber    *string   `json:"phone_number" validate:"omitempty,max=15"`
	FName          *string   `json:"fname" validate:"omitempty,max=128"`
	LName          *string   `json:"lname" validate:"omitempty,max=128"`
	Gender         *string   `json:"gender"`
	Occupation     *string   `json:"occupation"`
	ProfilePicture *string   `json:"profile_picture"`
	IsAdmin        *bool     `json:"is_admin"`
	IsActive       *bool     `json:"is_active"`
	Divisions      *[]string `json:"divisions" validate:"omitempty,dive,uuid"`
}

func (req updateUserRequest) input() user.UpdateInput {
	return user.UpdateInput{
		Username:       req.Username,
		Password:       req.Password,
		PhoneNumber:    req.PhoneNumber,
		FName:          req.FName,
		LName:          req.LName,
		Gender:         req.Gender,
		Occupation:     req.Occupation,
		ProfilePicture: req.ProfilePicture,
		IsAdmin:        req.IsAdmin,
		IsActive:       req.IsActive,
		DivisionIDs:    req.Divisions,
	}
}

type divisionMembershipRequest struct {
	DivisionID string `json:"division_id" validate:"required"`
}

type permissionsRequest struct {
	RequestID string `json:"request_id"`
	Activate  *bool  `json:"activate"`
	Admin     *bool  `json:"admin"`
}

type permissionsResponse struct {
	Success bool                `json:"success"`
	User    *publicUserResponse `json:"user,omitempty"`
}

// List は管理者には全ユーザー、一般ユーザーには自分のみを返す。
// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context(), principal(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

// Create は管理者によるユーザー作成。
// POST /users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.Create(r.Context(), principal(r), user.CreateInput{
		Username:       req.Username,
		Password:       req.Password,
		PhoneNumber:    req.PhoneNumber,
		FName:          req.FName,
		LName:          req.LName,
		Gender:         req.Gender,
		Occupation:     req.Occupation,
		ProfilePicture: req.ProfilePicture,
		IsAdmin:        req.IsAdmin,
		IsActive:       req.IsActive,
		DivisionIDs:    req.Divisions,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Get はユーザー詳細を返す。
// GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, chi.URLParam(r, "id"))
}

// Me は認証中のユーザーを返す。
// GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, principal(r).UserID)
}

func (h *UserHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	u, err := h.service.Get(r.Context(), principal(r), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Update はユーザーを更新する。
// PUT/PATCH /users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, chi.URLParam(r, "id"))
}

// UpdateMe は認証中のユーザーを更新する。
// PUT/PATCH /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, principal(r).UserID)
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req updateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	u, err := h.service.Update(r.Context(), principal(r), id, req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Delete はユーザーを削除する。
// DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddDivision はユーザーを部門に所属させる。
// POST /users/{id}/add_division
func (h *UserHandler) AddDivision(w http.ResponseWriter, r *http.Request) {
	var req divisionMembershipRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.service.AddDivision(r.Context(), principal(r), chi.URLParam(r, "id"), req.DivisionID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Division added successfully."})
}

// RemoveDivision はユーザーの部門所属を解除する。
// POST /users/{id}/remove_division
func (h *UserHandler) RemoveDivision(w http.ResponseWriter, r *http.Request) {
	var req divisionMembershipRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.service.RemoveDivision(r.Context(), principal(r), chi.URLParam(r, "id"), req.DivisionID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Division removed successfully."})
}

// Permissions はユーザーの有効状態と管理者権限を変更する。
// POST /users/{id}/permissions
func (h *UserHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	u, ok, err := h.service.SetPermissions(r.Context(), principal(r), chi.URLParam(r, "id"), user.PermissionsInput{
		RequestID: req.RequestID,
		Activate:  req.Activate,
		Admin:     req.Admin,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := permissionsResponse{Success: ok}
	if u != nil {
		pu := toPublicUserResponse(u)
		resp.User = &pu
	}
	writeJSON(w, http.StatusOK, resp)
}

// PublicList は公開プロフィールの一覧を返す。
// GET /public-users
func (h *UserHandler) PublicList(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.PublicList(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicUserResponses(users))
}

// PublicGet は公開プロフィールを返す。
// GET /public-users/{id}
func (h *UserHandler) PublicGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.PublicGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicUserResponse(u))
}
