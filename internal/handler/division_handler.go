package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/division"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/venue"
)

// DivisionServiceInterface は部門ハンドラーが必要とするサービスインターフェース。
type DivisionServiceInterface interface {
	List(ctx context.Context, filter model.DivisionFilter) ([]model.DivisionListItem, error)
	Detail(ctx context.Context, id string) (*model.DivisionDetail, error)
	Create(ctx context.Context, in division.Input) (*model.Division, error)
	Update(ctx context.Context, id string, in division.Input) (*model.Division, error)
	Delete(ctx context.Context, id string) error
	CreateVenue(ctx context.Context, divisionID string, in venue.Input) (*model.Venue, error)
	RemoveVenue(ctx context.Context, divisionID, venueID string) error
	Users(ctx context.Context, divisionID string) ([]*model.User, error)
	Songs(ctx context.Context, divisionID string) ([]*model.Song, error)
}

// DivisionHandler は部門管理のHTTPハンドラー。
type DivisionHandler struct {
	service DivisionServiceInterface
}

// NewDivisionHandler はDivisionHandlerを生成する。
func NewDivisionHandler(service DivisionServiceInterface) *DivisionHandler {
	return &DivisionHandler{service: service}
}

type divisionRequest struct {
	Name             *string `json:"name" validate:"omitempty,max=128"`
	Role             *string `json:"role" validate:"omitempty,max=128"`
	UserRole         *string `json:"userRole" validate:"omitempty,max=128"`
	IsRegistered     *bool   `json:"isRegistered"`
	IsActive         *bool   `json:"is_active"`
	Value            *string `json:"value"`
	ShowRatings      *bool   `json:"showRatings"`
	ShortWords       *string `json:"shortWords" validate:"omitempty,max=1024"`
	ShowVenue        *bool   `json:"showVenue"`
	Title            *string `json:"title" validate:"omitempty,max=1024"`
	TitleDesc        *string `json:"titleDesc"`
	TitleQuote       *string `json:"titleQuote" validate:"omitempty,max=1024"`
	ShowUser         *bool   `json:"showUser"`
	BaseUser         *string `json:"baseUser" validate:"omitempty,max=128"`
	BaseUserModifier *string `json:"baseUserModifier" validate:"omitempty,max=128"`
}

func (req divisionRequest) input() division.Input {
	return division.Input{
		Name:             req.Name,
		Role:             req.Role,
		UserRole:         req.UserRole,
		IsRegistered:     req.IsRegistered,
		IsActive:         req.IsActive,
		Value:            req.Value,
		ShowRatings:      req.ShowRatings,
		ShortWords:       req.ShortWords,
		ShowVenue:        req.ShowVenue,
		Title:            req.Title,
		TitleDesc:        req.TitleDesc,
		TitleQuote:       req.TitleQuote,
		ShowUser:         req.ShowUser,
		BaseUser:         req.BaseUser,
		BaseUserModifier: req.BaseUserModifier,
	}
}

type removeVenueRequest struct {
	VenueID string `json:"venue_id" validate:"required"`
}

// List は部門一覧を返す。認証済みなら所属部門が先頭に来る。
// GET /divisions?active_only=true&venue={id}
func (h *DivisionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.DivisionFilter{
		ActiveOnly: queryBool(r, "active_only"),
		VenueID:    r.URL.Query().Get("venue"),
	}
	if p := optionalPrincipal(r); p != nil {
		filter.ViewerID = p.UserID
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionListResponses(items))
}

// Get は部門詳細を返す。
// GET /divisions/{id}
func (h *DivisionHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionDetailResponse(detail, optionalPrincipal(r)))
}

// Create は部門を作成する。
// POST /divisions
func (h *DivisionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req divisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	d, err := h.service.Create(r.Context(), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDivisionResponse(d))
}

// Update は部門を更新する。
// PUT/PATCH /divisions/{id}
func (h *DivisionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req divisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	d, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionResponse(d))
}

// Delete は部門を削除する。
// DELETE /divisions/{id}
func (h *DivisionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateVenue は開催予定を作成し、部門に紐づける。
// POST /divisions/{id}/create_venue
func (h *DivisionHandler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.service.CreateVenue(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVenueResponse(v))
}

// RemoveVenue は部門と開催予定の紐付けを解除する。
// POST /divisions/{id}/remove_venue
func (h *DivisionHandler) RemoveVenue(w http.ResponseWriter, r *http.Request) {
	var req removeVenueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.service.RemoveVenue(r.Context(), chi.URLParam(r, "id"), req.VenueID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Venue removed successfully."})
}

// Users は部門の所属ユーザーを公開プロフィールで返す。
// GET /divisions/{id}/get_users
func (h *DivisionHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Users(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicUserResponses(users))
}

// Songs は部門の練習曲を返す。
// GET /divisions/{id}/songs
func (h *DivisionHandler) Songs(w http.ResponseWriter, r *http.Request) {
	songs, err := h.service.Songs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSongResponses(songs))
}
