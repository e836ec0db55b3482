package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/rating"
)

// RatingServiceInterface は評価ハンドラーが必要とするサービスインターフェース。
type RatingServiceInterface interface {
	List(ctx context.Context, actor *model.Principal, q rating.Query) ([]*model.Rating, error)
	Get(ctx context.Context, id string) (*model.Rating, error)
	// Create は (ユーザー, 部門) ごとに1件となるよう既存の評価を上書きする。
	Create(ctx context.Context, actor model.Principal, in rating.Input) (*model.Rating, error)
	Update(ctx context.Context, actor model.Principal, id string, in rating.Input) (*model.Rating, error)
	Delete(ctx context.Context, actor model.Principal, id string) error
}

// RatingHandler は評価のHTTPハンドラー。
type RatingHandler struct {
	service RatingServiceInterface
}

// NewRatingHandler はRatingHandlerを生成する。
func NewRatingHandler(service RatingServiceInterface) *RatingHandler {
	return &RatingHandler{service: service}
}

type ratingRequest struct {
	Division *string  `json:"division"`
	Value    *float64 `json:"value"`
}

func (req ratingRequest) input() rating.Input {
	return rating.Input{DivisionID: req.Division, Value: req.Value}
}

// List は評価一覧を返す。
// GET /ratings?user={id}&division={id}&my_ratings=true
func (h *RatingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	viewer := optionalPrincipal(r)
	list, err := h.service.List(r.Context(), viewer, rating.Query{
		UserID:     q.Get("user"),
		DivisionID: q.Get("division"),
		Mine:       queryBool(r, "my_ratings"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]ratingResponse, 0, len(list))
	for _, rt := range list {
		out = append(out, toRatingResponse(rt, viewer))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get は評価を返す。
// GET /ratings/{id}
func (h *RatingHandler) Get(w http.ResponseWriter, r *http.Request) {
	rt, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatingResponse(rt, optionalPrincipal(r)))
}

// Create は評価を登録する。
// POST /ratings
func (h *RatingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	actor := principal(r)
	rt, err := h.service.Create(r.Context(), actor, req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRatingResponse(rt, &actor))
}

// Update は評価を更新する。作成者か管理者のみ。
// PUT/PATCH /ratings/{id}
func (h *RatingHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	actor := principal(r)
	rt, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatingResponse(rt, &actor))
}

// Delete は評価を削除する。
// DELETE /ratings/{id}
func (h *RatingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
