package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/feedback"
	"github.com/hitoshi/rollcall/internal/model"
)

// FeedbackServiceInterface はフィードバックハンドラーが必要とするサービスインターフェース。
type FeedbackServiceInterface interface {
	List(ctx context.Context, actor model.Principal) ([]*model.Feedback, error)
	Get(ctx context.Context, actor model.Principal, id string) (*model.Feedback, error)
	Create(ctx context.Context, actor model.Principal, in feedback.Input) (*model.Feedback, error)
	Update(ctx context.Context, actor model.Principal, id string, in feedback.Input) (*model.Feedback, error)
	Delete(ctx context.Context, actor model.Principal, id string) error
}

// FeedbackHandler はフィードバックのHTTPハンドラー。
type FeedbackHandler struct {
	service FeedbackServiceInterface
}

// NewFeedbackHandler はFeedbackHandlerを生成する。
func NewFeedbackHandler(service FeedbackServiceInterface) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

type feedbackRequest struct {
	User             *string `json:"user"`
	Sender           *string `json:"sender"`
	Title            *string `json:"title" validate:"omitempty,max=256"`
	HighlightedTitle *string `json:"highlighted_title" validate:"omitempty,max=128"`
	Desc             *string `json:"desc"`
	Completed        *bool   `json:"completed"`
}

func (req feedbackRequest) input() feedback.Input {
	return feedback.Input{
		UserID:           req.User,
		SenderID:         req.Sender,
		Title:            req.Title,
		HighlightedTitle: req.HighlightedTitle,
		Description:      req.Desc,
		Completed:        req.Completed,
	}
}

// List は管理者には全件、一般ユーザーには自分宛てのフィードバックを返す。
// GET /feedbacks
func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), principal(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedbackResponses(list))
}

// Get はフィードバックを返す。
// GET /feedbacks/{id}
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedbackResponse(f))
}

// Create はフィードバックを作成する。送信者の既定値は呼び出し元。
// POST /feedbacks
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	f, err := h.service.Create(r.Context(), principal(r), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeedbackResponse(f))
}

// Update はフィードバックを更新する。
// PUT/PATCH /feedbacks/{id}
func (h *FeedbackHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	f, err := h.service.Update(r.Context(), principal(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedbackResponse(f))
}

// Delete はフィードバックを削除する。
// DELETE /feedbacks/{id}
func (h *FeedbackHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
