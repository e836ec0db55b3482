package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/workflow"
)

// WorkflowServiceInterface は出欠申請ハンドラーが必要とするサービスインターフェース。
type WorkflowServiceInterface interface {
	ListRequests(ctx context.Context, actor model.Principal, filter model.PendingRequestFilter) ([]*model.PendingRequest, error)
	GetRequest(ctx context.Context, actor model.Principal, id string) (*model.PendingRequest, error)
	CreateRequest(ctx context.Context, actor model.Principal, in workflow.RequestInput) (*model.PendingRequest, error)
	UpdateRequest(ctx context.Context, actor model.Principal, id string, in workflow.RequestInput) (*model.PendingRequest, error)
	DeleteRequest(ctx context.Context, actor model.Principal, id string) error
	ListPendingVenues(ctx context.Context) ([]*model.PendingRequest, error)
	UserVenues(ctx context.Context, userID string) (*model.UserVenues, error)

	// ProcessVenueResponse は (部門, 開催予定) の申請を1段階進める。
	ProcessVenueResponse(ctx context.Context, actor model.Principal, divisionID string, in workflow.VenueResponseInput) (*model.PendingRequest, error)
	Approve(ctx context.Context, actor model.Principal, requestID string) (*model.PendingRequest, error)
	Reject(ctx context.Context, actor model.Principal, requestID string) (*model.PendingRequest, error)
	Reset(ctx context.Context, actor model.Principal, requestID string) (*model.PendingRequest, error)
}

// RequestHandler は出欠申請と承認ワークフローのHTTPハンドラー。
type RequestHandler struct {
	service WorkflowServiceInterface
}

// NewRequestHandler はRequestHandlerを生成する。
func NewRequestHandler(service WorkflowServiceInterface) *RequestHandler {
	return &RequestHandler{service: service}
}

type pendingRequestRequest struct {
	User        *string `json:"user"`
	Venue       string  `json:"venue" validate:"required"`
	Division    string  `json:"division" validate:"required"`
	Reason      string  `json:"reason" validate:"max=128"`
	Pending     bool    `json:"pending"`
	AdminCheck  bool    `json:"admin_check"`
	AdminAccept bool    `json:"admin_accept"`
	Attended    bool    `json:"attended"`
}

func (req pendingRequestRequest) input() workflow.RequestInput {
	return workflow.RequestInput{
		UserID:      req.User,
		VenueID:     req.Venue,
		DivisionID:  req.Division,
		Reason:      req.Reason,
		Pending:     req.Pending,
		AdminCheck:  req.AdminCheck,
		AdminAccept: req.AdminAccept,
		Attended:    req.Attended,
	}
}

// venueResponseRequest は process_venue_response のボディ。省略時の既定値は input で補う。
type venueResponseRequest struct {
	ID             string `json:"id" validate:"required"`
	Reason         string `json:"reason" validate:"max=128"`
	Username       string `json:"username"`
	ReqAdminReview *bool  `json:"req_admin_review"`
	ReqAdminAccept *bool  `json:"req_admin_accept"`
	IsUserState    *bool  `json:"is_user_state"`
}

func (req venueResponseRequest) input() workflow.VenueResponseInput {
	return workflow.VenueResponseInput{
		VenueID:        req.ID,
		Reason:         req.Reason,
		Username:       req.Username,
		ReqAdminReview: boolOr(req.ReqAdminReview, true),
		ReqAdminAccept: boolOr(req.ReqAdminAccept, false),
		IsUserState:    boolOr(req.IsUserState, true),
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// List は申請一覧を返す。一般ユーザーは自分の申請のみ。
// GET /pending-requests?user={id}&division={id}&venue={id}
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.ListRequests(r.Context(), principal(r), model.PendingRequestFilter{
		UserID:     q.Get("user"),
		DivisionID: q.Get("division"),
		VenueID:    q.Get("venue"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingRequestResponses(list))
}

// Get は申請を返す。
// GET /pending-requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetRequest(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingRequestResponse(p))
}

// Create は申請を作成する。
// POST /pending-requests
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req pendingRequestRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.service.CreateRequest(r.Context(), principal(r), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPendingRequestResponse(p))
}

// Update は申請を更新する。
// PUT/PATCH /pending-requests/{id}
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req pendingRequestRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.service.UpdateRequest(r.Context(), principal(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingRequestResponse(p))
}

// Delete は申請を削除する。
// DELETE /pending-requests/{id}
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRequest(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PendingVenues は審査待ちの申請を返す。
// GET /pending-requests/venues
func (h *RequestHandler) PendingVenues(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPendingVenues(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingRequestResponses(list))
}

// Approve は申請を承認し、出席記録を作成する。
// POST /pending-requests/{id}/approve
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

// Reject は申請を却下する。
// POST /pending-requests/{id}/reject
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

// Reset は申請を初期状態に戻す。
// POST /pending-requests/{id}/reset
func (h *RequestHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reset)
}

func (h *RequestHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, actor model.Principal, requestID string) (*model.PendingRequest, error),
) {
	p, err := fn(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingRequestResponse(p))
}

// ProcessVenueResponse は利用者の出欠申告（Phase A）または管理者の判定（Phase B）を処理する。
// POST /divisions/{id}/process_venue_response
func (h *RequestHandler) ProcessVenueResponse(w http.ResponseWriter, r *http.Request) {
	var req venueResponseRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.service.ProcessVenueResponse(r.Context(), principal(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingRequestResponse(p))
}

// UserVenues は対象ユーザーの開催予定を申請状態ごとに返す。
// GET /divisions/user/{user_id}/venues
func (h *RequestHandler) UserVenues(w http.ResponseWriter, r *http.Request) {
	uv, err := h.service.UserVenues(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserVenuesResponse(uv))
}
