package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/ledger"
	"github.com/hitoshi/rollcall/internal/model"
)

// LedgerServiceInterface は出欠記録ハンドラーが必要とするサービスインターフェース。
type LedgerServiceInterface interface {
	ListAttendances(ctx context.Context, f ledger.Filter) ([]*model.Attendance, error)
	GetAttendance(ctx context.Context, id string) (*model.Attendance, error)
	CreateAttendance(ctx context.Context, in ledger.Input) (*model.Attendance, error)
	// BulkCreateAttendances は全件成功か全件失敗のどちらか。
	BulkCreateAttendances(ctx context.Context, inputs []ledger.Input) ([]*model.Attendance, error)
	UpdateAttendance(ctx context.Context, id string, in ledger.Input) (*model.Attendance, error)
	DeleteAttendance(ctx context.Context, id string) error

	ListAbsents(ctx context.Context, f ledger.Filter) ([]*model.Absent, error)
	GetAbsent(ctx context.Context, id string) (*model.Absent, error)
	CreateAbsent(ctx context.Context, in ledger.Input) (*model.Absent, error)
	UpdateAbsent(ctx context.Context, id string, in ledger.Input) (*model.Absent, error)
	DeleteAbsent(ctx context.Context, id string) error
}

// LedgerHandler は出席・欠席記録のHTTPハンドラー。
type LedgerHandler struct {
	service LedgerServiceInterface
}

// NewLedgerHandler はLedgerHandlerを生成する。
func NewLedgerHandler(service LedgerServiceInterface) *LedgerHandler {
	return &LedgerHandler{service: service}
}

type ledgerRequest struct {
	Venue      *string `json:"venue"`
	Division   *string `json:"division"`
	Sessions   *int    `json:"sessions"`
	Attendance *int    `json:"attendance"`
	Reason     *string `json:"reason" validate:"omitempty,max=128"`
}

func (req ledgerRequest) input() ledger.Input {
	return ledger.Input{
		VenueID:    req.Venue,
		DivisionID: req.Division,
		Sessions:   req.Sessions,
		Attended:   req.Attendance,
		Reason:     req.Reason,
	}
}

func ledgerFilter(r *http.Request) ledger.Filter {
	q := r.URL.Query()
	return ledger.Filter{
		VenueID:    q.Get("venue"),
		DivisionID: q.Get("division"),
		Reason:     q.Get("reason"),
	}
}

// --- 出席記録 ---

// ListAttendances は出席記録一覧を返す。
// GET /attendances?venue={id}&division={id}
func (h *LedgerHandler) ListAttendances(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAttendances(r.Context(), ledgerFilter(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponses(list))
}

// GetAttendance は出席記録を返す。
// GET /attendances/{id}
func (h *LedgerHandler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAttendance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(a))
}

// CreateAttendance は出席記録を作成する。
// POST /attendances
func (h *LedgerHandler) CreateAttendance(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.service.CreateAttendance(r.Context(), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceResponse(a))
}

// BulkCreateAttendances は出席記録の配列をまとめて作成する。
// POST /attendances/bulk_create
func (h *LedgerHandler) BulkCreateAttendances(w http.ResponseWriter, r *http.Request) {
	var reqs []ledgerRequest
	if err := decodeJSON(r, &reqs); err != nil {
		handleServiceError(w, err)
		return
	}
	inputs := make([]ledger.Input, 0, len(reqs))
	for _, req := range reqs {
		inputs = append(inputs, req.input())
	}

	list, err := h.service.BulkCreateAttendances(r.Context(), inputs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceResponses(list))
}

// UpdateAttendance は出席記録を更新する。
// PUT/PATCH /attendances/{id}
func (h *LedgerHandler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.service.UpdateAttendance(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(a))
}

// DeleteAttendance は出席記録を削除する。
// DELETE /attendances/{id}
func (h *LedgerHandler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAttendance(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- 欠席記録 ---

// ListAbsents は欠席記録一覧を返す。
// GET /absents?venue={id}&division={id}&reason={reason}
func (h *LedgerHandler) ListAbsents(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAbsents(r.Context(), ledgerFilter(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsentResponses(list))
}

// GetAbsent は欠席記録を返す。
// GET /absents/{id}
func (h *LedgerHandler) GetAbsent(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAbsent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsentResponse(a))
}

// CreateAbsent は欠席記録を作成する。
// POST /absents
func (h *LedgerHandler) CreateAbsent(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.service.CreateAbsent(r.Context(), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAbsentResponse(a))
}

// UpdateAbsent は欠席記録を更新する。
// PUT/PATCH /absents/{id}
func (h *LedgerHandler) UpdateAbsent(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.service.UpdateAbsent(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsentResponse(a))
}

// DeleteAbsent は欠席記録を削除する。
// DELETE /absents/{id}
func (h *LedgerHandler) DeleteAbsent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAbsent(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
