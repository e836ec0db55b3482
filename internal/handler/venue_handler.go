package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/venue"
)

// VenueServiceInterface は開催予定ハンドラーが必要とするサービスインターフェース。
type VenueServiceInterface interface {
	List(ctx context.Context, f venue.ListFilter) ([]*model.Venue, error)
	Get(ctx context.Context, id string) (*model.Venue, error)
	Create(ctx context.Context, in venue.Input) (*model.Venue, error)
	Update(ctx context.Context, id string, in venue.Input) (*model.Venue, error)
	Delete(ctx context.Context, id string) error
	Upcoming(ctx context.Context) ([]*model.Venue, error)
	WithDivision(ctx context.Context) ([]*model.Venue, error)
	UpcomingWithDivision(ctx context.Context, users string) ([]*model.Venue, error)
	Divisions(ctx context.Context, venueID string) ([]model.DivisionListItem, error)
}

// VenueHandler は開催予定のHTTPハンドラー。
type VenueHandler struct {
	service VenueServiceInterface
}

// NewVenueHandler はVenueHandlerを生成する。
func NewVenueHandler(service VenueServiceInterface) *VenueHandler {
	return &VenueHandler{service: service}
}

// venueRequest は開催予定の入力。endTime に空文字列を指定すると終了時刻を消去する。
type venueRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Place     *string `json:"place" validate:"omitempty,max=256"`
	Role      *string `json:"role" validate:"omitempty,max=128"`
	Img       *string `json:"img"`
}

func (req venueRequest) input() venue.Input {
	return venue.Input{
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Place:     req.Place,
		Role:      req.Role,
		Img:       req.Img,
	}
}

// List は開催予定一覧を返す。
// GET /venues?upcoming=true&division={id}
func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	venues, err := h.service.List(r.Context(), venue.ListFilter{
		Upcoming:   queryBool(r, "upcoming"),
		DivisionID: r.URL.Query().Get("division"),
	})
	h.writeList(w, venues, err)
}

// Get は開催予定を返す。
// GET /venues/{id}
func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVenueResponse(v))
}

// Create は開催予定を作成する。
// POST /venues
func (h *VenueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.service.Create(r.Context(), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVenueResponse(v))
}

// Update は開催予定を更新する。
// PUT/PATCH /venues/{id}
func (h *VenueHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVenueResponse(v))
}

// Delete は開催予定を削除する。
// DELETE /venues/{id}
func (h *VenueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upcoming は30日以内の開催予定を返す。
// GET /venues/upcoming
func (h *VenueHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	venues, err := h.service.Upcoming(r.Context())
	h.writeList(w, venues, err)
}

// WithDivision は部門に紐づく開催予定を返す。
// GET /venues/with_division
func (h *VenueHandler) WithDivision(w http.ResponseWriter, r *http.Request) {
	venues, err := h.service.WithDivision(r.Context())
	h.writeList(w, venues, err)
}

// UpcomingWithDivision は30日以内で部門に紐づく開催予定を返す。
// GET /venues/upcoming-with-division?users=1,3
func (h *VenueHandler) UpcomingWithDivision(w http.ResponseWriter, r *http.Request) {
	venues, err := h.service.UpcomingWithDivision(r.Context(), r.URL.Query().Get("users"))
	h.writeList(w, venues, err)
}

// Divisions は開催予定に紐づく部門を返す。
// GET /venues/{id}/divisions
func (h *VenueHandler) Divisions(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Divisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionListResponses(items))
}

func (h *VenueHandler) writeList(w http.ResponseWriter, venues []*model.Venue, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVenueResponses(venues))
}
