package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/catalog"
	"github.com/hitoshi/rollcall/internal/model"
)

// CatalogServiceInterface は練習曲・公演・アクティビティのハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListSongs(ctx context.Context, q catalog.SongQuery) ([]*model.Song, error)
	GetSong(ctx context.Context, id string) (*model.Song, error)
	CreateSong(ctx context.Context, in catalog.SongInput) (*model.Song, error)
	UpdateSong(ctx context.Context, id string, in catalog.SongInput) (*model.Song, error)
	DeleteSong(ctx context.Context, id string) error
	SongDivisions(ctx context.Context, id string) ([]*model.Division, error)

	ListPerformances(ctx context.Context, divisionID, venueID string) ([]*model.Performance, error)
	GetPerformance(ctx context.Context, id string) (*model.Performance, error)
	CreatePerformance(ctx context.Context, in catalog.PerformanceInput) (*model.Performance, error)
	UpdatePerformance(ctx context.Context, id string, in catalog.PerformanceInput) (*model.Performance, error)
	DeletePerformance(ctx context.Context, id string) error

	ListActivities(ctx context.Context) ([]*model.Activity, error)
	GetActivity(ctx context.Context, id string) (*model.Activity, error)
	CreateActivity(ctx context.Context, in catalog.ActivityInput) (*model.Activity, error)
	UpdateActivity(ctx context.Context, id string, in catalog.ActivityInput) (*model.Activity, error)
	// DeleteActivity は紐づく開催予定も削除する。
	DeleteActivity(ctx context.Context, id string) error
}

// CatalogHandler は練習曲・公演・アクティビティのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

type songRequest struct {
	Title     *string   `json:"title" validate:"omitempty,max=256"`
	Date      *string   `json:"date"`
	Divisions *[]string `json:"divisions"`
}

type performanceRequest struct {
	Division *string   `json:"division"`
	Venue    *[]string `json:"venue"`
}

type activityRequest struct {
	Title      *string       `json:"title" validate:"omitempty,max=256"`
	Desc       *string       `json:"desc" validate:"omitempty,max=1024"`
	ShowPoster *bool         `json:"showPoster"`
	Poster     *string       `json:"poster"`
	Venue      *venueRequest `json:"venue"`
}

func (req activityRequest) input() catalog.ActivityInput {
	in := catalog.ActivityInput{
		Title:       req.Title,
		Description: req.Desc,
		ShowPoster:  req.ShowPoster,
		Poster:      req.Poster,
	}
	if req.Venue != nil {
		v := req.Venue.input()
		in.Venue = &v
	}
	return in
}

// --- 練習曲 ---

// ListSongs は練習曲一覧を返す。
// GET /songs?division={id}&start_date=YYYY-MM-DD&end_date=YYYY-MM-DD
func (h *CatalogHandler) ListSongs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	songs, err := h.service.ListSongs(r.Context(), catalog.SongQuery{
		DivisionID: q.Get("division"),
		StartDate:  q.Get("start_date"),
		EndDate:    q.Get("end_date"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSongResponses(songs))
}

// GetSong は練習曲を返す。
// GET /songs/{id}
func (h *CatalogHandler) GetSong(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSong(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSongResponse(s))
}

// CreateSong は練習曲を作成する。
// POST /songs
func (h *CatalogHandler) CreateSong(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	s, err := h.service.CreateSong(r.Context(), catalog.SongInput{Title: req.Title, Date: req.Date, DivisionIDs: req.Divisions})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSongResponse(s))
}

// UpdateSong は練習曲を更新する。
// PUT/PATCH /songs/{id}
func (h *CatalogHandler) UpdateSong(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	s, err := h.service.UpdateSong(r.Context(), chi.URLParam(r, "id"),
		catalog.SongInput{Title: req.Title, Date: req.Date, DivisionIDs: req.Divisions})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSongResponse(s))
}

// DeleteSong は練習曲を削除する。
// DELETE /songs/{id}
func (h *CatalogHandler) DeleteSong(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSong(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SongDivisions は練習曲に紐づく部門を返す。
// GET /songs/{id}/divisions
func (h *CatalogHandler) SongDivisions(w http.ResponseWriter, r *http.Request) {
	divisions, err := h.service.SongDivisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionResponses(divisions))
}

// --- 公演 ---

// ListPerformances は公演一覧を返す。
// GET /performances?division={id}&venue={id}
func (h *CatalogHandler) ListPerformances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.ListPerformances(r.Context(), q.Get("division"), q.Get("venue"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPerformanceResponses(list))
}

// GetPerformance は公演を返す。
// GET /performances/{id}
func (h *CatalogHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPerformance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPerformanceResponse(p))
}

// CreatePerformance は公演を作成する。
// POST /performances
func (h *CatalogHandler) CreatePerformance(w http.ResponseWriter, r *http.Request) {
	var req performanceRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	p, err := h.service.CreatePerformance(r.Context(), catalog.PerformanceInput{DivisionID: req.Division, VenueIDs: req.Venue})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPerformanceResponse(p))
}

// UpdatePerformance は公演を更新する。
// PUT/PATCH /performances/{id}
func (h *CatalogHandler) UpdatePerformance(w http.ResponseWriter, r *http.Request) {
	var req performanceRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	p, err := h.service.UpdatePerformance(r.Context(), chi.URLParam(r, "id"),
		catalog.PerformanceInput{DivisionID: req.Division, VenueIDs: req.Venue})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPerformanceResponse(p))
}

// DeletePerformance は公演を削除する。
// DELETE /performances/{id}
func (h *CatalogHandler) DeletePerformance(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePerformance(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- アクティビティ ---

// ListActivities はアクティビティ一覧を返す。
// GET /activities
func (h *CatalogHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListActivities(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityResponses(list))
}

// GetActivity はアクティビティを返す。
// GET /activities/{id}
func (h *CatalogHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityResponse(a))
}

// CreateActivity はアクティビティと開催予定を作成する。
// POST /activities
func (h *CatalogHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.service.CreateActivity(r.Context(), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityResponse(a))
}

// UpdateActivity はアクティビティを更新する。
// PUT/PATCH /activities/{id}
func (h *CatalogHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.service.UpdateActivity(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityResponse(a))
}

// DeleteActivity はアクティビティを削除する。
// DELETE /activities/{id}
func (h *CatalogHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteActivity(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
