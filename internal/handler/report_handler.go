package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/report"
)

// ReportServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type ReportServiceInterface interface {
	ParseRange(start, end string) (report.DateRange, error)
	UserDivisionStats(ctx context.Context, userID, divisionID string, r report.DateRange) (*report.DivisionStats, error)
	AllDivisionStats(ctx context.Context, divisionID string, r report.DateRange) (*report.DivisionStats, error)
	MonthlyAttendance(ctx context.Context, totalMonths int) ([]report.MonthBucket, error)
	DivisionAttendanceStats(ctx context.Context, divisionID string) (*report.AttendanceTotals, error)
	RatingsStats(ctx context.Context, divisionID string) (*report.RatingStats, error)
	TopAttendance(ctx context.Context, maxUsers int) (*report.TopAttendance, error)
}

// ReportHandler は出欠・評価の集計HTTPハンドラー。
type ReportHandler struct {
	service ReportServiceInterface
}

// NewReportHandler はReportHandlerを生成する。
func NewReportHandler(service ReportServiceInterface) *ReportHandler {
	return &ReportHandler{service: service}
}

// statsRequest は期間集計のボディ。divId は部門IDか "all"。
type statsRequest struct {
	DivID     string `json:"divId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func (req statsRequest) divisionID() string {
	if req.DivID == "" {
		return report.AllDivisions
	}
	return req.DivID
}

type monthlyRequest struct {
	TotalMonths *int `json:"totalMonths" validate:"omitempty,gte=1,lte=120"`
}

type topAttendanceRequest struct {
	MaxUsers *int `json:"max_users" validate:"omitempty,gte=1,lte=100"`
}

type attendanceTotalsResponse struct {
	TotalSessions   int     `json:"total_sessions"`
	TotalAttendance int     `json:"total_attendance"`
	AttendanceRate  float64 `json:"attendance_rate"`
}

type ratingStatsResponse struct {
	Average      float64        `json:"average"`
	Count        int            `json:"count"`
	Distribution map[string]int `json:"distribution"`
}

type topAttendeeResponse struct {
	Name            string `json:"name"`
	TotalAttendance int    `json:"total_attendance"`
}

type topAttendanceResponse struct {
	Top         []topAttendeeResponse `json:"top"`
	Attendance  int                   `json:"attendance"`
	Sessions    int                   `json:"sessions"`
	ActiveUsers int                   `json:"active_users"`
}

// UserDivisionStats はユーザーの所属部門における期間内の出欠集計を返す。
// POST /divisions/users/{user_id}/all
func (h *ReportHandler) UserDivisionStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	dr, err := h.service.ParseRange(req.StartDate, req.EndDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	st, err := h.service.UserDivisionStats(r.Context(), chi.URLParam(r, "user_id"), req.divisionID(), dr)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionStatsResponse(st))
}

// AllDivisionStats は全ユーザーの期間内の出欠集計を返す。
// POST /divisions/get_all_users_divisions_details
func (h *ReportHandler) AllDivisionStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	dr, err := h.service.ParseRange(req.StartDate, req.EndDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	st, err := h.service.AllDivisionStats(r.Context(), req.divisionID(), dr)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDivisionStatsResponse(st))
}

// MonthlyAttendance は月別・部門別の出席数を返す。
// POST /attendances/monthly_attendance
func (h *ReportHandler) MonthlyAttendance(w http.ResponseWriter, r *http.Request) {
	var req monthlyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	months := report.DefaultTotalMonths
	if req.TotalMonths != nil {
		months = *req.TotalMonths
	}

	buckets, err := h.service.MonthlyAttendance(r.Context(), months)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthlyResponse(buckets))
}

// DivisionAttendanceStats は部門の出席集計を返す。
// GET /divisions/{id}/attendance_stats
func (h *ReportHandler) DivisionAttendanceStats(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.DivisionAttendanceStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attendanceTotalsResponse{
		TotalSessions:   t.TotalSessions,
		TotalAttendance: t.TotalAttendance,
		AttendanceRate:  t.AttendanceRate,
	})
}

// RatingsStats は部門の評価集計を返す。
// GET /divisions/{id}/ratings_stats
func (h *ReportHandler) RatingsStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.RatingsStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingStatsResponse{
		Average:      st.Average,
		Count:        st.Count,
		Distribution: st.Distribution,
	})
}

// TopAttendance は出席数上位のユーザーと全体集計を返す。
// POST /users/top_attendance
func (h *ReportHandler) TopAttendance(w http.ResponseWriter, r *http.Request) {
	var req topAttendanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	maxUsers := report.DefaultTopUsers
	if req.MaxUsers != nil {
		maxUsers = *req.MaxUsers
	}

	top, err := h.service.TopAttendance(r.Context(), maxUsers)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := topAttendanceResponse{
		Top:         make([]topAttendeeResponse, 0, len(top.Top)),
		Attendance:  top.Attendance,
		Sessions:    top.Sessions,
		ActiveUsers: top.ActiveUsers,
	}
	for _, t := range top.Top {
		resp.Top = append(resp.Top, topAttendeeResponse{Name: t.Name, TotalAttendance: t.TotalAttendance})
	}
	writeJSON(w, http.StatusOK, resp)
}
