package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/rollcall/internal/catalog"
	"github.com/hitoshi/rollcall/internal/ledger"
	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/rating"
)

type fakeLedgerService struct {
	LedgerServiceInterface
	bulkFn func(ctx context.Context, inputs []ledger.Input) ([]*model.Attendance, error)
	listFn func(ctx context.Context, f ledger.Filter) ([]*model.Absent, error)
}

func (f *fakeLedgerService) BulkCreateAttendances(ctx context.Context, inputs []ledger.Input) ([]*model.Attendance, error) {
	return f.bulkFn(ctx, inputs)
}

func (f *fakeLedgerService) ListAbsents(ctx context.Context, filter ledger.Filter) ([]*model.Absent, error) {
	return f.listFn(ctx, filter)
}

func TestLedgerHandler_BulkCreateAttendances(t *testing.T) {
	h := NewLedgerHandler(&fakeLedgerService{
		bulkFn: func(_ context.Context, inputs []ledger.Input) ([]*model.Attendance, error) {
			require.Len(t, inputs, 2)
			assert.Equal(t, "venue-1", *inputs[0].VenueID)
			assert.Equal(t, 3, *inputs[1].Attended)
			out := make([]*model.Attendance, 0, len(inputs))
			for i, in := range inputs {
				out = append(out, &model.Attendance{
					ID:         []string{"a1", "a2"}[i],
					VenueID:    *in.VenueID,
					DivisionID: *in.DivisionID,
					Sessions:   *in.Sessions,
					Attended:   *in.Attended,
				})
			}
			return out, nil
		},
	})

	body := `[
		{"venue":"venue-1","division":"div-1","sessions":4,"attendance":2},
		{"venue":"venue-2","division":"div-1","sessions":4,"attendance":3}
	]`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/attendances/bulk_create", strings.NewReader(body)), adminPrincipal)
	w := httptest.NewRecorder()

	h.BulkCreateAttendances(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var got []map[string]any
	require.NoError(t, jsonDecode(w, &got))
	require.Len(t, got, 2)
	assert.EqualValues(t, 50, got[0]["attendance_rate"])
}

func TestLedgerHandler_BulkCreateAttendances_RejectsObjectBody(t *testing.T) {
	h := NewLedgerHandler(&fakeLedgerService{})

	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/attendances/bulk_create",
		strings.NewReader(`{"venue":"venue-1"}`)), adminPrincipal)
	w := httptest.NewRecorder()

	h.BulkCreateAttendances(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidRequest, decodeErrorBody(t, w).Code)
}

func TestLedgerHandler_ListAbsents_PassesFilter(t *testing.T) {
	h := NewLedgerHandler(&fakeLedgerService{
		listFn: func(_ context.Context, f ledger.Filter) ([]*model.Absent, error) {
			assert.Equal(t, ledger.Filter{VenueID: "v1", DivisionID: "d1", Reason: "sick"}, f)
			return nil, nil
		},
	})

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/absents?venue=v1&division=d1&reason=sick", nil), memberPrincipal)
	w := httptest.NewRecorder()

	h.ListAbsents(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

// --- カタログ ---

type fakeCatalogService struct {
	CatalogServiceInterface
	createActivityFn func(ctx context.Context, in catalog.ActivityInput) (*model.Activity, error)
}

func (f *fakeCatalogService) CreateActivity(ctx context.Context, in catalog.ActivityInput) (*model.Activity, error) {
	return f.createActivityFn(ctx, in)
}

func TestCatalogHandler_CreateActivity_WithVenue(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalogService{
		createActivityFn: func(_ context.Context, in catalog.ActivityInput) (*model.Activity, error) {
			require.NotNil(t, in.Venue)
			assert.Equal(t, "2024-06-01", *in.Venue.Date)
			assert.Equal(t, "Hall", *in.Venue.Place)
			vid := "venue-1"
			return &model.Activity{
				ID:      "act-1",
				Title:   *in.Title,
				VenueID: &vid,
				Venue:   &model.Venue{ID: vid, Place: "Hall"},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/activities", jsonBody(t, map[string]any{
		"title": "Spring concert",
		"venue": map[string]string{"date": "2024-06-01", "place": "Hall"},
	}))
	w := httptest.NewRecorder()

	h.CreateActivity(w, withPrincipal(req, adminPrincipal))

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "Spring concert", body["title"])
	detail := body["venue_detail"].(map[string]any)
	assert.Equal(t, "Hall", detail["place"])
}

// --- 評価 ---

type fakeRatingService struct {
	RatingServiceInterface
	list []*model.Rating
}

func (f *fakeRatingService) List(context.Context, *model.Principal, rating.Query) ([]*model.Rating, error) {
	return f.list, nil
}

func TestRatingHandler_List_IsOwnerFollowsViewer(t *testing.T) {
	mine, other := memberPrincipal.UserID, "user-2"
	h := NewRatingHandler(&fakeRatingService{list: []*model.Rating{
		{ID: "r1", UserID: &mine, DivisionID: "d1", Value: 4},
		{ID: "r2", UserID: &other, DivisionID: "d1", Value: 2},
	}})

	t.Run("認証済み", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.List(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/ratings", nil), memberPrincipal))

		var got []map[string]any
		require.NoError(t, jsonDecode(w, &got))
		require.Len(t, got, 2)
		assert.Equal(t, true, got[0]["is_owner"])
		assert.Equal(t, false, got[1]["is_owner"])
	})

	t.Run("匿名", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.List(w, httptest.NewRequest(http.MethodGet, "/ratings", nil))

		var got []map[string]any
		require.NoError(t, jsonDecode(w, &got))
		for _, r := range got {
			assert.Equal(t, false, r["is_owner"])
		}
	})
}
