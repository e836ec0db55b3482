package division

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
	"github.com/hitoshi/rollcall/internal/venue"
)

// --- モック定義 ---
// 使わないメソッドは埋め込んだインターフェース（nil）に委ね、呼ばれた時点でpanicさせる。

type fakeDivisions struct {
	repository.DivisionRepository
	byID      map[string]*model.Division
	items     []model.DivisionListItem
	createErr error
	created   []*model.Division
	updated   []*model.Division
	deleted   []string
	statsDay  time.Time
}

func (f *fakeDivisions) FindByID(_ context.Context, id string) (*model.Division, error) {
	if d, ok := f.byID[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (f *fakeDivisions) List(context.Context, model.DivisionFilter) ([]model.DivisionListItem, error) {
	return f.items, nil
}

func (f *fakeDivisions) Create(_ context.Context, d *model.Division) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDivisions) Update(_ context.Context, d *model.Division) error {
	f.updated = append(f.updated, d)
	return nil
}

func (f *fakeDivisions) DeleteByID(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeDivisions) VenueStats(_ context.Context, _ string, today time.Time) (model.VenueStats, error) {
	f.statsDay = today
	return model.VenueStats{Total: 3, Upcoming: 1, Past: 2}, nil
}

type fakeVenues struct {
	repository.VenueRepository
	byID       map[string]*model.Venue
	createdFor []*model.PendingRequest
}

func (f *fakeVenues) FindByID(_ context.Context, id string) (*model.Venue, error) {
	return f.byID[id], nil
}

func (f *fakeVenues) List(context.Context, model.VenueFilter) ([]*model.Venue, error) {
	return []*model.Venue{{ID: "v-1"}}, nil
}

func (f *fakeVenues) CreateForDivision(_ context.Context, v *model.Venue, req *model.PendingRequest) error {
	f.createdFor = append(f.createdFor, req)
	return nil
}

type fakeRequests struct {
	repository.PendingRequestRepository
	removed [][2]string
}

func (f *fakeRequests) List(context.Context, model.PendingRequestFilter) ([]*model.PendingRequest, error) {
	return []*model.PendingRequest{{ID: "r-1"}}, nil
}

func (f *fakeRequests) DeleteByDivisionAndVenue(_ context.Context, divisionID, venueID string) (bool, error) {
	f.removed = append(f.removed, [2]string{divisionID, venueID})
	return true, nil
}

type fakeSongs struct{ repository.SongRepository }

func (fakeSongs) List(context.Context, repository.SongFilter) ([]*model.Song, error) {
	return []*model.Song{{ID: "s-1", Title: "Anthem"}}, nil
}

type fakeLedger struct{ repository.LedgerRepository }

func (fakeLedger) ListAttendances(context.Context, model.LedgerFilter) ([]*model.Attendance, error) {
	return []*model.Attendance{{ID: "a-1"}}, nil
}

func (fakeLedger) ListAbsents(context.Context, model.LedgerFilter) ([]*model.Absent, error) {
	return nil, nil
}

type fakeRatings struct{ repository.RatingRepository }

func (fakeRatings) List(context.Context, repository.RatingFilter) ([]*model.Rating, error) {
	return []*model.Rating{{Value: 4}, {Value: 5}, {Value: 4}}, nil
}

type fakePerformances struct {
	repository.PerformanceRepository
}

func (fakePerformances) List(context.Context, string) ([]*model.Performance, error) {
	return nil, nil
}

type fakeUsers struct{ repository.UserRepository }

func (fakeUsers) ListByDivision(context.Context, string) ([]*model.User, error) {
	return []*model.User{{ID: "u-1"}}, nil
}

// --- ヘルパー ---

var fixedNow = time.Date(2026, 5, 20, 22, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	divisions *fakeDivisions
	venues    *fakeVenues
	requests  *fakeRequests
}

func newFixture() fixture {
	f := fixture{
		divisions: &fakeDivisions{byID: map[string]*model.Division{
			"d-1": {ID: "d-1", Name: "Choir", Role: "Soprano"},
		}},
		venues:   &fakeVenues{byID: map[string]*model.Venue{"v-1": {ID: "v-1"}}},
		requests: &fakeRequests{},
	}
	f.svc = NewService(Repos{
		Divisions:    f.divisions,
		Venues:       f.venues,
		Requests:     f.requests,
		Songs:        fakeSongs{},
		Ledger:       fakeLedger{},
		Ratings:      fakeRatings{},
		Performances: fakePerformances{},
		Users:        fakeUsers{},
	}, security.NewTextSanitizer())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func ptr[T any](v T) *T { return &v }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != code {
		t.Fatalf("err = %v, want code %s", err, code)
	}
}

// --- テスト ---

func TestCreate_DefaultsAndSanitizes(t *testing.T) {
	f := newFixture()

	d, err := f.svc.Create(context.Background(), Input{
		Name:       ptr("Band"),
		Role:       ptr("Brass"),
		ShortWords: ptr("<script>x()</script>Loud and proud"),
		ShowUser:   ptr(false),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.ID == "" || d.UserRole != "Member" || !d.IsActive || d.ShowUser {
		t.Errorf("division = %+v", d)
	}
	if d.ShortWords != "Loud and proud" {
		t.Errorf("short words = %q", d.ShortWords)
	}
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), Input{Name: ptr("Band")})
	assertCode(t, err, model.ErrCodeValidation)

	f.divisions.createErr = &pq.Error{Code: "23505", Constraint: "divisions_name_role_key"}
	_, err = f.svc.Create(context.Background(), Input{Name: ptr("Choir"), Role: ptr("Soprano")})
	assertCode(t, err, model.ErrCodeDuplicateDivision)
}

func TestUpdate_Partial(t *testing.T) {
	f := newFixture()

	d, err := f.svc.Update(context.Background(), "d-1", Input{IsActive: ptr(false)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d.IsActive || d.Name != "Choir" {
		t.Errorf("division = %+v", d)
	}

	_, err = f.svc.Update(context.Background(), "d-missing", Input{})
	assertCode(t, err, model.ErrCodeDivisionNotFound)
}

func TestDetail(t *testing.T) {
	f := newFixture()

	d, err := f.svc.Detail(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(d.Venues) != 1 || len(d.Songs) != 1 || len(d.Attendances) != 1 || len(d.PendingRequests) != 1 {
		t.Errorf("detail = %+v", d)
	}
	if d.AverageRating != 4.33 {
		t.Errorf("average = %v, want 4.33", d.AverageRating)
	}
	if d.VenueStats.Total != 3 || f.divisions.statsDay.Format(model.DateLayout) != "2026-05-20" {
		t.Errorf("venue stats = %+v at %v", d.VenueStats, f.divisions.statsDay)
	}
}

func TestCreateVenue(t *testing.T) {
	f := newFixture()

	v, err := f.svc.CreateVenue(context.Background(), "d-1", venue.Input{Date: ptr("2026-06-01"), StartTime: ptr("18:00")})
	if err != nil {
		t.Fatalf("CreateVenue: %v", err)
	}
	if len(f.venues.createdFor) != 1 {
		t.Fatalf("requests created = %d", len(f.venues.createdFor))
	}
	req := f.venues.createdFor[0]
	if req.VenueID != v.ID || req.DivisionID != "d-1" || req.State() != model.StateNew || req.UserID != nil {
		t.Errorf("request = %+v", req)
	}

	_, err = f.svc.CreateVenue(context.Background(), "d-missing", venue.Input{})
	assertCode(t, err, model.ErrCodeDivisionNotFound)
}

func TestRemoveVenue(t *testing.T) {
	f := newFixture()

	if err := f.svc.RemoveVenue(context.Background(), "d-1", "v-1"); err != nil {
		t.Fatalf("RemoveVenue: %v", err)
	}
	if len(f.requests.removed) != 1 || f.requests.removed[0] != [2]string{"d-1", "v-1"} {
		t.Errorf("removed = %v", f.requests.removed)
	}

	assertCode(t, f.svc.RemoveVenue(context.Background(), "d-1", "v-missing"), model.ErrCodeVenueNotFound)
}

func TestUsersAndSongs(t *testing.T) {
	f := newFixture()

	users, err := f.svc.Users(context.Background(), "d-1")
	if err != nil || len(users) != 1 {
		t.Errorf("Users = %v, %v", users, err)
	}
	songs, err := f.svc.Songs(context.Background(), "d-1")
	if err != nil || len(songs) != 1 {
		t.Errorf("Songs = %v, %v", songs, err)
	}
	_, err = f.svc.Users(context.Background(), "d-missing")
	assertCode(t, err, model.ErrCodeDivisionNotFound)
}

func TestList_EmptyIsNonNil(t *testing.T) {
	f := newFixture()

	items, err := f.svc.List(context.Background(), model.DivisionFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if items == nil {
		t.Error("empty list must be non-nil")
	}
}
