package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
	"github.com/hitoshi/rollcall/internal/venue"
)

type fakeSongs struct {
	repository.SongRepository
	byID    map[string]*model.Song
	filter  repository.SongFilter
	deleted []string
}

func (f *fakeSongs) FindByID(_ context.Context, id string) (*model.Song, error) {
	return f.byID[id], nil
}

func (f *fakeSongs) List(_ context.Context, filter repository.SongFilter) ([]*model.Song, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeSongs) Create(_ context.Context, s *model.Song) error {
	f.byID[s.ID] = s
	return nil
}

func (f *fakeSongs) Update(_ context.Context, s *model.Song) error {
	f.byID[s.ID] = s
	return nil
}

func (f *fakeSongs) DeleteByID(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePerformances struct {
	repository.PerformanceRepository
	byID map[string]*model.Performance
}

func (f *fakePerformances) FindByID(_ context.Context, id string) (*model.Performance, error) {
	return f.byID[id], nil
}

func (f *fakePerformances) List(context.Context, string) ([]*model.Performance, error) {
	return []*model.Performance{
		{ID: "p-1", VenueIDs: []string{"v-1"}},
		{ID: "p-2", VenueIDs: []string{"v-2"}},
	}, nil
}

func (f *fakePerformances) Create(_ context.Context, p *model.Performance) error {
	f.byID[p.ID] = p
	return nil
}

func (f *fakePerformances) Update(_ context.Context, p *model.Performance) error {
	f.byID[p.ID] = p
	return nil
}

type fakeActivities struct {
	repository.ActivityRepository
	byID    map[string]*model.Activity
	updated *model.Activity
	deleted []string
}

func (f *fakeActivities) FindByID(_ context.Context, id string) (*model.Activity, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (f *fakeActivities) Create(_ context.Context, a *model.Activity) error {
	if a.Venue != nil {
		a.VenueID = &a.Venue.ID
	}
	f.byID[a.ID] = a
	return nil
}

func (f *fakeActivities) Update(_ context.Context, a *model.Activity) error {
	f.updated = a
	return nil
}

func (f *fakeActivities) DeleteByID(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type finder[T any] map[string]*T

func (f finder[T]) FindByID(_ context.Context, id string) (*T, error) {
	return f[id], nil
}

var fixedNow = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc          *Service
	songs        *fakeSongs
	performances *fakePerformances
	activities   *fakeActivities
}

func newFixture() fixture {
	f := fixture{
		songs:        &fakeSongs{byID: map[string]*model.Song{"s-1": {ID: "s-1", Title: "Anthem", DivisionIDs: []string{"d-1", "d-gone"}}}},
		performances: &fakePerformances{byID: map[string]*model.Performance{}},
		activities:   &fakeActivities{byID: map[string]*model.Activity{}},
	}
	f.svc = NewService(Deps{
		Songs:        f.songs,
		Performances: f.performances,
		Activities:   f.activities,
		Divisions:    finder[model.Division]{"d-1": {ID: "d-1", Name: "Choir"}},
		Venues:       finder[model.Venue]{"v-1": {ID: "v-1"}},
		RichText:     security.NewRichTextSanitizer(),
	})
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

func TestListSongs_Filters(t *testing.T) {
	f := newFixture()

	songs, err := f.svc.ListSongs(context.Background(), SongQuery{DivisionID: "d-1", StartDate: "2026-01-01"})
	if err != nil {
		t.Fatalf("ListSongs: %v", err)
	}
	if songs == nil {
		t.Error("empty list must be non-nil")
	}
	if f.songs.filter.DivisionID != "d-1" || f.songs.filter.From == nil || f.songs.filter.To != nil {
		t.Errorf("filter = %+v", f.songs.filter)
	}

	_, err = f.svc.ListSongs(context.Background(), SongQuery{EndDate: "yesterday"})
	assertCode(t, err, model.ErrCodeInvalidDate)
}

func TestCreateSong(t *testing.T) {
	f := newFixture()

	s, err := f.svc.CreateSong(context.Background(), SongInput{
		Title:       ptr("Hymn"),
		Date:        ptr("2026-05-01"),
		DivisionIDs: ptr([]string{"d-1"}),
	})
	if err != nil {
		t.Fatalf("CreateSong: %v", err)
	}
	if s.ID == "" || s.Date.Format(model.DateLayout) != "2026-05-01" || len(s.DivisionIDs) != 1 {
		t.Errorf("song = %+v", s)
	}

	_, err = f.svc.CreateSong(context.Background(), SongInput{Title: ptr("Hymn")})
	assertCode(t, err, model.ErrCodeValidation)

	_, err = f.svc.CreateSong(context.Background(), SongInput{
		Title:       ptr("Hymn"),
		Date:        ptr("2026-05-01"),
		DivisionIDs: ptr([]string{"d-unknown"}),
	})
	assertCode(t, err, model.ErrCodeValidation)
}

func TestUpdateAndDeleteSong(t *testing.T) {
	f := newFixture()

	s, err := f.svc.UpdateSong(context.Background(), "s-1", SongInput{Title: ptr("Anthem II")})
	if err != nil {
		t.Fatalf("UpdateSong: %v", err)
	}
	if s.Title != "Anthem II" || len(s.DivisionIDs) != 2 {
		t.Errorf("song = %+v", s)
	}

	_, err = f.svc.UpdateSong(context.Background(), "s-1", SongInput{Date: ptr("05/01/2026")})
	assertCode(t, err, model.ErrCodeValidation)

	if err := f.svc.DeleteSong(context.Background(), "s-1"); err != nil {
		t.Fatalf("DeleteSong: %v", err)
	}
	assertCode(t, f.svc.DeleteSong(context.Background(), "s-missing"), model.ErrCodeSongNotFound)
}

func TestSongDivisions_SkipsMissing(t *testing.T) {
	f := newFixture()

	divisions, err := f.svc.SongDivisions(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("SongDivisions: %v", err)
	}
	if len(divisions) != 1 || divisions[0].ID != "d-1" {
		t.Errorf("divisions = %+v", divisions)
	}
}

func TestPerformances(t *testing.T) {
	f := newFixture()

	list, err := f.svc.ListPerformances(context.Background(), "", "v-2")
	if err != nil {
		t.Fatalf("ListPerformances: %v", err)
	}
	if len(list) != 1 || list[0].ID != "p-2" {
		t.Errorf("list = %+v", list)
	}

	p, err := f.svc.CreatePerformance(context.Background(), PerformanceInput{
		DivisionID: ptr("d-1"),
		VenueIDs:   ptr([]string{"v-1"}),
	})
	if err != nil {
		t.Fatalf("CreatePerformance: %v", err)
	}
	if p.DivisionID == nil || *p.DivisionID != "d-1" || len(p.VenueIDs) != 1 {
		t.Errorf("performance = %+v", p)
	}

	p, err = f.svc.UpdatePerformance(context.Background(), p.ID, PerformanceInput{DivisionID: ptr("")})
	if err != nil {
		t.Fatalf("UpdatePerformance: %v", err)
	}
	if p.DivisionID != nil {
		t.Errorf("division should be cleared, got %v", *p.DivisionID)
	}

	_, err = f.svc.CreatePerformance(context.Background(), PerformanceInput{VenueIDs: ptr([]string{"v-unknown"})})
	assertCode(t, err, model.ErrCodeValidation)

	_, err = f.svc.GetPerformance(context.Background(), "p-missing")
	assertCode(t, err, model.ErrCodePerformanceNotFound)
}

func TestCreateActivity_WithVenue(t *testing.T) {
	f := newFixture()

	a, err := f.svc.CreateActivity(context.Background(), ActivityInput{
		Title:       ptr("Concert"),
		Description: ptr(`<p onclick="x()">Bring <strong>tickets</strong></p>`),
		Venue:       &venue.Input{Date: ptr("2026-06-01"), StartTime: ptr("19:00"), Place: ptr("Hall")},
	})
	if err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	if a.Venue == nil || a.VenueID == nil || *a.VenueID != a.Venue.ID || a.Venue.Place != "Hall" {
		t.Errorf("activity = %+v", a)
	}
	if a.Description != "<p>Bring <strong>tickets</strong></p>" {
		t.Errorf("description = %q", a.Description)
	}

	_, err = f.svc.CreateActivity(context.Background(), ActivityInput{})
	assertCode(t, err, model.ErrCodeValidation)

	_, err = f.svc.CreateActivity(context.Background(), ActivityInput{Title: ptr("x"), Venue: &venue.Input{Place: ptr("Hall")}})
	assertCode(t, err, model.ErrCodeValidation)
}

func TestUpdateActivity(t *testing.T) {
	f := newFixture()
	f.activities.byID["a-1"] = &model.Activity{
		ID:      "a-1",
		Title:   "Concert",
		VenueID: ptr("v-9"),
		Venue:   &model.Venue{ID: "v-9", Place: "Hall"},
	}

	t.Run("開催予定を更新する", func(t *testing.T) {
		_, err := f.svc.UpdateActivity(context.Background(), "a-1", ActivityInput{Venue: &venue.Input{Place: ptr("Park")}})
		if err != nil {
			t.Fatalf("UpdateActivity: %v", err)
		}
		got := f.activities.updated
		if got.Venue == nil || got.Venue.ID != "v-9" || got.Venue.Place != "Park" || got.Title != "Concert" {
			t.Errorf("updated = %+v venue=%+v", got, got.Venue)
		}
	})

	t.Run("開催予定を指定しない場合は触らない", func(t *testing.T) {
		_, err := f.svc.UpdateActivity(context.Background(), "a-1", ActivityInput{ShowPoster: ptr(true)})
		if err != nil {
			t.Fatalf("UpdateActivity: %v", err)
		}
		if f.activities.updated.Venue != nil || !f.activities.updated.ShowPoster {
			t.Errorf("updated = %+v", f.activities.updated)
		}
	})

	t.Run("存在しない", func(t *testing.T) {
		_, err := f.svc.UpdateActivity(context.Background(), "a-missing", ActivityInput{})
		assertCode(t, err, model.ErrCodeActivityNotFound)
	})
}

func TestDeleteActivity(t *testing.T) {
	f := newFixture()
	f.activities.byID["a-1"] = &model.Activity{ID: "a-1"}

	if err := f.svc.DeleteActivity(context.Background(), "a-1"); err != nil {
		t.Fatalf("DeleteActivity: %v", err)
	}
	if len(f.activities.deleted) != 1 {
		t.Errorf("deleted = %v", f.activities.deleted)
	}
	assertCode(t, f.svc.DeleteActivity(context.Background(), "a-1x"), model.ErrCodeActivityNotFound)
}
