package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// --- モック定義 ---

type fakeLedger struct {
	repository.LedgerRepository
	attendances map[string]*model.Attendance
	absents     map[string]*model.Absent
	created     []*model.Attendance
	createdAbs  []*model.Absent
	filter      model.LedgerFilter
	deleted     []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		attendances: map[string]*model.Attendance{"a-1": {ID: "a-1", VenueID: "v-1", DivisionID: "d-1", Sessions: 2, Attended: 2}},
		absents:     map[string]*model.Absent{"ab-1": {ID: "ab-1", VenueID: "v-1", DivisionID: "d-1", Sessions: 1, Reason: "sick"}},
	}
}

func (f *fakeLedger) FindAttendance(_ context.Context, id string) (*model.Attendance, error) {
	if a, ok := f.attendances[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (f *fakeLedger) ListAttendances(_ context.Context, filter model.LedgerFilter) ([]*model.Attendance, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeLedger) CreateAttendances(_ context.Context, list []*model.Attendance) error {
	f.created = append(f.created, list...)
	return nil
}

func (f *fakeLedger) UpdateAttendance(_ context.Context, a *model.Attendance) error {
	f.attendances[a.ID] = a
	return nil
}

func (f *fakeLedger) DeleteAttendance(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeLedger) FindAbsent(_ context.Context, id string) (*model.Absent, error) {
	if a, ok := f.absents[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (f *fakeLedger) ListAbsents(_ context.Context, filter model.LedgerFilter) ([]*model.Absent, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeLedger) CreateAbsent(_ context.Context, a *model.Absent) error {
	f.createdAbs = append(f.createdAbs, a)
	return nil
}

func (f *fakeLedger) UpdateAbsent(_ context.Context, a *model.Absent) error {
	f.absents[a.ID] = a
	return nil
}

type finder[T any] map[string]*T

func (f finder[T]) FindByID(_ context.Context, id string) (*T, error) {
	return f[id], nil
}

type countingMetrics struct {
	rows map[string]int
}

func (m *countingMetrics) RecordAuthEvent(string, string)  {}
func (m *countingMetrics) RecordTransition(string, string) {}
func (m *countingMetrics) RecordLedgerRows(kind string, n int) {
	m.rows[kind] += n
}
func (m *countingMetrics) RecordHTTPStatus(int)               {}
func (m *countingMetrics) RecordRequestLatency(time.Duration) {}
func (m *countingMetrics) RecordTokensPurged(int64)           {}

// --- ヘルパー ---

func newTestService() (*Service, *fakeLedger, *countingMetrics) {
	ledger := newFakeLedger()
	m := &countingMetrics{rows: map[string]int{}}
	svc := NewService(ledger,
		finder[model.Venue]{"v-1": {ID: "v-1"}},
		finder[model.Division]{"d-1": {ID: "d-1"}},
		m,
	)
	return svc, ledger, m
}

func ptr[T any](v T) *T { return &v }

func validationFields(t *testing.T, err error) map[string][]string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	return apiErr.Fields
}

// --- テスト ---

func TestCreateAttendance_Defaults(t *testing.T) {
	svc, ledger, m := newTestService()

	a, err := svc.CreateAttendance(context.Background(), Input{VenueID: ptr("v-1"), DivisionID: ptr("d-1")})
	if err != nil {
		t.Fatalf("CreateAttendance: %v", err)
	}
	if a.Sessions != 1 || a.Attended != 0 || a.ID == "" {
		t.Errorf("attendance = %+v", a)
	}
	if len(ledger.created) != 1 || m.rows["attendance"] != 1 {
		t.Errorf("created = %d, metric = %d", len(ledger.created), m.rows["attendance"])
	}
}

// 1件でも不正なら何も作成しないこと
func TestBulkCreateAttendances_AllOrNothing(t *testing.T) {
	svc, ledger, _ := newTestService()

	_, err := svc.BulkCreateAttendances(context.Background(), []Input{
		{VenueID: ptr("v-1"), DivisionID: ptr("d-1"), Sessions: ptr(2), Attended: ptr(2)},
		{VenueID: ptr("v-missing"), DivisionID: ptr("d-1")},
	})
	fields := validationFields(t, err)
	if _, ok := fields["1.venue"]; !ok {
		t.Errorf("fields = %v, want 1.venue", fields)
	}
	if len(ledger.created) != 0 {
		t.Error("nothing must be created when any item is invalid")
	}

	list, err := svc.BulkCreateAttendances(context.Background(), []Input{
		{VenueID: ptr("v-1"), DivisionID: ptr("d-1")},
		{VenueID: ptr("v-1"), DivisionID: ptr("d-1"), Attended: ptr(1)},
	})
	if err != nil || len(list) != 2 || len(ledger.created) != 2 {
		t.Errorf("bulk = %v, %v", list, err)
	}

	_, err = svc.BulkCreateAttendances(context.Background(), nil)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("empty bulk err = %v", err)
	}
}

func TestCreateAttendance_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	fields := validationFields(t, errOnly(svc.CreateAttendance(context.Background(), Input{Sessions: ptr(-1)})))
	for _, k := range []string{"venue", "division", "sessions"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("missing field error %q in %v", k, fields)
		}
	}
}

func errOnly(_ *model.Attendance, err error) error { return err }

func TestUpdateAttendance(t *testing.T) {
	svc, ledger, _ := newTestService()

	a, err := svc.UpdateAttendance(context.Background(), "a-1", Input{Attended: ptr(1)})
	if err != nil {
		t.Fatalf("UpdateAttendance: %v", err)
	}
	if a.Attended != 1 || a.Sessions != 2 || ledger.attendances["a-1"].Attended != 1 {
		t.Errorf("attendance = %+v", a)
	}

	_, err = svc.UpdateAttendance(context.Background(), "a-missing", Input{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAttendanceNotFound {
		t.Errorf("err = %v", err)
	}
}

func TestListAbsents_Filter(t *testing.T) {
	svc, ledger, _ := newTestService()

	list, err := svc.ListAbsents(context.Background(), Filter{DivisionID: "d-1", Reason: "sick"})
	if err != nil {
		t.Fatalf("ListAbsents: %v", err)
	}
	if list == nil {
		t.Error("empty list must be non-nil")
	}
	if len(ledger.filter.DivisionIDs) != 1 || ledger.filter.Reason != "sick" {
		t.Errorf("filter = %+v", ledger.filter)
	}

	if _, err := svc.ListAttendances(context.Background(), Filter{Reason: "sick"}); err != nil {
		t.Fatalf("ListAttendances: %v", err)
	}
	if ledger.filter.Reason != "" || ledger.filter.DivisionIDs != nil {
		t.Errorf("attendance filter = %+v", ledger.filter)
	}
}

func TestCreateAbsent_DefaultReason(t *testing.T) {
	svc, ledger, m := newTestService()

	a, err := svc.CreateAbsent(context.Background(), Input{VenueID: ptr("v-1"), DivisionID: ptr("d-1")})
	if err != nil {
		t.Fatalf("CreateAbsent: %v", err)
	}
	if a.Reason != model.DefaultAbsentReason || a.Sessions != 1 {
		t.Errorf("absent = %+v", a)
	}
	if len(ledger.createdAbs) != 1 || m.rows["absent"] != 1 {
		t.Error("absent not recorded")
	}
}

func TestDeleteAbsent(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.DeleteAbsent(context.Background(), "ab-missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAbsentNotFound {
		t.Errorf("err = %v", err)
	}
}
