package report

import (
	"testing"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		attended, total int
		want            float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{1, 4, 25},
		{2, 2, 100},
	}
	for _, tt := range tests {
		if got := Percentage(tt.attended, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.attended, tt.total, got, tt.want)
		}
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(66.666666); got != 66.67 {
		t.Errorf("Round2 = %v", got)
	}
	if got := Round2(2); got != 2 {
		t.Errorf("Round2 = %v", got)
	}
}

func strptr(s string) *string { return &s }

func TestSummarize(t *testing.T) {
	twoHours := &model.Venue{StartTime: "10:00:00", EndTime: strptr("12:00:00")}
	oneHour := &model.Venue{StartTime: "18:00:00", EndTime: strptr("19:00:00")}
	open := &model.Venue{StartTime: "18:00:00"}

	st := summarize(
		[]*model.Attendance{
			{Sessions: 2, Attended: 2, Venue: twoHours},
			{Sessions: 1, Attended: 0, Venue: open},
		},
		[]*model.Absent{
			{Sessions: 1, Venue: oneHour},
		},
	)

	if st.TotalSessions != 4 || st.AttendedSessions != 2 {
		t.Errorf("sessions = %d/%d", st.AttendedSessions, st.TotalSessions)
	}
	if st.AttendancePercentage != 50 {
		t.Errorf("percentage = %v", st.AttendancePercentage)
	}
	if st.AttendedHours != 7200 || st.TotalHours != 10800 {
		t.Errorf("hours (seconds) = attended %v total %v", st.AttendedHours, st.TotalHours)
	}
}

// 記録が無い場合も0除算にならないこと
func TestSummarize_Empty(t *testing.T) {
	st := summarize(nil, nil)
	if st.TotalSessions != 0 || st.AttendancePercentage != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestTopAbsenceReason(t *testing.T) {
	if got := topAbsenceReason(nil); got != nil {
		t.Errorf("empty = %+v, want nil", got)
	}

	got := topAbsenceReason([]*model.Absent{
		{Reason: "sick"}, {Reason: "work"}, {Reason: "sick"}, {Reason: "work"}, {Reason: "travel"},
	})
	if got == nil || got.Reason != "sick" || got.Value != 2 {
		t.Errorf("top = %+v, want sick/2 (ties broken by name)", got)
	}
}

func TestSummarizeRatings(t *testing.T) {
	empty := summarizeRatings(nil)
	if empty.Count != 0 || empty.Average != 0 || len(empty.Distribution) != 5 {
		t.Errorf("empty = %+v", empty)
	}

	st := summarizeRatings([]*model.Rating{
		{Value: 1.0}, {Value: 1.5}, {Value: 2.0}, {Value: 4.5}, {Value: 5.0}, {Value: 3.0},
	})
	want := map[string]int{"1": 2, "2": 1, "3": 1, "4": 1, "5": 1}
	for k, v := range want {
		if st.Distribution[k] != v {
			t.Errorf("bucket %s = %d, want %d", k, st.Distribution[k], v)
		}
	}
	if st.Count != 6 {
		t.Errorf("count = %d", st.Count)
	}
	if st.Average != 2.83 {
		t.Errorf("average = %v, want 2.83", st.Average)
	}
}

func TestSubMonths(t *testing.T) {
	tests := []struct {
		in   time.Time
		n    int
		want string
	}{
		{time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC), 3, "2026-02-15"},
		{time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), 3, "2026-02-28"},
		{time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 2, "2025-11-10"},
		{time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 0, "2026-01-10"},
	}
	for _, tt := range tests {
		if got := subMonths(tt.in, tt.n).Format(model.DateLayout); got != tt.want {
			t.Errorf("subMonths(%s, %d) = %s, want %s", tt.in.Format(model.DateLayout), tt.n, got, tt.want)
		}
	}
}

// 記録の無い月と部門は0で埋められること
func TestBucketMonthly_ZeroFills(t *testing.T) {
	since := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	rows := []repository.MonthlyAttendanceRow{
		{Month: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), DivisionName: "Choir", Attended: 4},
		{Month: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), DivisionName: "Band", Attended: 2},
	}

	buckets := bucketMonthly(rows, []string{"Choir", "Band"}, since, today)

	if len(buckets) != 4 {
		t.Fatalf("len = %d, want 4 (Feb..May)", len(buckets))
	}
	wantMonths := []time.Month{time.February, time.March, time.April, time.May}
	for i, b := range buckets {
		if b.Month.Month() != wantMonths[i] {
			t.Errorf("bucket %d month = %s", i, b.Month.Month())
		}
		if len(b.Attended) != 2 {
			t.Errorf("bucket %d has %d divisions, want 2", i, len(b.Attended))
		}
	}
	if buckets[1].Attended["Choir"] != 4 || buckets[1].Attended["Band"] != 0 {
		t.Errorf("March = %v", buckets[1].Attended)
	}
	if buckets[3].Attended["Band"] != 2 {
		t.Errorf("May = %v", buckets[3].Attended)
	}
	if buckets[2].Attended["Choir"] != 0 {
		t.Errorf("April = %v", buckets[2].Attended)
	}
}
