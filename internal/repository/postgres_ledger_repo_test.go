package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/rollcall/internal/model"
)

func TestLedgerWhere(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		filter     model.LedgerFilter
		withReason bool
		wantWhere  string
		wantArgs   int
	}{
		{name: "empty", wantWhere: "", wantArgs: 0},
		{
			name:      "venue and date",
			filter:    model.LedgerFilter{VenueID: "v-1", From: &from},
			wantWhere: " WHERE l.venue_id::text = $1 AND v.date >= $2::date",
			wantArgs:  2,
		},
		{
			name:       "reason ignored for attendance",
			filter:     model.LedgerFilter{Reason: "sick"},
			withReason: false,
			wantWhere:  "",
			wantArgs:   0,
		},
		{
			name:       "reason and divisions",
			filter:     model.LedgerFilter{DivisionIDs: []string{"d-1"}, Reason: "sick"},
			withReason: true,
			wantWhere:  " WHERE l.division_id::text = ANY($1) AND l.reason = $2",
			wantArgs:   2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := ledgerWhere(tt.filter, tt.withReason)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

// 一括作成は1件でも失敗したら全件ロールバックすること
func TestPostgresLedgerRepo_CreateAttendances_AllOrNothing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresLedgerRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO attendances`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO attendances`).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := repo.CreateAttendances(context.Background(), []*model.Attendance{
		{ID: "a-1", VenueID: "v-1", DivisionID: "d-1", Sessions: 1, Attended: 1, CreatedAt: now},
		{ID: "a-2", VenueID: "v-x", DivisionID: "d-1", Sessions: 1, Attended: 1, CreatedAt: now},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

// 出席一覧は開催予定と部門名を結合して返すこと
func TestPostgresLedgerRepo_ListAttendances(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresLedgerRepo(db)
	now := time.Now()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM attendances l .* WHERE l.venue_id::text = \$1 ORDER BY v.date DESC`).
		WithArgs("v-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "venue_id", "division_id", "sessions", "attendance", "created_at",
			"date", "start_time", "end_time", "place", "role", "name",
		}).AddRow("a-1", "v-1", "d-1", 2, 2, now, day, "10:00:00", "12:00:00", "Hall", "Main", "Choir"))

	list, err := repo.ListAttendances(context.Background(), model.LedgerFilter{VenueID: "v-1"})
	if err != nil {
		t.Fatalf("ListAttendances: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	a := list[0]
	if a.DivisionName != "Choir" {
		t.Errorf("DivisionName = %q", a.DivisionName)
	}
	if a.Venue == nil || a.Venue.Duration() != 2*time.Hour {
		t.Errorf("venue duration not derived: %+v", a.Venue)
	}
}

func TestPostgresLedgerRepo_Totals(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresLedgerRepo(db)

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows([]string{"attended", "sessions"}).AddRow(14, 20))

	attended, sessions, err := repo.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if attended != 14 || sessions != 20 {
		t.Errorf("Totals = (%d, %d), want (14, 20)", attended, sessions)
	}
}
