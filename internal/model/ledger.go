package model

import "time"

// Attendance は出席記録。追記専用で、開催予定ごとに複数行になり得る。
type Attendance struct {
	ID         string
	VenueID    string
	DivisionID string
	Sessions   int
	Attended   int
	CreatedAt  time.Time

	// 一覧取得時に結合される表示用情報
	Venue        *Venue
	DivisionName string
}

// AttendanceRate は出席率（%）を返す。
func (a *Attendance) AttendanceRate() float64 {
	if a.Sessions == 0 {
		return 0
	}
	return float64(a.Attended) / float64(a.Sessions) * 100
}

// Absent は欠席記録。
type Absent struct {
	ID         string
	VenueID    string
	DivisionID string
	Sessions   int
	Attended   int
	Reason     string
	CreatedAt  time.Time

	Venue        *Venue
	DivisionName string
}

// LedgerFilter は出欠記録一覧の絞り込み条件。
type LedgerFilter struct {
	VenueID     string
	DivisionIDs []string
	Reason      string
	From        *time.Time
	To          *time.Time
}
