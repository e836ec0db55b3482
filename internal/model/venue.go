package model

import (
	"fmt"
	"time"
)

const (
	// DateLayout は日付の入出力形式。
	DateLayout = "2006-01-02"
	// ClockLayout は時刻の保存形式。
	ClockLayout = "15:04:05"
)

// Venue は開催予定（日付・時間帯・場所）を表す。
// 一覧は date 降順、start_time 昇順で並ぶ。
type Venue struct {
	ID        string
	Date      time.Time
	StartTime string
	EndTime   *string
	Place     string
	Role      string
	Img       string
	CreatedAt time.Time

	// DivisionIDs は申請を介して紐づく部門。
	DivisionIDs []string
}

// Duration は開始から終了までの長さを返す。終了時刻が無い場合は0。
func (v *Venue) Duration() time.Duration {
	if v.EndTime == nil {
		return 0
	}
	start, err := time.Parse(ClockLayout, v.StartTime)
	if err != nil {
		return 0
	}
	end, err := time.Parse(ClockLayout, *v.EndTime)
	if err != nil || end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// StartedBy は now 時点で開催開始済みかを返す。
// 日付が過去、または当日で開始時刻を過ぎている場合にtrue。
func (v *Venue) StartedBy(now time.Time) bool {
	day := v.Date.Format(DateLayout)
	today := now.Format(DateLayout)
	if day != today {
		return day < today
	}
	return v.StartTime < now.Format(ClockLayout)
}

// ParseClock は "HH:MM" または "HH:MM:SS" を "HH:MM:SS" に正規化する。
func ParseClock(s string) (string, error) {
	for _, layout := range []string{ClockLayout, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(ClockLayout), nil
		}
	}
	return "", fmt.Errorf("invalid time of day: %q", s)
}

// ParseDate は YYYY-MM-DD 形式の日付を解析する。
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// VenueFilter は開催予定一覧の絞り込み条件。
type VenueFilter struct {
	DivisionID string
	From       *time.Time
	To         *time.Time
	// WithDivision は部門に紐づく開催予定のみに限定する。
	WithDivision bool
	// MemberIDs はいずれかのユーザーが所属する部門の開催予定に限定する。
	MemberIDs []string
	// Ascending は date, start_time の昇順で返す。既定は date 降順。
	Ascending bool
}
