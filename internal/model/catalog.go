package model

import "time"

// Song は部門で練習した曲。
type Song struct {
	ID          string
	Title       string
	Date        time.Time
	DivisionIDs []string
}

// Performance は部門の公演記録。複数の開催予定に紐づく。
type Performance struct {
	ID         string
	DivisionID *string
	VenueIDs   []string

	DivisionName string
	Venues       []Venue
}

// Activity は告知用のアクティビティ。開催予定と1対1で紐づき、
// 削除時は開催予定も削除される。
type Activity struct {
	ID          string
	Title       string
	Description string
	VenueID     *string
	ShowPoster  bool
	Poster      string
	Venue       *Venue
}

// Rating はユーザーによる部門の評価。(user, division) ごとに1件。
type Rating struct {
	ID         string
	UserID     *string
	DivisionID string
	Value      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time

	DivisionName string
	Username     string
}

// 評価値の範囲
const (
	RatingMin = 1.0
	RatingMax = 5.0
)

// Feedback はユーザーからのフィードバック。
type Feedback struct {
	ID               string
	UserID           string
	SenderID         *string
	Title            string
	HighlightedTitle string
	Description      string
	Completed        bool
	CreatedAt        time.Time

	UserName   string
	SenderName string
}
