package model

import "time"

// Division は部門（グループ）を表す。name と role の組は一意。
type Division struct {
	ID               string
	Name             string
	Role             string
	UserRole         string
	IsRegistered     bool
	IsActive         bool
	Value            string
	ShowRatings      bool
	ShortWords       string
	ShowVenue        bool
	Title            string
	TitleDesc        string
	TitleQuote       string
	ShowUser         bool
	BaseUser         string
	BaseUserModifier string
	CreatedAt        time.Time
}

// NewDivision はデフォルト値を埋めたDivisionを返す。
func NewDivision(name, role string) *Division {
	return &Division{
		Name:             name,
		Role:             role,
		UserRole:         "Member",
		IsRegistered:     true,
		IsActive:         true,
		ShowRatings:      true,
		ShowVenue:        true,
		ShowUser:         true,
		BaseUser:         "Member",
		BaseUserModifier: "Available",
	}
}

// DivisionFilter は部門一覧の絞り込み条件。
type DivisionFilter struct {
	ActiveOnly bool
	VenueID    string
	// ViewerID が指定された場合、所属部門を先頭に並べる。
	ViewerID string
}

// DivisionListItem は一覧表示用に所属フラグを付与した部門。
type DivisionListItem struct {
	Division
	IsJoined      bool
	VenueCount    int
	SongsCount    int
	AverageRating float64
}

// VenueStats は部門に紐づく開催予定の件数内訳。
type VenueStats struct {
	Total    int
	Upcoming int
	Past     int
}

// DivisionDetail は部門詳細画面用の集約。
type DivisionDetail struct {
	Division
	Venues          []Venue
	Songs           []Song
	Attendances     []Attendance
	Absents         []Absent
	Ratings         []Rating
	Performances    []Performance
	PendingRequests []PendingRequest
	AverageRating   float64
	VenueStats      VenueStats
}
