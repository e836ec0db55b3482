package handler

import (
	"time"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/rating"
	"github.com/hitoshi/rollcall/internal/report"
)

// formatTimestamp はタイムスタンプをRFC 3339で返す。ゼロ値は空文字列。
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// --- ユーザー ---

type userResponse struct {
	ID             string   `json:"id"`
	PhoneNumber    string   `json:"phone_number"`
	Username       string   `json:"username"`
	ProfilePicture string   `json:"profile_picture"`
	Gender         string   `json:"gender"`
	Occupation     string   `json:"occupation"`
	IsAdmin        bool     `json:"is_admin"`
	FName          string   `json:"fname"`
	LName          string   `json:"lname"`
	Divisions      []string `json:"divisions"`
	IsActive       bool     `json:"is_active"`
	LoggedInTimes  int      `json:"logged_in_times"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		PhoneNumber:    u.PhoneNumber,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		Gender:         u.Gender,
		Occupation:     u.Occupation,
		IsAdmin:        u.IsAdmin,
		FName:          u.FName,
		LName:          u.LName,
		Divisions:      nonNil(u.DivisionIDs),
		IsActive:       u.IsActive,
		LoggedInTimes:  u.LoggedInTimes,
	}
}

// publicUserResponse は匿名でも参照できる項目のみを持つ。
type publicUserResponse struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	FName          string   `json:"fname"`
	LName          string   `json:"lname"`
	Divisions      []string `json:"divisions"`
	IsAdmin        bool     `json:"is_admin"`
	IsActive       bool     `json:"is_active"`
	ProfilePicture string   `json:"profile_picture"`
}

func toPublicUserResponse(u *model.User) publicUserResponse {
	return publicUserResponse{
		ID:             u.ID,
		Username:       u.Username,
		FName:          u.FName,
		LName:          u.LName,
		Divisions:      nonNil(u.DivisionIDs),
		IsAdmin:        u.IsAdmin,
		IsActive:       u.IsActive,
		ProfilePicture: u.ProfilePicture,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

func toPublicUserResponses(users []*model.User) []publicUserResponse {
	out := make([]publicUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toPublicUserResponse(u))
	}
	return out
}

// userRef は他リソースに埋め込むユーザーの要約。
type userRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// --- 部門 ---

type divisionResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	UserRole         string `json:"userRole"`
	IsRegistered     bool   `json:"isRegistered"`
	IsActive         bool   `json:"is_active"`
	Value            string `json:"value"`
	ShowRatings      bool   `json:"showRatings"`
	ShortWords       string `json:"shortWords"`
	ShowVenue        bool   `json:"showVenue"`
	Title            string `json:"title"`
	TitleDesc        string `json:"titleDesc"`
	TitleQuote       string `json:"titleQuote"`
	ShowUser         bool   `json:"showUser"`
	BaseUser         string `json:"baseUser"`
	BaseUserModifier string `json:"baseUserModifier"`
	CreatedAt        string `json:"created_at"`
}

func toDivisionResponse(d *model.Division) divisionResponse {
	return divisionResponse{
		ID:               d.ID,
		Name:             d.Name,
		Role:             d.Role,
		UserRole:         d.UserRole,
		IsRegistered:     d.IsRegistered,
		IsActive:         d.IsActive,
		Value:            d.Value,
		ShowRatings:      d.ShowRatings,
		ShortWords:       d.ShortWords,
		ShowVenue:        d.ShowVenue,
		Title:            d.Title,
		TitleDesc:        d.TitleDesc,
		TitleQuote:       d.TitleQuote,
		ShowUser:         d.ShowUser,
		BaseUser:         d.BaseUser,
		BaseUserModifier: d.BaseUserModifier,
		CreatedAt:        formatTimestamp(d.CreatedAt),
	}
}

func toDivisionResponses(divisions []*model.Division) []divisionResponse {
	out := make([]divisionResponse, 0, len(divisions))
	for _, d := range divisions {
		out = append(out, toDivisionResponse(d))
	}
	return out
}

type divisionListResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Role          string  `json:"role"`
	UserRole      string  `json:"userRole"`
	IsRegistered  bool    `json:"isRegistered"`
	IsActive      bool    `json:"is_active"`
	Value         string  `json:"value"`
	IsJoined      bool    `json:"is_joined"`
	VenueCount    int     `json:"venue_count"`
	SongsCount    int     `json:"songs_count"`
	AverageRating float64 `json:"average_rating"`
}

func toDivisionListResponses(items []model.DivisionListItem) []divisionListResponse {
	out := make([]divisionListResponse, 0, len(items))
	for _, it := range items {
		out = append(out, divisionListResponse{
			ID:            it.ID,
			Name:          it.Name,
			Role:          it.Role,
			UserRole:      it.UserRole,
			IsRegistered:  it.IsRegistered,
			IsActive:      it.IsActive,
			Value:         it.Value,
			IsJoined:      it.IsJoined,
			VenueCount:    it.VenueCount,
			SongsCount:    it.SongsCount,
			AverageRating: it.AverageRating,
		})
	}
	return out
}

type venueStatsResponse struct {
	Total    int `json:"total"`
	Upcoming int `json:"upcoming"`
	Past     int `json:"past"`
}

type divisionDetailResponse struct {
	divisionResponse
	VenueData           []venueResponse          `json:"venue_data"`
	Songs               []songResponse           `json:"songs"`
	AttendanceData      []attendanceResponse     `json:"attendance_data"`
	AbsentData          []absentResponse         `json:"absent_data"`
	RatingsData         []ratingResponse         `json:"ratings_data"`
	PerformanceData     []performanceResponse    `json:"performance_data"`
	PendingRequestsData []pendingRequestResponse `json:"pending_requests_data"`
	AverageRating       float64                  `json:"average_rating"`
	VenueStats          venueStatsResponse       `json:"venue_stats"`
}

func toDivisionDetailResponse(d *model.DivisionDetail, viewer *model.Principal) divisionDetailResponse {
	resp := divisionDetailResponse{
		divisionResponse:    toDivisionResponse(&d.Division),
		VenueData:           make([]venueResponse, 0, len(d.Venues)),
		Songs:               make([]songResponse, 0, len(d.Songs)),
		AttendanceData:      make([]attendanceResponse, 0, len(d.Attendances)),
		AbsentData:          make([]absentResponse, 0, len(d.Absents)),
		RatingsData:         make([]ratingResponse, 0, len(d.Ratings)),
		PerformanceData:     make([]performanceResponse, 0, len(d.Performances)),
		PendingRequestsData: make([]pendingRequestResponse, 0, len(d.PendingRequests)),
		AverageRating:       d.AverageRating,
		VenueStats: venueStatsResponse{
			Total:    d.VenueStats.Total,
			Upcoming: d.VenueStats.Upcoming,
			Past:     d.VenueStats.Past,
		},
	}
	for i := range d.Venues {
		resp.VenueData = append(resp.VenueData, toVenueResponse(&d.Venues[i]))
	}
	for i := range d.Songs {
		resp.Songs = append(resp.Songs, toSongResponse(&d.Songs[i]))
	}
	for i := range d.Attendances {
		resp.AttendanceData = append(resp.AttendanceData, toAttendanceResponse(&d.Attendances[i]))
	}
	for i := range d.Absents {
		resp.AbsentData = append(resp.AbsentData, toAbsentResponse(&d.Absents[i]))
	}
	for i := range d.Ratings {
		resp.RatingsData = append(resp.RatingsData, toRatingResponse(&d.Ratings[i], viewer))
	}
	for i := range d.Performances {
		resp.PerformanceData = append(resp.PerformanceData, toPerformanceResponse(&d.Performances[i]))
	}
	for i := range d.PendingRequests {
		resp.PendingRequestsData = append(resp.PendingRequestsData, toPendingRequestResponse(&d.PendingRequests[i]))
	}
	return resp
}

// --- 開催予定 ---

type venueResponse struct {
	ID               string   `json:"id"`
	Date             string   `json:"date"`
	StartTime        string   `json:"startTime"`
	EndTime          *string  `json:"endTime"`
	Place            string   `json:"place"`
	Role             string   `json:"role"`
	Img              string   `json:"img"`
	Divisions        []string `json:"divisions"`
	IsUserAssociated bool     `json:"is_user_associated"`
}

func toVenueResponse(v *model.Venue) venueResponse {
	return venueResponse{
		ID:        v.ID,
		Date:      v.Date.Format(model.DateLayout),
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		Place:     v.Place,
		Role:      v.Role,
		Img:       v.Img,
		Divisions: nonNil(v.DivisionIDs),
	}
}

func toVenueResponses(venues []*model.Venue) []venueResponse {
	out := make([]venueResponse, 0, len(venues))
	for _, v := range venues {
		out = append(out, toVenueResponse(v))
	}
	return out
}

// venueDetail は他リソースに埋め込む開催予定の要約。
type venueDetail struct {
	Date      string  `json:"date"`
	Place     string  `json:"place"`
	StartTime string  `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Role      string  `json:"role,omitempty"`
}

func toVenueDetail(v *model.Venue) *venueDetail {
	if v == nil {
		return nil
	}
	return &venueDetail{
		Date:      v.Date.Format(model.DateLayout),
		Place:     v.Place,
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		Role:      v.Role,
	}
}

type userVenuesResponse struct {
	New      []venueResponse `json:"new"`
	Pending  []venueResponse `json:"pending"`
	Accepted []venueResponse `json:"accepted"`
	Rejected []venueResponse `json:"rejected"`
}

func toUserVenuesResponse(uv *model.UserVenues) userVenuesResponse {
	conv := func(list []model.VenueWithAssociation) []venueResponse {
		out := make([]venueResponse, 0, len(list))
		for i := range list {
			v := toVenueResponse(&list[i].Venue)
			v.IsUserAssociated = list[i].IsUserAssociated
			out = append(out, v)
		}
		return out
	}
	return userVenuesResponse{
		New:      conv(uv.New),
		Pending:  conv(uv.Pending),
		Accepted: conv(uv.Accepted),
		Rejected: conv(uv.Rejected),
	}
}

// --- 出欠記録 ---

type attendanceResponse struct {
	ID             string       `json:"id"`
	Venue          string       `json:"venue"`
	Division       string       `json:"division"`
	Sessions       int          `json:"sessions"`
	Attendance     int          `json:"attendance"`
	VenueDetail    *venueDetail `json:"venue_detail"`
	AttendanceRate float64      `json:"attendance_rate"`
}

func toAttendanceResponse(a *model.Attendance) attendanceResponse {
	return attendanceResponse{
		ID:             a.ID,
		Venue:          a.VenueID,
		Division:       a.DivisionID,
		Sessions:       a.Sessions,
		Attendance:     a.Attended,
		VenueDetail:    toVenueDetail(a.Venue),
		AttendanceRate: a.AttendanceRate(),
	}
}

func toAttendanceResponses(list []*model.Attendance) []attendanceResponse {
	out := make([]attendanceResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAttendanceResponse(a))
	}
	return out
}

type absentResponse struct {
	ID           string       `json:"id"`
	Venue        string       `json:"venue"`
	Division     string       `json:"division"`
	Sessions     int          `json:"sessions"`
	Attendance   int          `json:"attendance"`
	Reason       string       `json:"reason"`
	VenueDetail  *venueDetail `json:"venue_detail"`
	DivisionName string       `json:"division_name"`
}

func toAbsentResponse(a *model.Absent) absentResponse {
	return absentResponse{
		ID:           a.ID,
		Venue:        a.VenueID,
		Division:     a.DivisionID,
		Sessions:     a.Sessions,
		Attendance:   a.Attended,
		Reason:       a.Reason,
		VenueDetail:  toVenueDetail(a.Venue),
		DivisionName: a.DivisionName,
	}
}

func toAbsentResponses(list []*model.Absent) []absentResponse {
	out := make([]absentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAbsentResponse(a))
	}
	return out
}

// --- 申請 ---

type claimantDetail struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Username  string `json:"username"`
}

type divisionBrief struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type pendingRequestResponse struct {
	ID             string          `json:"id"`
	User           *string         `json:"user"`
	Venue          string          `json:"venue"`
	Division       string          `json:"division"`
	Reason         string          `json:"reason"`
	Pending        bool            `json:"pending"`
	AdminCheck     bool            `json:"admin_check"`
	AdminAccept    bool            `json:"admin_accept"`
	Attended       bool            `json:"attended"`
	State          string          `json:"state"`
	UserDetail     *claimantDetail `json:"user_detail"`
	DivisionDetail *divisionBrief  `json:"division_detail"`
	VenueDetail    *venueDetail    `json:"venue_detail"`
}

func toPendingRequestResponse(p *model.PendingRequest) pendingRequestResponse {
	resp := pendingRequestResponse{
		ID:          p.ID,
		User:        p.UserID,
		Venue:       p.VenueID,
		Division:    p.DivisionID,
		Reason:      p.Reason,
		Pending:     p.Pending,
		AdminCheck:  p.AdminCheck,
		AdminAccept: p.AdminAccept,
		Attended:    p.Attended,
		State:       string(p.State()),
		VenueDetail: toVenueDetail(p.Venue),
	}
	if p.Claimant != nil {
		resp.UserDetail = &claimantDetail{
			FirstName: p.Claimant.FName,
			LastName:  p.Claimant.LName,
			Username:  p.Claimant.Username,
		}
	}
	if p.DivisionName != "" {
		resp.DivisionDetail = &divisionBrief{Name: p.DivisionName, Role: p.DivisionRole}
	}
	return resp
}

func toPendingRequestResponses(list []*model.PendingRequest) []pendingRequestResponse {
	out := make([]pendingRequestResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPendingRequestResponse(p))
	}
	return out
}

// --- カタログ ---

type songResponse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Date          string   `json:"date"`
	Divisions     []string `json:"divisions"`
	DivisionCount int      `json:"division_count"`
}

func toSongResponse(s *model.Song) songResponse {
	return songResponse{
		ID:            s.ID,
		Title:         s.Title,
		Date:          s.Date.Format(model.DateLayout),
		Divisions:     nonNil(s.DivisionIDs),
		DivisionCount: len(s.DivisionIDs),
	}
}

func toSongResponses(songs []*model.Song) []songResponse {
	out := make([]songResponse, 0, len(songs))
	for _, s := range songs {
		out = append(out, toSongResponse(s))
	}
	return out
}

type performanceResponse struct {
	ID           string          `json:"id"`
	Venue        []string        `json:"venue"`
	Division     *string         `json:"division"`
	Venues       []venueResponse `json:"venues"`
	DivisionName string          `json:"division_name"`
	VenueCount   int             `json:"venue_count"`
}

func toPerformanceResponse(p *model.Performance) performanceResponse {
	resp := performanceResponse{
		ID:           p.ID,
		Venue:        nonNil(p.VenueIDs),
		Division:     p.DivisionID,
		Venues:       make([]venueResponse, 0, len(p.Venues)),
		DivisionName: p.DivisionName,
		VenueCount:   len(p.VenueIDs),
	}
	for i := range p.Venues {
		resp.Venues = append(resp.Venues, toVenueResponse(&p.Venues[i]))
	}
	return resp
}

func toPerformanceResponses(list []*model.Performance) []performanceResponse {
	out := make([]performanceResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPerformanceResponse(p))
	}
	return out
}

type activityResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Desc        string         `json:"desc"`
	Venue       *venueResponse `json:"venue"`
	ShowPoster  bool           `json:"showPoster"`
	Poster      string         `json:"poster"`
	VenueDetail *venueDetail   `json:"venue_detail"`
}

func toActivityResponse(a *model.Activity) activityResponse {
	resp := activityResponse{
		ID:          a.ID,
		Title:       a.Title,
		Desc:        a.Description,
		ShowPoster:  a.ShowPoster,
		Poster:      a.Poster,
		VenueDetail: toVenueDetail(a.Venue),
	}
	if a.Venue != nil {
		v := toVenueResponse(a.Venue)
		resp.Venue = &v
	}
	return resp
}

func toActivityResponses(list []*model.Activity) []activityResponse {
	out := make([]activityResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toActivityResponse(a))
	}
	return out
}

// --- 評価・フィードバック ---

type ratingResponse struct {
	ID           string   `json:"id"`
	User         *string  `json:"user"`
	Value        float64  `json:"value"`
	Division     string   `json:"division"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
	UserDetail   *userRef `json:"user_detail"`
	DivisionName string   `json:"division_name"`
	IsOwner      bool     `json:"is_owner"`
}

func toRatingResponse(r *model.Rating, viewer *model.Principal) ratingResponse {
	resp := ratingResponse{
		ID:           r.ID,
		User:         r.UserID,
		Value:        r.Value,
		Division:     r.DivisionID,
		CreatedAt:    formatTimestamp(r.CreatedAt),
		UpdatedAt:    formatTimestamp(r.UpdatedAt),
		DivisionName: r.DivisionName,
		IsOwner:      rating.IsOwner(r, viewer),
	}
	if r.UserID != nil {
		resp.UserDetail = &userRef{ID: *r.UserID, Username: r.Username}
	}
	return resp
}

type feedbackResponse struct {
	ID                 string   `json:"id"`
	User               string   `json:"user"`
	UserDetail         userRef  `json:"user_detail"`
	Sender             *string  `json:"sender"`
	SenderDetail       *userRef `json:"sender_detail"`
	Title              string   `json:"title"`
	HighlightedTitle   string   `json:"highlighted_title"`
	Desc               string   `json:"desc"`
	Completed          bool     `json:"completed"`
	CreatedAt          string   `json:"created_at"`
	CreatedAtFormatted string   `json:"created_at_formatted"`
}

func toFeedbackResponse(f *model.Feedback) feedbackResponse {
	resp := feedbackResponse{
		ID:                 f.ID,
		User:               f.UserID,
		UserDetail:         userRef{ID: f.UserID, Username: f.UserName},
		Sender:             f.SenderID,
		Title:              f.Title,
		HighlightedTitle:   f.HighlightedTitle,
		Desc:               f.Description,
		Completed:          f.Completed,
		CreatedAt:          formatTimestamp(f.CreatedAt),
		CreatedAtFormatted: f.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if f.SenderID != nil {
		resp.SenderDetail = &userRef{ID: *f.SenderID, Username: f.SenderName}
	}
	return resp
}

func toFeedbackResponses(list []*model.Feedback) []feedbackResponse {
	out := make([]feedbackResponse, 0, len(list))
	for _, f := range list {
		out = append(out, toFeedbackResponse(f))
	}
	return out
}

// --- 集計 ---

type reasonCountResponse struct {
	Reason string `json:"reason"`
	Value  int    `json:"value"`
}

type statsResponse struct {
	TotalSessions        int                  `json:"totalSessions"`
	AttendedSessions     int                  `json:"attendedSessions"`
	TotalHours           float64              `json:"totalHours"`
	AttendedHours        float64              `json:"attendedHours"`
	AttendancePercentage float64              `json:"attendancePercentage"`
	TopAbsenceReason     *reasonCountResponse `json:"top_absence_reason,omitempty"`
}

type statsSerializers struct {
	Attendances []attendanceResponse `json:"attendances"`
	Absents     []absentResponse     `json:"absents"`
	Divisions   []divisionResponse   `json:"divisions"`
}

type dateRangeResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type divisionStatsResponse struct {
	Stats       statsResponse     `json:"stats"`
	Serializers statsSerializers  `json:"serializers"`
	DateRange   dateRangeResponse `json:"date_range"`
}

func toDivisionStatsResponse(st *report.DivisionStats) divisionStatsResponse {
	resp := divisionStatsResponse{
		Stats: statsResponse{
			TotalSessions:        st.Stats.TotalSessions,
			AttendedSessions:     st.Stats.AttendedSessions,
			TotalHours:           st.Stats.TotalHours,
			AttendedHours:        st.Stats.AttendedHours,
			AttendancePercentage: st.Stats.AttendancePercentage,
		},
		Serializers: statsSerializers{
			Attendances: toAttendanceResponses(st.Attendances),
			Absents:     toAbsentResponses(st.Absents),
			Divisions:   toDivisionResponses(st.Divisions),
		},
		DateRange: dateRangeResponse{
			Start: st.DateRange.Start.Format(model.DateLayout),
			End:   st.DateRange.End.Format(model.DateLayout),
		},
	}
	if rc := st.Stats.TopAbsenceReason; rc != nil {
		resp.Stats.TopAbsenceReason = &reasonCountResponse{Reason: rc.Reason, Value: rc.Value}
	}
	return resp
}

// toMonthlyResponse は {"month": "January", <部門名>: 出席数} の配列に変換する。
func toMonthlyResponse(buckets []report.MonthBucket) []map[string]any {
	out := make([]map[string]any, 0, len(buckets))
	for _, b := range buckets {
		item := make(map[string]any, len(b.Attended)+1)
		for name, n := range b.Attended {
			item[name] = n
		}
		item["month"] = b.Month.Format("January")
		out = append(out, item)
	}
	return out
}
