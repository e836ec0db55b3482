// Package report は出欠記録と評価の集計を提供する。読み取り専用。
package report

import (
	"math"
	"sort"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// Percentage は attended / total * 100 を返す。totalが0以下なら0。
func Percentage(attended, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(attended) / float64(total) * 100
}

// Round2 は小数第2位に丸める。
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Stats は期間内の出欠集計。時間は秒単位。
type Stats struct {
	TotalSessions        int
	AttendedSessions     int
	TotalHours           float64
	AttendedHours        float64
	AttendancePercentage float64
	TopAbsenceReason     *ReasonCount
}

// ReasonCount は欠席理由ごとの件数。
type ReasonCount struct {
	Reason string
	Value  int
}

// summarize は出席・欠席記録から集計を作る。
// 総セッション数は出席と欠席のセッション数の合計。
func summarize(attendances []*model.Attendance, absents []*model.Absent) Stats {
	var st Stats
	var attendedDur, absentDur time.Duration
	for _, a := range attendances {
		st.TotalSessions += a.Sessions
		st.AttendedSessions += a.Attended
		if a.Venue != nil {
			attendedDur += a.Venue.Duration()
		}
	}
	for _, a := range absents {
		st.TotalSessions += a.Sessions
		if a.Venue != nil {
			absentDur += a.Venue.Duration()
		}
	}
	st.TotalHours = (attendedDur + absentDur).Seconds()
	st.AttendedHours = attendedDur.Seconds()
	st.AttendancePercentage = Percentage(st.AttendedSessions, st.TotalSessions)
	return st
}

// topAbsenceReason は最も多い欠席理由を返す。同数の場合は理由の辞書順で先のもの。
// 欠席が無い場合はnil。
func topAbsenceReason(absents []*model.Absent) *ReasonCount {
	if len(absents) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, a := range absents {
		counts[a.Reason]++
	}
	var top *ReasonCount
	for reason, n := range counts {
		if top == nil || n > top.Value || (n == top.Value && reason < top.Reason) {
			top = &ReasonCount{Reason: reason, Value: n}
		}
	}
	return top
}

// RatingStats は部門の評価集計。
type RatingStats struct {
	Average float64
	Count   int
	// Distribution は "1".."5" の区間ごとの件数。区間 n は [n, n+1)、5 は 5 以上。
	Distribution map[string]int
}

func summarizeRatings(ratings []*model.Rating) RatingStats {
	st := RatingStats{Distribution: map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0}}
	if len(ratings) == 0 {
		return st
	}
	var sum float64
	for _, r := range ratings {
		sum += r.Value
		st.Distribution[ratingBucket(r.Value)]++
	}
	st.Count = len(ratings)
	st.Average = Round2(sum / float64(len(ratings)))
	return st
}

func ratingBucket(v float64) string {
	switch {
	case v < 2:
		return "1"
	case v < 3:
		return "2"
	case v < 4:
		return "3"
	case v < 5:
		return "4"
	default:
		return "5"
	}
}

// monthStarts は since を含む月の初日から today を含む月の初日までを返す。
func monthStarts(since, today time.Time) []time.Time {
	cur := time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	var months []time.Time
	for !cur.After(end) {
		months = append(months, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// subMonths は n か月前の同日を返す。存在しない日は月末に丸める。
func subMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, -n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}

// MonthBucket は1か月分の部門別出席数。
type MonthBucket struct {
	Month    time.Time
	Attended map[string]int
}

// bucketMonthly は集計行を月ごとに並べ、データの無い (月, 部門) を0で埋める。
func bucketMonthly(rows []repository.MonthlyAttendanceRow, divisionNames []string, since, today time.Time) []MonthBucket {
	lookup := make(map[string]int, len(rows))
	for _, r := range rows {
		lookup[r.Month.Format("2006-01")+"|"+r.DivisionName] += r.Attended
	}

	names := append([]string(nil), divisionNames...)
	sort.Strings(names)

	months := monthStarts(since, today)
	buckets := make([]MonthBucket, len(months))
	for i, m := range months {
		b := MonthBucket{Month: m, Attended: make(map[string]int, len(names))}
		for _, name := range names {
			b.Attended[name] = lookup[m.Format("2006-01")+"|"+name]
		}
		buckets[i] = b
	}
	return buckets
}
