package recovery

import (
	"math"
	"sort"
	"time"

	"github.com/dukerupert/recoverypulse/internal/model"
)

// Order is the display order of a selection of check-ins.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder accepts "asc" or "desc"; anything else is descending.
func ParseOrder(s string) Order {
	if s == string(OrderAsc) {
		return OrderAsc
	}
	return OrderDesc
}

// DateOf returns the "YYYY-MM-DD" key of t in loc.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(model.DateLayout)
}

// WindowStart returns the first date of a trailing window of days ending on
// today, today included. A window of one day starts today.
func WindowStart(today string, days int) string {
	if days < 1 {
		days = 1
	}
	t, err := time.Parse(model.DateLayout, today)
	if err != nil {
		return today
	}
	return t.AddDate(0, 0, -(days - 1)).Format(model.DateLayout)
}

// AggregateWindow averages the scores of records dated within the trailing
// window ending today. ok is false when the window holds no records; a zero
// average with ok true is a real score.
func AggregateWindow(records []model.CheckIn, today string, windowDays int) (avg int, ok bool) {
	start := WindowStart(today, windowDays)

	sum, n := 0, 0
	for _, r := range records {
		if r.Date < start || r.Date > today {
			continue
		}
		sum += r.RecoveryScore
		n++
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Round(float64(sum) / float64(n))), true
}

// SelectRecent picks the limit newest records by date and returns them in
// the requested display order. The input is not modified.
func SelectRecent(records []model.CheckIn, limit int, order Order) []model.CheckIn {
	sorted := make([]model.CheckIn, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date > sorted[j].Date })

	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	if order == OrderAsc {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}
	return sorted
}

// DayPoint is one day of a trend series. Score is nil on days without a check-in.
type DayPoint struct {
	Date     string `json:"date"`
	DayIndex int    `json:"day_index"`
	Score    *int   `json:"score"`
}

// DailySeries lays records onto the trailing days ending today, oldest
// first, leaving gaps where no check-in exists. DayIndex counts from
// Monday = 0.
func DailySeries(records []model.CheckIn, today string, days int) []DayPoint {
	if days < 1 {
		days = 1
	}
	end, err := time.Parse(model.DateLayout, today)
	if err != nil {
		return nil
	}

	byDate := make(map[string]int, len(records))
	for _, r := range records {
		byDate[r.Date] = r.RecoveryScore
	}

	points := make([]DayPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := end.AddDate(0, 0, -i)
		key := d.Format(model.DateLayout)
		p := DayPoint{Date: key, DayIndex: (int(d.Weekday()) + 6) % 7}
		if score, ok := byDate[key]; ok {
			s := score
			p.Score = &s
		}
		points = append(points, p)
	}
	return points
}
