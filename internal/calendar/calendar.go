// Package calendar computes the server-side date context that the prompts
// quote, so the model never has to do date arithmetic itself.
package calendar

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// TimeContext is the server clock rendered for the prompt.
type TimeContext struct {
	LocalDisplay string
	UTCDisplay   string
	Zone         string
}

// EventContext is the distance to the user's target event. When Present is
// false all counts are zero and the event must be treated as absent.
type EventContext struct {
	Present bool
	Days    int
	Weeks   int
	Months  int
}

// NewTimeContext renders now in loc (Polish day-first layout) and in UTC.
func NewTimeContext(now time.Time, loc *time.Location) TimeContext {
	if loc == nil {
		loc = time.UTC
	}
	return TimeContext{
		LocalDisplay: now.In(loc).Format("02.01.2006, 15:04"),
		UTCDisplay:   now.UTC().Format("2006-01-02 15:04:05") + "Z",
		Zone:         loc.String(),
	}
}

// ParseDate parses YYYY-MM-DD into noon UTC on that day. Noon keeps the date
// stable across zone conversions. ok is false for missing, non-numeric or
// non-existent dates such as 2024-02-30.
func ParseDate(s string) (t time.Time, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	var ymd [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
		ymd[i] = n
	}

	t = time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 12, 0, 0, 0, time.UTC)
	// time.Date normalises overflow (Feb 30 -> Mar 1); reject that.
	if t.Year() != ymd[0] || int(t.Month()) != ymd[1] || t.Day() != ymd[2] {
		return time.Time{}, false
	}
	return t, true
}

// Diff returns whole days, weeks and calendar months from now to target,
// each clamped at zero. Months is a plain year/month field subtraction and
// can disagree with Days near month boundaries.
func Diff(target, now time.Time) EventContext {
	days := int(math.Floor(float64(target.Sub(now)) / float64(day)))
	if days < 0 {
		days = 0
	}

	t, n := target.UTC(), now.UTC()
	months := (t.Year()-n.Year())*12 + int(t.Month()) - int(n.Month())
	if months < 0 {
		months = 0
	}

	return EventContext{
		Present: true,
		Days:    days,
		Weeks:   days / 7,
		Months:  months,
	}
}

// Event parses an optional event date and measures it from now.
func Event(date string, now time.Time) EventContext {
	target, ok := ParseDate(date)
	if !ok {
		return EventContext{}
	}
	return Diff(target, now)
}
