package timeparse

import (
	"regexp"
	"time"
)

var weekdayRE = regexp.MustCompile(`\b(last|this)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

func matchWeekdays(lower string, now time.Time) []candidate {
	var out []candidate
	for _, loc := range weekdayRE.FindAllStringSubmatchIndex(lower, -1) {
		m := weekdayRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		qualifier, name := m[1], m[2]
		target := weekdayNames[name]

		var day time.Time
		if qualifier == "this" {
			day = dayInCurrentWeek(now, target)
		} else {
			day = mostRecentPast(now, target)
		}
		out = append(out, candidate{start: loc[0], end: loc[1], window: windowOf(startOfDay(day), endOfDay(day)), order: classWeekday})
	}
	return out
}

// dayInCurrentWeek returns the date with weekday target within the
// Monday-Sunday week containing now.
func dayInCurrentWeek(now time.Time, target time.Weekday) time.Time {
	offset := (int(target) + 6) % 7 // Monday=0 ... Sunday=6
	return startOfWeek(now).AddDate(0, 0, offset)
}

// mostRecentPast returns the most recent occurrence of target strictly
// before today (today itself never qualifies, even if it is target).
func mostRecentPast(now time.Time, target time.Weekday) time.Time {
	today := startOfDay(now)
	daysBack := (int(today.Weekday()) - int(target) + 7) % 7
	if daysBack == 0 {
		daysBack = 7
	}
	return today.AddDate(0, 0, -daysBack)
}
