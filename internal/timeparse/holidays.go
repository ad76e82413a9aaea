package timeparse

import (
	"regexp"
	"time"
)

// HolidayTable maps a recognized holiday phrase to its (month, day). It is
// a package variable rather than a constant so callers can extend it with
// locale-specific holidays without forking the parser.
var HolidayTable = map[string]struct {
	Month time.Month
	Day   int
}{
	"christmas": {time.December, 25},
	"new year":  {time.January, 1},
}

var holidayRE = regexp.MustCompile(`\b(christmas|new year)\b`)

func matchHolidays(lower string, now time.Time) []candidate {
	var out []candidate
	for _, loc := range holidayRE.FindAllStringSubmatchIndex(lower, -1) {
		m := holidayRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		name := m[1]
		def, ok := HolidayTable[name]
		if !ok {
			continue
		}
		day := mostRecentHolidayOccurrence(now, def.Month, def.Day)
		out = append(out, candidate{start: loc[0], end: loc[1], window: windowOf(startOfDay(day), endOfDay(day)), order: classHoliday})
	}
	return out
}

// mostRecentHolidayOccurrence returns this year's occurrence of
// month/day if it has already happened, otherwise last year's.
func mostRecentHolidayOccurrence(now time.Time, month time.Month, day int) time.Time {
	year := now.Year()
	candidate := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	if candidate.After(now) {
		candidate = time.Date(year-1, month, day, 0, 0, 0, 0, now.Location())
	}
	return candidate
}
