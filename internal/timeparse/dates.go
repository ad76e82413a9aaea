package timeparse

import (
	"regexp"
	"time"
)

var isoDateRE = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})(?:[T ](\d{2}):(\d{2}):(\d{2}))?\b`)

// matchISODates recognizes YYYY-MM-DD and YYYY-MM-DDThh:mm:ss in local time.
// A bare date matches the whole named day; a date+time matches that exact
// second (start == end).
func matchISODates(lower string, now time.Time) []candidate {
	var out []candidate
	for _, loc := range isoDateRE.FindAllStringSubmatchIndex(lower, -1) {
		m := isoDateRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		year, month, day := parseInt(m[1]), parseInt(m[2]), parseInt(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		var win Window
		if m[4] != "" {
			hh, mm, ss := parseInt(m[4]), parseInt(m[5]), parseInt(m[6])
			t := time.Date(year, time.Month(month), day, hh, mm, ss, 0, now.Location())
			win = windowOf(t, t)
		} else {
			dayStart := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
			win = windowOf(dayStart, endOfDay(dayStart))
		}
		out = append(out, candidate{start: loc[0], end: loc[1], window: win, order: classISODate})
	}
	return out
}

var mdyDateRE = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
var dmyDateRE = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

// matchRegionalDates recognizes MM/DD/YYYY and DD.MM.YYYY, evaluated after
// ISO dates so an ISO date is never misread as a regional one.
func matchRegionalDates(lower string, now time.Time) []candidate {
	var out []candidate

	for _, loc := range mdyDateRE.FindAllStringSubmatchIndex(lower, -1) {
		m := mdyDateRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		month, day, year := parseInt(m[1]), parseInt(m[2]), parseInt(m[3])
		if win, ok := dayWindow(year, month, day, now); ok {
			out = append(out, candidate{start: loc[0], end: loc[1], window: win, order: classRegionalDate})
		}
	}

	for _, loc := range dmyDateRE.FindAllStringSubmatchIndex(lower, -1) {
		m := dmyDateRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		day, month, year := parseInt(m[1]), parseInt(m[2]), parseInt(m[3])
		if win, ok := dayWindow(year, month, day, now); ok {
			out = append(out, candidate{start: loc[0], end: loc[1], window: win, order: classRegionalDate})
		}
	}

	return out
}

func dayWindow(year, month, day int, now time.Time) (Window, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Window{}, false
	}
	start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	return windowOf(start, endOfDay(start)), true
}
