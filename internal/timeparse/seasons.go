package timeparse

import (
	"regexp"
	"time"
)

var seasonRE = regexp.MustCompile(`\b(spring|summer|autumn|fall)\b`)

// seasonBounds gives the (startMonth, endMonth) pair for a season, in
// Northern-hemisphere convention. Winter is handled separately because it
// wraps the year boundary.
var seasonBounds = map[string][2]time.Month{
	"spring": {time.March, time.May},
	"summer": {time.June, time.August},
	"autumn": {time.September, time.November},
	"fall":   {time.September, time.November},
}

func matchSeasons(lower string, now time.Time) []candidate {
	var out []candidate

	for _, loc := range seasonRE.FindAllStringIndex(lower, -1) {
		name := lower[loc[0]:loc[1]]
		bounds := seasonBounds[name]
		win := nonWrappingSeasonWindow(bounds[0], bounds[1], now)
		out = append(out, candidate{start: loc[0], end: loc[1], window: win, order: classSeason})
	}

	for _, loc := range winterRE.FindAllStringIndex(lower, -1) {
		out = append(out, candidate{start: loc[0], end: loc[1], window: winterWindow(now), order: classSeason})
	}

	return out
}

var winterRE = regexp.MustCompile(`\bwinter\b`)

// nonWrappingSeasonWindow picks the most recent occurrence of a season
// that starts within the same calendar year (spring/summer/autumn): this
// year's if it has already started, otherwise last year's.
func nonWrappingSeasonWindow(startMonth, endMonth time.Month, now time.Time) Window {
	year := now.Year()
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, now.Location())
	if start.After(now) {
		year--
		start = time.Date(year, startMonth, 1, 0, 0, 0, 0, now.Location())
	}
	end := time.Date(year, endMonth, 1, 0, 0, 0, 0, now.Location())
	end = end.AddDate(0, 1, 0).Add(-time.Millisecond)
	return windowOf(start, end)
}

// winterWindow resolves "winter" (Dec-Feb) to the most recent instance:
// Dec of the current year if we are in December, otherwise Dec of last
// year through Feb of this year.
func winterWindow(now time.Time) Window {
	year := now.Year()
	if now.Month() != time.December {
		year--
	}
	start := time.Date(year, time.December, 1, 0, 0, 0, 0, now.Location())
	end := time.Date(year+1, time.March, 1, 0, 0, 0, 0, now.Location()).Add(-time.Millisecond)
	return windowOf(start, end)
}
