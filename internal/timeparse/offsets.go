package timeparse

import (
	"regexp"
	"time"
)

const unitGroup = `(second|seconds|minute|minutes|hour|hours|day|days|week|weeks|month|months|year|years)`

var (
	agoRE     = regexp.MustCompile(`\b(\d+)\s+` + unitGroup + `\s+ago\b`)
	lastNRE   = regexp.MustCompile(`\blast\s+(\d+)\s+` + unitGroup + `\b`)
	pastNRE   = regexp.MustCompile(`\bpast\s+(\d+)\s+` + unitGroup + `\b`)
	inLastNRE = regexp.MustCompile(`\bin the last\s+(\d+)\s+` + unitGroup + `\b`)
)

// subtractUnits moves t back by n of the given unit, using calendar-correct
// arithmetic for months/years rather than a fixed-length approximation.
func subtractUnits(t time.Time, n int, unit string) time.Time {
	switch unit {
	case "second", "seconds":
		return t.Add(-time.Duration(n) * time.Second)
	case "minute", "minutes":
		return t.Add(-time.Duration(n) * time.Minute)
	case "hour", "hours":
		return t.Add(-time.Duration(n) * time.Hour)
	case "day", "days":
		return t.AddDate(0, 0, -n)
	case "week", "weeks":
		return t.AddDate(0, 0, -7*n)
	case "month", "months":
		return t.AddDate(0, -n, 0)
	case "year", "years":
		return t.AddDate(-n, 0, 0)
	default:
		return t
	}
}

// agoWindow implements "N <unit> ago". Sub-day units resolve to a single
// instant (start == end); day-and-larger units resolve to the full
// calendar period (day/week/month/year) that instant falls in, since a
// memory's created_at is unlikely to land on the exact computed second.
func agoWindow(now time.Time, n int, unit string) Window {
	target := subtractUnits(now, n, unit)
	switch unit {
	case "second", "seconds", "minute", "minutes", "hour", "hours":
		return windowOf(target, target)
	case "day", "days":
		return windowOf(startOfDay(target), endOfDay(target))
	case "week", "weeks":
		return windowOf(startOfWeek(target), endOfWeek(target))
	case "month", "months":
		return windowOf(startOfMonth(target), endOfMonth(target))
	case "year", "years":
		return windowOf(startOfYear(target), endOfYear(target))
	default:
		return windowOf(target, target)
	}
}

// rangeWindow implements "last/past/in the last N <unit>": from N units
// before now, through now.
func rangeWindow(now time.Time, n int, unit string) Window {
	return windowOf(subtractUnits(now, n, unit), now)
}

func matchOffsets(lower string, now time.Time) []candidate {
	var out []candidate

	for _, loc := range agoRE.FindAllStringSubmatchIndex(lower, -1) {
		m := agoRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		n, unit := parseInt(m[1]), m[2]
		out = append(out, candidate{start: loc[0], end: loc[1], window: agoWindow(now, n, unit), order: classOffset})
	}

	for _, loc := range lastNRE.FindAllStringSubmatchIndex(lower, -1) {
		m := lastNRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		n, unit := parseInt(m[1]), m[2]
		out = append(out, candidate{start: loc[0], end: loc[1], window: rangeWindow(now, n, unit), order: classOffset})
	}

	for _, loc := range pastNRE.FindAllStringSubmatchIndex(lower, -1) {
		m := pastNRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		n, unit := parseInt(m[1]), m[2]
		out = append(out, candidate{start: loc[0], end: loc[1], window: rangeWindow(now, n, unit), order: classOffset})
	}

	for _, loc := range inLastNRE.FindAllStringSubmatchIndex(lower, -1) {
		m := inLastNRE.FindStringSubmatch(lower[loc[0]:loc[1]])
		n, unit := parseInt(m[1]), m[2]
		out = append(out, candidate{start: loc[0], end: loc[1], window: rangeWindow(now, n, unit), order: classOffset})
	}

	return out
}
