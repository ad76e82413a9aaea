package timeparse

import (
	"regexp"
	"time"
)

// namedPeriod maps a phrase to a window builder. "this X" periods run
// through the now moment rather than to the end of the period — spec
// singles "this week" out for this behavior ("useful for what have I done
// so far"); the same reasoning applies symmetrically to "this month" and
// "this year", so all three share it here.
var namedPeriods = []struct {
	re      *regexp.Regexp
	window  func(now time.Time) Window
}{
	{regexp.MustCompile(`\btoday\b`), func(now time.Time) Window {
		return windowOf(startOfDay(now), endOfDay(now))
	}},
	{regexp.MustCompile(`\byesterday\b`), func(now time.Time) Window {
		y := now.AddDate(0, 0, -1)
		return windowOf(startOfDay(y), endOfDay(y))
	}},
	{regexp.MustCompile(`\bthis week\b`), func(now time.Time) Window {
		return windowOf(startOfWeek(now), now)
	}},
	{regexp.MustCompile(`\blast week\b`), func(now time.Time) Window {
		start := startOfWeek(now).AddDate(0, 0, -7)
		return windowOf(start, start.AddDate(0, 0, 7).Add(-time.Millisecond))
	}},
	{regexp.MustCompile(`\bthis month\b`), func(now time.Time) Window {
		return windowOf(startOfMonth(now), now)
	}},
	{regexp.MustCompile(`\blast month\b`), func(now time.Time) Window {
		start := startOfMonth(now).AddDate(0, -1, 0)
		return windowOf(start, startOfMonth(now).Add(-time.Millisecond))
	}},
	{regexp.MustCompile(`\bthis year\b`), func(now time.Time) Window {
		return windowOf(startOfYear(now), now)
	}},
	{regexp.MustCompile(`\blast year\b`), func(now time.Time) Window {
		start := startOfYear(now).AddDate(-1, 0, 0)
		return windowOf(start, startOfYear(now).Add(-time.Millisecond))
	}},
}

func matchNamedPeriods(lower string, now time.Time) []candidate {
	var out []candidate
	for _, p := range namedPeriods {
		for _, loc := range p.re.FindAllStringIndex(lower, -1) {
			out = append(out, candidate{start: loc[0], end: loc[1], window: p.window(now), order: classNamedPeriod})
		}
	}
	return out
}
