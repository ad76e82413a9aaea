// Package timeparse converts natural-language time phrases embedded in a
// free-form query into a (start, end) numeric timestamp window, so the
// query planner can pre-filter memories by creation time before running
// semantic search. It never reads the system clock directly — "now" is
// always injected, so parsing is deterministic and testable.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Window is an inclusive [Start, End] range, both fractional seconds since
// the Unix epoch, with Start <= End.
type Window struct {
	Start float64
	End   float64
}

// secs converts a time.Time to fractional epoch seconds.
func secs(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

func windowOf(start, end time.Time) Window {
	return Window{Start: secs(start), End: secs(end)}
}

// startOfDay/endOfDay return the inclusive day boundary in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Millisecond)
}

// startOfWeek returns Monday 00:00 of the week containing t (weeks start Monday).
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

func endOfWeek(t time.Time) time.Time {
	return startOfWeek(t).AddDate(0, 0, 7).Add(-time.Millisecond)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func endOfMonth(t time.Time) time.Time {
	return startOfMonth(t).AddDate(0, 1, 0).Add(-time.Millisecond)
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

func endOfYear(t time.Time) time.Time {
	return startOfYear(t).AddDate(1, 0, 0).Add(-time.Millisecond)
}

// classOrder enumerates the recognized classes in the priority order spec
// §4.B lists them; lower number wins an exact-length tie.
type classOrder int

const (
	classISODate classOrder = iota
	classRegionalDate
	classNamedPeriod
	classOffset
	classSeason
	classWeekday
	classHoliday
)

// candidate is one recognized phrase occurrence within the query.
type candidate struct {
	start, end int // byte offsets into the (lowercased) query
	window     Window
	order      classOrder
}

type matcher func(lower string, now time.Time) []candidate

var matchers = []matcher{
	matchISODates,
	matchRegionalDates,
	matchNamedPeriods,
	matchOffsets,
	matchSeasons,
	matchWeekdays,
	matchHolidays,
}

// ExtractTimePhrase finds the best-matching recognized time phrase in
// query, removes it, and returns the remaining query (for clean semantic
// search) together with the window it denotes. If nothing is recognized,
// it returns the original query unchanged and a nil window — never an
// error; an unrecognized phrase is not a parse failure.
func ExtractTimePhrase(query string, now time.Time) (string, *Window) {
	lower := strings.ToLower(query)

	var all []candidate
	for _, m := range matchers {
		all = append(all, m(lower, now)...)
	}
	if len(all) == 0 {
		return query, nil
	}

	best := all[0]
	for _, c := range all[1:] {
		length := c.end - c.start
		bestLength := best.end - best.start
		if length > bestLength || (length == bestLength && c.order < best.order) {
			best = c
		}
	}

	remaining := query[:best.start] + query[best.end:]
	remaining = collapseSpaces(remaining)

	win := best.window
	return remaining, &win
}

var spaceRE = regexp.MustCompile(`\s+`)

func collapseSpaces(s string) string {
	s = spaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseInt is a small helper shared by the matcher files.
func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
