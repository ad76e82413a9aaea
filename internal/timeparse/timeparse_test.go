package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm.UTC()
}

func TestExtractTimePhrase_Yesterday(t *testing.T) {
	now := mustParse(t, "2025-01-20T10:00:00Z")

	remaining, win := ExtractTimePhrase("what did we decide yesterday about WAL?", now)
	require.NotNil(t, win)
	assert.Equal(t, "what did we decide about WAL?", remaining)

	wantStart := secs(mustParse(t, "2025-01-19T00:00:00Z"))
	wantEnd := secs(mustParse(t, "2025-01-19T23:59:59.999Z"))
	assert.InDelta(t, wantStart, win.Start, 0.001)
	assert.InDelta(t, wantEnd, win.End, 0.001)
}

func TestExtractTimePhrase_NoMatch(t *testing.T) {
	now := mustParse(t, "2025-01-20T10:00:00Z")
	remaining, win := ExtractTimePhrase("what is the meaning of life", now)
	assert.Nil(t, win)
	assert.Equal(t, "what is the meaning of life", remaining)
}

func TestExtractTimePhrase_ISODate(t *testing.T) {
	now := mustParse(t, "2025-06-01T00:00:00Z")
	_, win := ExtractTimePhrase("notes from 2024-06-15", now)
	require.NotNil(t, win)
	start := mustParse(t, "2024-06-15T00:00:00Z")
	end := mustParse(t, "2024-06-15T23:59:59.999Z")
	assert.InDelta(t, secs(start), win.Start, 0.001)
	assert.InDelta(t, secs(end), win.End, 0.001)
}

func TestExtractTimePhrase_ISOBeatsRegional(t *testing.T) {
	// "2024-06-15" must not be misread as a regional date.
	now := mustParse(t, "2025-06-01T00:00:00Z")
	_, win := ExtractTimePhrase("2024-06-15", now)
	require.NotNil(t, win)
	start := mustParse(t, "2024-06-15T00:00:00Z")
	assert.InDelta(t, secs(start), win.Start, 0.001)
}

func TestExtractTimePhrase_RegionalMDY(t *testing.T) {
	now := mustParse(t, "2025-06-01T00:00:00Z")
	_, win := ExtractTimePhrase("due 06/15/2024", now)
	require.NotNil(t, win)
	start := mustParse(t, "2024-06-15T00:00:00Z")
	assert.InDelta(t, secs(start), win.Start, 0.001)
}

func TestExtractTimePhrase_ThisWeekRunsToNow(t *testing.T) {
	// Wednesday 2025-01-22
	now := mustParse(t, "2025-01-22T15:00:00Z")
	_, win := ExtractTimePhrase("what have I done this week", now)
	require.NotNil(t, win)
	monday := mustParse(t, "2025-01-20T00:00:00Z")
	assert.InDelta(t, secs(monday), win.Start, 0.001)
	assert.InDelta(t, secs(now), win.End, 0.001)
}

func TestExtractTimePhrase_LastWeek(t *testing.T) {
	now := mustParse(t, "2025-01-22T15:00:00Z")
	_, win := ExtractTimePhrase("last week's summary", now)
	require.NotNil(t, win)
	start := mustParse(t, "2025-01-13T00:00:00Z")
	end := mustParse(t, "2025-01-19T23:59:59.999Z")
	assert.InDelta(t, secs(start), win.Start, 0.001)
	assert.InDelta(t, secs(end), win.End, 0.001)
}

func TestExtractTimePhrase_OffsetDaysAgo(t *testing.T) {
	now := mustParse(t, "2025-01-22T15:00:00Z")
	_, win := ExtractTimePhrase("3 days ago we shipped", now)
	require.NotNil(t, win)
	day := mustParse(t, "2025-01-19T00:00:00Z")
	assert.InDelta(t, secs(day), win.Start, 0.001)
}

func TestExtractTimePhrase_LastNDays(t *testing.T) {
	now := mustParse(t, "2025-01-22T15:00:00Z")
	_, win := ExtractTimePhrase("last 5 days", now)
	require.NotNil(t, win)
	assert.InDelta(t, secs(now.AddDate(0, 0, -5)), win.Start, 0.001)
	assert.InDelta(t, secs(now), win.End, 0.001)
}

func TestExtractTimePhrase_PastHours(t *testing.T) {
	now := mustParse(t, "2025-01-22T15:00:00Z")
	_, win := ExtractTimePhrase("past 2 hours", now)
	require.NotNil(t, win)
	assert.InDelta(t, secs(now.Add(-2*time.Hour)), win.Start, 0.001)
}

func TestExtractTimePhrase_Season(t *testing.T) {
	now := mustParse(t, "2025-07-15T00:00:00Z")
	_, win := ExtractTimePhrase("what happened last summer", now)
	require.NotNil(t, win)
	start := mustParse(t, "2025-06-01T00:00:00Z")
	assert.InDelta(t, secs(start), win.Start, 0.001)
}

func TestExtractTimePhrase_Winter(t *testing.T) {
	now := mustParse(t, "2025-01-15T00:00:00Z")
	_, win := ExtractTimePhrase("winter notes", now)
	require.NotNil(t, win)
	start := mustParse(t, "2024-12-01T00:00:00Z")
	assert.InDelta(t, secs(start), win.Start, 0.001)
}

func TestExtractTimePhrase_Weekday(t *testing.T) {
	// Wednesday 2025-01-22
	now := mustParse(t, "2025-01-22T15:00:00Z")
	_, win := ExtractTimePhrase("last Monday's standup", now)
	require.NotNil(t, win)
	monday := mustParse(t, "2025-01-20T00:00:00Z")
	assert.InDelta(t, secs(monday), win.Start, 0.001)
}

func TestExtractTimePhrase_Holiday(t *testing.T) {
	now := mustParse(t, "2025-01-15T00:00:00Z")
	_, win := ExtractTimePhrase("since christmas", now)
	require.NotNil(t, win)
	xmas := mustParse(t, "2024-12-25T00:00:00Z")
	assert.InDelta(t, secs(xmas), win.Start, 0.001)
}

func TestExtractTimePhrase_WidestMatchWins(t *testing.T) {
	now := mustParse(t, "2025-01-22T15:00:00Z")
	// "past 2 weeks" (12 bytes) and "2 weeks ago" (11 bytes) overlap; the
	// longer match wins, so the window starts exactly 14 days before now
	// rather than at the Monday of the week two weeks back (2025-01-06).
	_, win := ExtractTimePhrase("past 2 weeks ago", now)
	require.NotNil(t, win)
	start := mustParse(t, "2025-01-08T15:00:00Z")
	assert.InDelta(t, secs(start), win.Start, 0.001)
}
