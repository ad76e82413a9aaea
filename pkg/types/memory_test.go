package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TrimsAndHashesContent(t *testing.T) {
	m, err := New("  hello world  ", []string{" a", "b ", "a", ""}, "note", nil)
	require.NoError(t, err)

	assert.Equal(t, "hello world", m.Content)
	assert.Equal(t, ContentHash("hello world"), m.ContentHash)
	assert.Equal(t, []string{"a", "b"}, m.Tags)
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)
	assert.Equal(t, m.CreatedAtISO, m.UpdatedAtISO)
}

func TestNew_EmptyContentRejected(t *testing.T) {
	_, err := New("   ", nil, "note", nil)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestContentHash_ChangesWithContent(t *testing.T) {
	h1 := ContentHash("a")
	h2 := ContentHash("b")
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, h1, ContentHash("a"))
	assert.Len(t, h1, 64)
}

func TestNormalizeTags_DedupesAndSorts(t *testing.T) {
	got := NormalizeTags([]string{"zeta", " alpha", "alpha", "", "  "})
	assert.Equal(t, []string{"alpha", "zeta"}, got)
}

func TestTouchUpdated_PreservesCreatedAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewAt("content", nil, "note", nil, created)
	require.NoError(t, err)

	later := created.Add(1000 * time.Second)
	m.TouchUpdated(later)

	assert.Equal(t, TimeToSeconds(created), m.CreatedAt)
	assert.Equal(t, TimeToSeconds(later), m.UpdatedAt)
	assert.GreaterOrEqual(t, m.UpdatedAt, m.CreatedAt)
}

func TestHasTag_ExactMatchOnly(t *testing.T) {
	m := &Memory{Tags: []string{"database-schema"}}
	assert.True(t, m.HasTag("database-schema"))
	assert.False(t, m.HasTag("schema"))
}

func TestHasAnyAllTags(t *testing.T) {
	m := &Memory{Tags: []string{"a", "b", "c"}}
	assert.True(t, m.HasAnyTag([]string{"x", "b"}))
	assert.False(t, m.HasAnyTag([]string{"x", "y"}))
	assert.True(t, m.HasAllTags([]string{"a", "b"}))
	assert.False(t, m.HasAllTags([]string{"a", "z"}))
}

func TestTimeSecondsRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	secs := TimeToSeconds(now)
	back := SecondsToTime(secs)
	assert.WithinDuration(t, now, back, time.Millisecond)
}

func TestScalarJSONRoundTrip(t *testing.T) {
	md, err := MetadataFromMap(map[string]interface{}{
		"count":   float64(3),
		"active":  true,
		"label":   "x",
		"missing": nil,
	})
	require.NoError(t, err)

	back := md.ToMap()
	assert.Equal(t, float64(3), back["count"])
	assert.Equal(t, true, back["active"])
	assert.Equal(t, "x", back["label"])
	assert.Nil(t, back["missing"])
}

func TestMetadataFromMap_RejectsNested(t *testing.T) {
	_, err := MetadataFromMap(map[string]interface{}{
		"nested": map[string]interface{}{"a": 1},
	})
	assert.Error(t, err)
}

func TestTypeBonus(t *testing.T) {
	assert.Equal(t, 0.30, TypeBonus("decision"))
	assert.Equal(t, -0.10, TypeBonus("temporary"))
	assert.Equal(t, 0.0, TypeBonus("unknown-type"))
}

func TestHalfLifeDays(t *testing.T) {
	assert.Equal(t, 365.0, HalfLifeDays("critical"))
	assert.Equal(t, 30.0, HalfLifeDays("anything-else"))
}
