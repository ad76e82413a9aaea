package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/pkg/types"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_MismatchedLength(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestScore_WeightsSumContributions(t *testing.T) {
	mem, err := types.New("we decided to use WAL mode", []string{"db", "decision"}, "decision", nil)
	require.NoError(t, err)
	mem.CreatedAt = 1000
	now := 1000 + 86400 // exactly 1 day later

	w := DefaultWeights()
	score, c := Score(mem, 0.9, []string{"db"}, "WAL mode", float64(now), w)

	assert.InDelta(t, 0.9, c.Similarity, 1e-9)
	assert.InDelta(t, 1.0, c.TagOverlap, 1e-9)
	assert.Greater(t, c.Content, 0.0)
	assert.InDelta(t, 0.30, c.TypeBonus, 1e-9)

	want := w.Similarity*c.Similarity + w.Recency*c.Recency + w.Tag*c.TagOverlap + w.Content*c.Content + w.Type*c.TypeBonus
	assert.InDelta(t, want, score, 1e-9)
}

func TestScore_EmptyTagFilterNoPenalty(t *testing.T) {
	mem, err := types.New("content", nil, "note", nil)
	require.NoError(t, err)
	mem.CreatedAt = 0
	_, c := Score(mem, 0.5, nil, "", 0, DefaultWeights())
	assert.Equal(t, 1.0, c.TagOverlap)
}

func TestScore_UnknownTypeNoBonus(t *testing.T) {
	mem, err := types.New("content", nil, "mystery", nil)
	require.NoError(t, err)
	_, c := Score(mem, 0, nil, "", 0, DefaultWeights())
	assert.Equal(t, 0.0, c.TypeBonus)
}

func TestScore_OlderMemoryDecaysLower(t *testing.T) {
	recent, _ := types.New("x", nil, "note", nil)
	recent.CreatedAt = 990000
	old, _ := types.New("y", nil, "note", nil)
	old.CreatedAt = 0

	now := 1000000.0
	w := DefaultWeights()
	sRecent, _ := Score(recent, 0, nil, "", now, w)
	sOld, _ := Score(old, 0, nil, "", now, w)
	assert.Greater(t, sRecent, sOld)
}
