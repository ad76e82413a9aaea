// Package planner implements the composite relevance score recall() uses
// to rank candidates: a weighted sum of vector similarity, recency decay,
// tag overlap, keyword overlap, and a per-type bonus.
package planner

import (
	"math"
	"strings"

	"github.com/scrypster/memento/pkg/types"
)

// Weights holds the five coefficients of the composite score, plus the
// recency decay rate. All are configurable per call; Default returns
// spec's stated defaults.
type Weights struct {
	Similarity float64
	Recency    float64
	Tag        float64
	Content    float64
	Type       float64
	Lambda     float64
}

// DefaultWeights returns w_sim=0.55, w_recency=0.20, w_tag=0.15,
// w_content=0.05, w_type=0.05, λ=0.1.
func DefaultWeights() Weights {
	return Weights{
		Similarity: 0.55,
		Recency:    0.20,
		Tag:        0.15,
		Content:    0.05,
		Type:       0.05,
		Lambda:     0.1,
	}
}

// Components breaks a composite score into its weighted contributions,
// for callers that want to explain a ranking rather than just sort by it.
type Components struct {
	Similarity float64
	Recency    float64
	TagOverlap float64
	Content    float64
	TypeBonus  float64
}

// CosineSimilarity returns the cosine similarity of a and b, 0 when either
// is the zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// recencyScore applies exponential decay exp(-λ · age_days) against nowSec.
func recencyScore(createdAt, nowSec, lambda float64) float64 {
	ageDays := (nowSec - createdAt) / 86400
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-lambda * ageDays)
}

// tagOverlapRatio is |query ∩ memory| / |query|, 1.0 when queryTags is empty
// (an absent tag filter imposes no penalty).
func tagOverlapRatio(queryTags []string, memory *types.Memory) float64 {
	if len(queryTags) == 0 {
		return 1.0
	}
	matched := 0
	for _, qt := range queryTags {
		if memory.HasTag(qt) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTags))
}

// keywordOverlapRatio is the fraction of query's whitespace tokens that
// appear (case-insensitively) in memory.Content.
func keywordOverlapRatio(query string, memory *types.Memory) float64 {
	if query == "" {
		return 0
	}
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}
	content := strings.ToLower(memory.Content)
	matched := 0
	for _, w := range words {
		if strings.Contains(content, w) {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

// Score computes the composite relevance of memory against a query,
// given its embedding similarity (computed by the caller, since only it
// knows the query vector), the query's tag filter (if any), the raw query
// text (for keyword overlap), the current time, and the weight set to use.
func Score(memory *types.Memory, similarity float64, queryTags []string, queryText string, nowSec float64, w Weights) (float64, Components) {
	c := Components{
		Similarity: similarity,
		Recency:    recencyScore(memory.CreatedAt, nowSec, w.Lambda),
		TagOverlap: tagOverlapRatio(queryTags, memory),
		Content:    keywordOverlapRatio(queryText, memory),
		TypeBonus:  types.TypeBonus(memory.MemoryType),
	}

	total := w.Similarity*c.Similarity +
		w.Recency*c.Recency +
		w.Tag*c.TagOverlap +
		w.Content*c.Content +
		w.Type*c.TypeBonus

	return total, c
}
