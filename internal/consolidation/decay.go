package consolidation

import (
	"context"
	"math"

	"github.com/scrypster/memento/pkg/types"
)

// relevanceTier maps a memory_type to the half-life tier spec §4.H names
// (critical/reference/standard/temporary). Unrecognized types fall back
// to "standard" via types.HalfLifeDays, same rule the type-bonus table
// uses for unknown types.
func relevanceTier(memoryType string) string {
	switch memoryType {
	case "critical":
		return "critical"
	case "reference", "insight", "architecture", "decision":
		return "reference"
	case "temporary", "todo":
		return "temporary"
	default:
		return "standard"
	}
}

// baseWeight is base_weight(type) in r = base_weight(type) ·
// exp(-age_days / half_life(type)): the type-bonus table already carries a
// per-type weight (spec §4.G), reused here rather than inventing a second
// table, clamped to a sane positive floor so untyped/negative-bonus types
// still decay instead of sitting at zero forever.
func baseWeight(memoryType string) float64 {
	w := 0.5 + types.TypeBonus(memoryType)
	if w < 0.1 {
		w = 0.1
	}
	return w
}

// computeRelevance implements spec §4.H rule 1 exactly: r = base_weight ·
// exp(-age_days / half_life), clamped to [0, 1].
func computeRelevance(memoryType string, ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	halfLife := types.HalfLifeDays(relevanceTier(memoryType))
	r := baseWeight(memoryType) * math.Exp(-ageDays/halfLife)
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return r
}

const metaRelevance = "relevance"

// runDecay recomputes and stores r for every sampled memory. It never
// touches content or the created_at/updated_at timestamps: the score rides
// in metadata, written with preserveTimestamps=true.
func (p *Pipeline) runDecay(ctx context.Context) StageResult {
	res := StageResult{Stage: "decay"}

	mems, err := p.sampleActive(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	now := nowSeconds()
	for _, mem := range mems {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		ageDays := (now - mem.CreatedAt) / 86400
		r := computeRelevance(mem.MemoryType, ageDays)

		updates := types.Metadata{metaRelevance: types.NewFloatScalar(r)}
		if err := p.store.UpdateMetadata(ctx, mem.ContentHash, updates, true); err != nil {
			continue // one bad row doesn't abort the sweep
		}
		res.Processed++
		res.Produced++
	}
	return res
}
