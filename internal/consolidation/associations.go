package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/scrypster/memento/internal/planner"
	"github.com/scrypster/memento/pkg/types"
)

// runAssociativeDiscovery implements spec §4.H rule 2: for a sample of
// recently-touched memories, compare each against a random reservoir and
// emit an Association for every pair landing in the "interesting middle"
// (similar enough to be related, dissimilar enough not to be a near-
// duplicate), capped at cfg.MaxAssociationPairs per run.
func (p *Pipeline) runAssociativeDiscovery(ctx context.Context) StageResult {
	res := StageResult{Stage: "associative_discovery"}

	recent, err := p.sampleActive(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	recent = excludeSystemTagged(recent)
	if len(recent) < 2 {
		return res
	}

	reservoirSize := len(recent) / 2
	if reservoirSize < 1 {
		reservoirSize = 1
	}
	reservoir := reservoirSample(recent, reservoirSize)

	// Resolve every candidate's embedding once, concurrently, rather than
	// re-embedding per-pair inside the O(n*m) loop below.
	recentVecs := p.embedAllBounded(ctx, recent)
	vecByHash := make(map[string][]float32, len(recent))
	for i, m := range recent {
		vecByHash[m.ContentHash] = recentVecs[i]
	}

	maxPairs := p.cfg.MaxAssociationPairs
	if maxPairs <= 0 {
		maxPairs = 100
	}

	now := nowSeconds()
	seen := make(map[[2]string]bool)

	for _, a := range recent {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		if res.Produced >= maxPairs {
			break
		}
		vecA := vecByHash[a.ContentHash]
		if vecA == nil {
			continue
		}
		for _, b := range reservoir {
			if res.Produced >= maxPairs {
				break
			}
			if a.ContentHash == b.ContentHash {
				continue
			}
			key := pairKey(a.ContentHash, b.ContentHash)
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Processed++

			vecB := vecByHash[b.ContentHash]
			if vecB == nil {
				continue
			}
			sim := planner.CosineSimilarity(vecA, vecB)
			if sim < p.cfg.MinSimilarity || sim > p.cfg.MaxSimilarity {
				continue
			}

			assoc := types.Association{HashA: key[0], HashB: key[1], Strength: sim, DiscoveredAt: now}
			if err := p.storeAssociation(ctx, assoc); err == nil {
				res.Produced++
			}
		}
	}
	return res
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// excludeSystemTagged drops the pipeline's own derived memories
// (associations, clusters, compressed summaries) from candidate pools so
// consolidation never builds products out of its own products.
func excludeSystemTagged(mems []*types.Memory) []*types.Memory {
	out := make([]*types.Memory, 0, len(mems))
	for _, m := range mems {
		if m.HasAnyTag([]string{TagAssociation, TagCluster, types.ReservedCompressedTag}) {
			continue
		}
		if m.HasTag(types.ReservedFallbackEmbeddingTag) {
			// spec §4.C: avoid building associations out of fallback
			// embeddings, whose vectors carry no real semantic signal.
			continue
		}
		out = append(out, m)
	}
	return out
}

// reservoirSample returns a random subset (reservoir sampling) of size n
// from mems, or all of mems if n >= len(mems).
func reservoirSample(mems []*types.Memory, n int) []*types.Memory {
	if n >= len(mems) {
		return mems
	}
	reservoir := make([]*types.Memory, n)
	copy(reservoir, mems[:n])
	for i := n; i < len(mems); i++ {
		j := rand.Intn(i + 1)
		if j < n {
			reservoir[j] = mems[i]
		}
	}
	return reservoir
}

// storeAssociation persists an Association as a system-tagged memory, per
// spec §3's "stored as system-tagged memories" option — the pipeline only
// ever talks to the ordinary storage interface, so this is a Memory whose
// content is a human-readable description and whose metadata carries the
// structured fields a maintenance tool would want back out.
func (p *Pipeline) storeAssociation(ctx context.Context, a types.Association) error {
	content := fmt.Sprintf("association: %s <-> %s (strength %.3f)", a.HashA, a.HashB, a.Strength)
	meta := types.Metadata{
		"hash_a":        types.NewTextScalar(a.HashA),
		"hash_b":        types.NewTextScalar(a.HashB),
		"strength":      types.NewFloatScalar(a.Strength),
		"discovered_at": types.NewFloatScalar(a.DiscoveredAt),
	}
	mem, err := types.New(content, []string{TagAssociation}, MemoryTypeAssoc, meta)
	if err != nil {
		return err
	}
	return p.store.Store(ctx, mem)
}

// marshalHashes is a small helper compression.go and clustering.go share
// for packing a hash list into the single metadata scalar Metadata's flat
// value model allows (no array scalar kind).
func marshalHashes(hashes []string) string {
	b, _ := json.Marshal(hashes)
	return string(b)
}

func unmarshalHashes(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
