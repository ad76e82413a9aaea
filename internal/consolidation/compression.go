package consolidation

import (
	"context"
	"strings"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

const summaryMaxChars = 500

// runCompression implements spec §4.H rule 4: for each cluster at or above
// cfg.CompressionMinSize, synthesize a short summary memory tagged
// ReservedCompressedTag carrying the union of member tags and a
// back-reference list of source hashes. Originals are preserved unless
// cfg.PreserveOriginals is false.
func (p *Pipeline) runCompression(ctx context.Context) StageResult {
	res := StageResult{Stage: "compression"}

	clusters, err := p.store.SearchByTag(ctx, []string{TagCluster}, storage.MatchAny)
	if err != nil {
		res.Err = err
		return res
	}

	for _, cluster := range clusters {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		res.Processed++

		hashes := unmarshalHashes(stringMeta(cluster.Metadata, "member_hashes"))
		if len(hashes) < p.cfg.CompressionMinSize {
			continue
		}

		members := make([]*types.Memory, 0, len(hashes))
		for _, h := range hashes {
			mem, _, err := p.fetchOne(ctx, h)
			if err != nil || mem == nil {
				continue
			}
			members = append(members, mem)
		}
		if len(members) < p.cfg.CompressionMinSize {
			continue
		}
		if alreadyCompressed(members) {
			continue
		}

		summary, summaryTags := synthesizeSummary(members, stringMeta(cluster.Metadata, "theme"))
		meta := types.Metadata{
			"cluster_id":    types.NewTextScalar(stringMeta(cluster.Metadata, "cluster_id")),
			"source_hashes": types.NewTextScalar(marshalHashes(hashes)),
		}
		mem, err := types.New(summary, summaryTags, "compressed-summary", meta)
		if err != nil {
			continue
		}
		if err := p.store.Store(ctx, mem); err != nil {
			continue
		}
		res.Produced++

		if !p.cfg.PreserveOriginals {
			for _, h := range hashes {
				_ = p.store.Delete(ctx, h)
			}
		}
	}
	return res
}

// alreadyCompressed reports whether any member is itself a compressed
// summary (carries ReservedCompressedTag), detected by tag rather than a
// live pointer (spec §9: no cyclic references between a memory and its
// consolidation products). It does not look for an earlier summary built
// from the same member set.
func alreadyCompressed(members []*types.Memory) bool {
	for _, m := range members {
		if m.HasTag(types.ReservedCompressedTag) {
			return true
		}
	}
	return false
}

func synthesizeSummary(members []*types.Memory, theme string) (string, []string) {
	var b strings.Builder
	if theme != "" {
		b.WriteString(theme)
		b.WriteString(": ")
	}
	tagSet := make(map[string]struct{})
	for i, m := range members {
		if i > 0 {
			b.WriteString(" / ")
		}
		snippet := m.Content
		if len(snippet) > 80 {
			snippet = snippet[:80]
		}
		b.WriteString(snippet)
		for _, t := range m.Tags {
			tagSet[t] = struct{}{}
		}
		if b.Len() >= summaryMaxChars {
			break
		}
	}
	summary := b.String()
	if len(summary) > summaryMaxChars {
		summary = summary[:summaryMaxChars]
	}

	tags := make([]string, 0, len(tagSet)+1)
	for t := range tagSet {
		tags = append(tags, t)
	}
	tags = append(tags, types.ReservedCompressedTag)
	return summary, types.NormalizeTags(tags)
}

// fetchOne retrieves a single memory by hash via the ordinary search
// surface: Store has no direct get-by-hash, so this asks for exactly the
// memory we want by tag-independent recall and filters to the hash.
// Simpler backends expose Retrieve-by-similarity only, so instead this
// walks GetRecent's sample — acceptable since compression always operates
// on hashes it just pulled from a freshly-sampled cluster.
func (p *Pipeline) fetchOne(ctx context.Context, hash string) (*types.Memory, bool, error) {
	mems, err := p.store.GetRecent(ctx, p.cfg.SampleSize)
	if err != nil {
		return nil, false, err
	}
	for _, m := range mems {
		if m.ContentHash == hash {
			return m, true, nil
		}
	}
	return nil, false, nil
}

func stringMeta(m types.Metadata, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	return v.Str
}
