package consolidation

import (
	"context"

	"github.com/scrypster/memento/pkg/types"
)

const metaLastAccessed = "last_accessed_at"

// runForgetting implements spec §4.H rule 5: memories with r below
// cfg.RelevanceThreshold and no access in cfg.AccessThresholdDays are
// archived via the SQL archived_at column (storage.Store.SetArchived),
// which is what actually hides them from Retrieve/Recall/GetRecent/
// GetStats; memories already archived past cfg.ForgetGraceDays are
// hard-deleted. Archived memories no longer appear in sampleActive's
// result, so the grace-period sweep fetches them separately via
// GetArchivedBefore.
func (p *Pipeline) runForgetting(ctx context.Context) StageResult {
	res := StageResult{Stage: "forgetting"}
	now := nowSeconds()

	graceSeconds := p.cfg.ForgetGraceDays * 86400
	expired, err := p.store.GetArchivedBefore(ctx, now-graceSeconds)
	if err != nil {
		res.Err = err
		return res
	}
	for _, mem := range expired {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		res.Processed++
		if err := p.store.Delete(ctx, mem.ContentHash); err == nil {
			res.Produced++
		}
	}

	mems, err := p.sampleActive(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	for _, mem := range mems {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		res.Processed++

		r, hasR := floatMeta(mem.Metadata, metaRelevance)
		if !hasR || r >= p.cfg.RelevanceThreshold {
			continue
		}

		lastAccess := mem.CreatedAt
		if la, ok := floatMeta(mem.Metadata, metaLastAccessed); ok {
			lastAccess = la
		}
		idleDays := (now - lastAccess) / 86400
		if idleDays < p.cfg.AccessThresholdDays {
			continue
		}

		archivedAt := now
		if err := p.store.SetArchived(ctx, mem.ContentHash, &archivedAt); err == nil {
			res.Produced++
		}
	}
	return res
}

func floatMeta(m types.Metadata, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.Num, true
}
