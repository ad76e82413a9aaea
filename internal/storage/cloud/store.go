package cloud

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/planner"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// overFetchFactor widens the vector search so post-filtering (window,
// tags, type) still leaves n results, per §4.E's retrieve procedure
// (the same over-fetch discipline applies to the cloud backend).
const overFetchFactor = 4

// Config wires the three managed services plus the embedding service
// the cloud backend needs.
type Config struct {
	PostgresDSN string
	Dimension   int

	VectorIndex vectorIndexConfig

	// ObjectStoreBucket, if non-empty, enables the optional overflow
	// object store for content past objectStoreThreshold.
	ObjectStoreBucket string
	ObjectStorePrefix string
}

// Store implements storage.Store against the three managed cloud
// services. The SQL metadata service is authoritative; the vector index
// is a disposable accelerator the reconciler can rebuild.
type Store struct {
	sql     *sqlMetadata
	vectors *vectorIndex
	objects *objectStore
	embed   *embedding.Service
	weights planner.Weights
}

// New connects to the configured Postgres instance and Weaviate class,
// and optionally a GCS bucket for content overflow.
func New(ctx context.Context, cfg Config, embed *embedding.Service) (*Store, error) {
	sqlSvc, err := newSQLMetadata(cfg.PostgresDSN, cfg.Dimension)
	if err != nil {
		return nil, err
	}

	vecSvc, err := newVectorIndex(cfg.VectorIndex)
	if err != nil {
		sqlSvc.close()
		return nil, err
	}

	var objSvc *objectStore
	if cfg.ObjectStoreBucket != "" {
		objSvc, err = newObjectStore(ctx, cfg.ObjectStoreBucket, cfg.ObjectStorePrefix)
		if err != nil {
			sqlSvc.close()
			return nil, err
		}
	}

	return &Store{sql: sqlSvc, vectors: vecSvc, objects: objSvc, embed: embed, weights: planner.DefaultWeights()}, nil
}

// WithWeights overrides the default planner weights, matching the
// embedded backend's per-deployment tuning hook.
func (s *Store) WithWeights(w planner.Weights) *Store {
	s.weights = w
	return s
}

func (s *Store) Initialize(ctx context.Context) error {
	return s.vectors.ensureSchema(ctx, s.embed.Dimension())
}

func (s *Store) Close() error {
	if err := s.objects.close(); err != nil {
		log.Printf("cloud: error closing object store: %v", err)
	}
	return s.sql.close()
}

// Store writes metadata first (the authoritative write); the vector
// write happens after and is allowed to fail without failing the call,
// per §4.F's consistency model — a failed vector write only marks
// vector_missing=true for the reconciler to fix.
func (s *Store) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.Content == "" {
		return storage.InvalidInput("memory content is required", "")
	}
	if memory.ContentHash == "" {
		memory.ContentHash = types.ContentHash(memory.Content)
	}

	if len(memory.Embedding) == 0 {
		result, err := s.embed.Embed(ctx, memory.Content)
		if err != nil {
			return err
		}
		memory.Embedding = result.Vector
		if result.Fallback && !memory.HasTag(types.ReservedFallbackEmbeddingTag) {
			memory.Tags = types.NormalizeTags(append(memory.Tags, types.ReservedFallbackEmbeddingTag))
		}
	}

	contentRef, err := s.objects.put(ctx, memory.ContentHash, memory.Content)
	if err != nil {
		return err
	}

	inserted, err := s.sql.upsertMetadata(ctx, memory, contentRef)
	if err != nil {
		return err
	}
	if !inserted {
		return storage.Duplicate("a memory with this content already exists", memory.ContentHash)
	}

	if err := s.vectors.upsert(ctx, memory.ContentHash, memory.Embedding, memory.MemoryType); err != nil {
		log.Printf("cloud: vector write failed for %s, marking vector_missing: %v", memory.ContentHash, err)
		if markErr := s.sql.markVectorMissing(ctx, memory.ContentHash, true); markErr != nil {
			log.Printf("cloud: failed to mark vector_missing for %s: %v", memory.ContentHash, markErr)
		}
	}
	return nil
}

// resolveContent fetches overflowed content from the object store for any
// memory whose row carries a content_ref.
func (s *Store) resolveContent(ctx context.Context, mems []*types.Memory, refs map[string]string) error {
	for _, m := range mems {
		ref, ok := refs[m.ContentHash]
		if !ok || ref == "" {
			continue
		}
		content, err := s.objects.get(ctx, ref)
		if err != nil {
			return err
		}
		m.Content = content
	}
	return nil
}

func (s *Store) Retrieve(ctx context.Context, query string, n int) ([]storage.ScoredMemory, error) {
	if n <= 0 {
		n = 10
	}
	result, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectors.search(ctx, result.Vector, n*overFetchFactor, "")
	if err != nil {
		return nil, err
	}

	now := types.TimeToSeconds(time.Now())
	scored := make([]storage.ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		mem, _, err := s.sql.get(ctx, hit.ContentHash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue // stray vector for a deleted memory; skipped, not removed
			}
			return nil, err
		}
		score, _ := planner.Score(mem, hit.Similarity, nil, query, now, s.weights)
		scored = append(scored, storage.ScoredMemory{Memory: mem, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}

func (s *Store) SearchByTag(ctx context.Context, tags []string, mode storage.TagMatchMode) ([]*types.Memory, error) {
	return s.sql.searchByTag(ctx, tags, mode)
}

// Recall composes window/tag/text filters against the authoritative SQL
// service, then (when a query text is present) restricts vector search
// results to the surviving candidate set, matching §4.G's recall steps.
func (s *Store) Recall(ctx context.Context, q storage.RecallQuery) ([]storage.ScoredMemory, error) {
	q.Normalize()

	var candidates []*types.Memory
	var refs map[string]string
	var err error
	switch {
	case q.Window != nil:
		candidates, refs, err = s.sql.listByWindow(ctx, q.Window.Start, q.Window.End)
	default:
		candidates, refs, err = s.sql.listAllActive(ctx)
	}
	if err != nil {
		return nil, err
	}
	if err := s.resolveContent(ctx, candidates, refs); err != nil {
		return nil, err
	}

	if q.MemoryType != "" {
		filtered := candidates[:0]
		for _, m := range candidates {
			if m.MemoryType == q.MemoryType {
				filtered = append(filtered, m)
			}
		}
		candidates = filtered
	}

	if len(q.Tags) > 0 {
		filtered := candidates[:0]
		for _, m := range candidates {
			var ok bool
			if q.MatchAllTags {
				ok = m.HasAllTags(q.Tags)
			} else {
				ok = m.HasAnyTag(q.Tags)
			}
			if ok {
				filtered = append(filtered, m)
			}
		}
		candidates = filtered
	}

	now := types.TimeToSeconds(time.Now())

	if q.Text != "" {
		surviving := make(map[string]bool, len(candidates))
		byHash := make(map[string]*types.Memory, len(candidates))
		for _, m := range candidates {
			surviving[m.ContentHash] = true
			byHash[m.ContentHash] = m
		}

		result, err := s.embed.Embed(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		hits, err := s.vectors.search(ctx, result.Vector, len(candidates)+q.Limit*overFetchFactor, q.MemoryType)
		if err != nil {
			return nil, err
		}

		scored := make([]storage.ScoredMemory, 0, len(hits))
		for _, hit := range hits {
			mem, ok := byHash[hit.ContentHash]
			if !ok {
				continue // outside the metadata-filtered candidate set
			}
			score, _ := planner.Score(mem, hit.Similarity, q.Tags, q.Text, now, s.weights)
			if score < q.MinScore {
				continue
			}
			scored = append(scored, storage.ScoredMemory{Memory: mem, Score: score})
		}
		sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
		if len(scored) > q.Limit {
			scored = scored[:q.Limit]
		}
		return scored, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt > candidates[j].CreatedAt })
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	scored := make([]storage.ScoredMemory, len(candidates))
	for i, m := range candidates {
		scored[i] = storage.ScoredMemory{Memory: m, Score: 1}
	}
	return scored, nil
}

// Delete removes the metadata row first (the authoritative write),
// then best-effort cleans up the overflow object and the vector — a
// vector delete failure here is logged and leaves a stray vector in the
// index, which nothing removes later (Retrieve skips such hits).
func (s *Store) Delete(ctx context.Context, contentHash string) error {
	_, ref, err := s.sql.get(ctx, contentHash)
	if err != nil {
		return err
	}
	if err := s.sql.delete(ctx, contentHash); err != nil {
		return err
	}
	if err := s.objects.delete(ctx, ref); err != nil {
		log.Printf("cloud: failed to delete overflow object for %s: %v", contentHash, err)
	}
	if err := s.vectors.delete(ctx, contentHash); err != nil {
		log.Printf("cloud: failed to delete vector for %s (stray vector left in index): %v", contentHash, err)
	}
	return nil
}

func (s *Store) DeleteByTag(ctx context.Context, tag string) (int, error) {
	memories, err := s.sql.searchByTag(ctx, []string{tag}, storage.MatchAny)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, m := range memories {
		if err := s.Delete(ctx, m.ContentHash); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *Store) DeleteByTags(ctx context.Context, tags []string, progress storage.ProgressFunc) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	memories, err := s.sql.searchByTag(ctx, tags, storage.MatchAny)
	if err != nil {
		return 0, err
	}

	total := len(memories)
	deleted := 0
	lastDecileReported := -1

	for i, m := range memories {
		if err := s.Delete(ctx, m.ContentHash); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return deleted, err
			}
			continue
		}
		deleted++

		if progress != nil && total > 0 {
			decile := (i + 1) * 10 / total
			if decile != lastDecileReported {
				progress(i+1, total)
				lastDecileReported = decile
			}
		}
	}
	return deleted, nil
}

func (s *Store) UpdateMetadata(ctx context.Context, contentHash string, updates types.Metadata, preserveTimestamps bool) error {
	now := time.Now()
	return s.sql.updateMetadata(ctx, contentHash, updates, preserveTimestamps, types.TimeToSeconds(now), now.UTC().Format(time.RFC3339))
}

func (s *Store) SetArchived(ctx context.Context, contentHash string, archivedAt *float64) error {
	return s.sql.setArchived(ctx, contentHash, archivedAt)
}

func (s *Store) GetArchivedBefore(ctx context.Context, cutoff float64) ([]*types.Memory, error) {
	mems, refs, err := s.sql.getArchivedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if err := s.resolveContent(ctx, mems, refs); err != nil {
		return nil, err
	}
	return mems, nil
}

// CleanupDuplicates is a no-op on this backend: content_hash is the SQL
// service's primary key, so duplicate content can never produce two
// rows in the first place (Store already rejects it as Duplicate).
func (s *Store) CleanupDuplicates(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *Store) GetAllTags(ctx context.Context) ([]storage.TagCount, error) {
	return s.sql.getAllTags(ctx)
}

func (s *Store) GetRecent(ctx context.Context, n int) ([]*types.Memory, error) {
	if n <= 0 {
		n = 20
	}
	mems, refs, err := s.sql.getRecent(ctx, n)
	if err != nil {
		return nil, err
	}
	if err := s.resolveContent(ctx, mems, refs); err != nil {
		return nil, err
	}
	return mems, nil
}

func (s *Store) GetStats(ctx context.Context) (storage.Stats, error) {
	return s.sql.stats(ctx)
}

// Optimize is a no-op on the cloud backend: Postgres and Weaviate manage
// their own storage layout, and there is no local file for this process
// to reclaim space from.
func (s *Store) Optimize(ctx context.Context) error {
	return nil
}

func (s *Store) Health(ctx context.Context) storage.HealthStatus {
	now := types.TimeToSeconds(time.Now())
	if err := s.sql.db.PingContext(ctx); err != nil {
		return storage.HealthStatus{Healthy: false, Backend: "cloud", Detail: err.Error(), CheckedAtSec: now}
	}
	return storage.HealthStatus{Healthy: true, Backend: "cloud", Detail: "connected", CheckedAtSec: now}
}
