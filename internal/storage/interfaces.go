package storage

import (
	"context"

	"github.com/scrypster/memento/pkg/types"
)

// TagMatchMode selects how a multi-tag filter combines.
type TagMatchMode int

const (
	MatchAny TagMatchMode = iota
	MatchAll
)

// TagCount pairs a tag with how many active memories carry it, as
// returned by GetAllTags.
type TagCount struct {
	Tag   string
	Count int
}

// Store is the single contract every backend implements — the embedded
// SQLite+vector store and the managed cloud store alike. Outer layers
// (the planner, the MCP/HTTP surfaces, consolidation) depend only on this
// interface, never on a concrete backend.
type Store interface {
	// Initialize prepares the backend for use: opens connections, applies
	// migrations, verifies the embedding provider's dimension matches what
	// was captured at creation. Returns Misconfigured, SchemaIncompatible.
	Initialize(ctx context.Context) error

	// Store persists memory, computing and filling its embedding if not
	// already set. Returns ErrDuplicate (as a successful no-op, not a
	// failure) when content_hash already exists.
	Store(ctx context.Context, memory *types.Memory) error

	// Retrieve runs similarity search against query, returning the n
	// highest-scoring memories in descending score order.
	Retrieve(ctx context.Context, query string, n int) ([]ScoredMemory, error)

	// SearchByTag returns memories matching tags under the given mode, in
	// no particular guaranteed order beyond newest-first.
	SearchByTag(ctx context.Context, tags []string, mode TagMatchMode) ([]*types.Memory, error)

	// Recall runs the composite query planner: optional text similarity,
	// optional tag filter, optional time window, capped at n results. A
	// RecallQuery with all optional fields empty is equivalent to
	// GetRecent(n).
	Recall(ctx context.Context, q RecallQuery) ([]ScoredMemory, error)

	// Delete removes the memory with the given content hash. Returns
	// ErrNotFound if it does not exist.
	Delete(ctx context.Context, contentHash string) error

	// DeleteByTag removes every memory carrying tag, returning the count
	// removed.
	DeleteByTag(ctx context.Context, tag string) (int, error)

	// DeleteByTags removes every memory carrying any of tags, reporting
	// progress at roughly decile boundaries via progress if non-nil.
	DeleteByTags(ctx context.Context, tags []string, progress ProgressFunc) (int, error)

	// UpdateMetadata merges updates into the memory's metadata. When
	// preserveTimestamps is true, created_at and updated_at are left
	// untouched; otherwise updated_at advances to now.
	UpdateMetadata(ctx context.Context, contentHash string, updates types.Metadata, preserveTimestamps bool) error

	// SetArchived sets (archivedAt non-nil) or clears (archivedAt nil) the
	// memory's archived_at column. An archived memory is excluded from
	// every other read path (Retrieve, Recall, SearchByTag, GetRecent,
	// GetStats) until cleared or hard-deleted.
	SetArchived(ctx context.Context, contentHash string, archivedAt *float64) error

	// GetArchivedBefore returns every memory archived at or before cutoff,
	// the population a grace-period sweep hard-deletes from.
	GetArchivedBefore(ctx context.Context, cutoff float64) ([]*types.Memory, error)

	// CleanupDuplicates finds memories sharing a content hash (which
	// should not normally occur given upsert-by-hash semantics, but can
	// arise from a pre-hash-enforcement legacy layout) and merges them,
	// returning the count removed.
	CleanupDuplicates(ctx context.Context) (int, error)

	// GetAllTags returns every tag in use across active memories, sorted
	// alphabetically, with per-tag counts.
	GetAllTags(ctx context.Context) ([]TagCount, error)

	// GetRecent returns the n most recently created memories, newest first.
	GetRecent(ctx context.Context, n int) ([]*types.Memory, error)

	// GetStats returns aggregate counts and storage size.
	GetStats(ctx context.Context) (Stats, error)

	// Health reports whether the backend is reachable and writable.
	Health(ctx context.Context) HealthStatus

	// Optimize runs backend-appropriate maintenance (index rebuild,
	// statistics refresh, space reclamation). A no-op is a valid
	// implementation for backends with no local file to reclaim.
	Optimize(ctx context.Context) error

	// Close releases any resources (connections, file handles) held by
	// the store.
	Close() error
}
