package storage

import "github.com/scrypster/memento/pkg/types"

// ListOptions controls pagination and ordering for get_recent and similar
// listing operations.
type ListOptions struct {
	Limit     int
	Offset    int
	SortAsc   bool // false = newest first, the default
	MemoryType string
}

// Normalize applies defaults and caps.
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// PaginatedResult is a generic page of items plus the total row count that
// would be returned without Limit/Offset applied.
type PaginatedResult[T any] struct {
	Items []T
	Total int
}

// TimeRange is an inclusive [Start, End] bound in fractional epoch
// seconds, as produced by internal/timeparse or supplied directly by a
// caller.
type TimeRange struct {
	Start float64
	End   float64
}

// Contains reports whether t falls within the range (inclusive).
func (r TimeRange) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

// RecallQuery bundles the parameters recall() accepts: free-form text to
// embed and compare, optional tag and time filters, and the result cap.
type RecallQuery struct {
	Text       string
	Tags       []string
	MatchAllTags bool
	Window     *TimeRange
	MemoryType string
	Limit      int
	MinScore   float64
}

// Normalize applies defaults and caps to a RecallQuery.
func (q *RecallQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	if q.MinScore < 0 {
		q.MinScore = 0
	}
}

// ScoredMemory pairs a recalled memory with the composite relevance score
// the query planner computed for it.
type ScoredMemory struct {
	Memory *types.Memory
	Score  float64
}

// DuplicateGroup is a set of memories sharing a content hash, as reported
// by cleanup_duplicates before resolution.
type DuplicateGroup struct {
	ContentHash string
	Kept        string // content hash kept (always equal to ContentHash here; memories are keyed by hash)
	Removed     int
}

// Stats summarizes the store's contents for get_stats and health checks.
type Stats struct {
	TotalMemories   int
	TotalTags       int
	OldestCreatedAt float64
	NewestCreatedAt float64
	ByMemoryType    map[string]int
	StorageBytes    int64
	FallbackEmbeddingCount int
}

// HealthStatus reports whether the backend is reachable and writable.
type HealthStatus struct {
	Healthy      bool
	Backend      string
	Detail       string
	CheckedAtSec float64
}

// ProgressFunc reports incremental progress for long-running maintenance
// operations like delete_by_tags over a large result set.
type ProgressFunc func(done, total int)
