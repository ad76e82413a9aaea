// Package types defines the core data structures for the Memento memory
// system: the content-addressed Memory entity and the system entities its
// consolidation pipeline produces (associations, clusters, compressed
// summaries).
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrEmptyContent is returned by New when content is empty after trimming.
var ErrEmptyContent = errors.New("types: content must not be empty")

// Memory is a single content-addressed text item with tags, metadata, and
// a vector embedding. content_hash is its canonical identity: storing the
// same content twice is a no-op.
type Memory struct {
	ContentHash string    `json:"content_hash"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags"`
	MemoryType  string    `json:"memory_type"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	Embedding   []float32 `json:"-"`

	CreatedAt    float64 `json:"created_at"`
	UpdatedAt    float64 `json:"updated_at"`
	CreatedAtISO string  `json:"created_at_iso"`
	UpdatedAtISO string  `json:"updated_at_iso"`
}

// New builds a Memory from caller input. Content is trimmed; empty content
// after trimming is InvalidInput (ErrEmptyContent). Tags are normalized:
// trimmed, empties dropped, duplicates collapsed, order not significant.
// Timestamps default to now; the embedding is left nil for the caller
// (normally the storage layer, via an embedding.Provider) to fill in.
func New(content string, tags []string, memoryType string, metadata Metadata) (*Memory, error) {
	return NewAt(content, tags, memoryType, metadata, time.Now())
}

// NewAt is New with an injected "now", for deterministic tests.
func NewAt(content string, tags []string, memoryType string, metadata Metadata, now time.Time) (*Memory, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	nowSecs := TimeToSeconds(now)
	iso := now.UTC().Format(time.RFC3339Nano)

	return &Memory{
		ContentHash:  ContentHash(content),
		Content:      content,
		Tags:         NormalizeTags(tags),
		MemoryType:   strings.TrimSpace(memoryType),
		Metadata:     metadata,
		CreatedAt:    nowSecs,
		UpdatedAt:    nowSecs,
		CreatedAtISO: iso,
		UpdatedAtISO: iso,
	}, nil
}

// ContentHash computes the canonical identity of a piece of content:
// lowercase hex SHA-256 of its UTF-8 bytes.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NormalizeTags trims, drops empties, and de-duplicates tags. Order is not
// meaningful to the system but the output is sorted so callers get a
// stable, diffable representation.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TimeToSeconds converts a time.Time to fractional seconds since the Unix
// epoch — the comparison form mandated by spec: floating seconds
// everywhere timestamps are compared, never integers.
func TimeToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// SecondsToTime converts fractional epoch seconds back to a time.Time (UTC).
func SecondsToTime(secs float64) time.Time {
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}

// HasTag reports whether the memory carries the given tag exactly
// (case-preserving, not a substring match).
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the memory carries at least one of the given tags.
func (m *Memory) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if m.HasTag(t) {
			return true
		}
	}
	return false
}

// HasAllTags reports whether the memory carries every one of the given tags.
func (m *Memory) HasAllTags(tags []string) bool {
	for _, t := range tags {
		if !m.HasTag(t) {
			return false
		}
	}
	return true
}

// TouchUpdated sets UpdatedAt (and its ISO mirror) to now, leaving
// CreatedAt untouched. Used by update_metadata with preserve_timestamps.
func (m *Memory) TouchUpdated(now time.Time) {
	m.UpdatedAt = TimeToSeconds(now)
	m.UpdatedAtISO = now.UTC().Format(time.RFC3339Nano)
}

// reservedCompressedTag marks a memory as a consolidation-produced summary
// so it is never itself re-compressed by a later consolidation pass.
const ReservedCompressedTag = "consolidated:compressed"

// ReservedFallbackEmbeddingTag marks a memory whose embedding was produced
// by the deterministic fallback provider rather than the configured model,
// so consolidation can avoid building associations out of it (spec §4.C).
const ReservedFallbackEmbeddingTag = "embedding:fallback"
