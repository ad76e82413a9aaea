package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	embed := embedding.NewService(nil, embedding.DefaultRetryConfig())
	s, err := New(":memory:", embed)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func mustMemory(t *testing.T, content string, tags []string, memType string) *types.Memory {
	t.Helper()
	m, err := types.New(content, tags, memType, nil)
	require.NoError(t, err)
	return m
}

func TestStore_StoreAndGetRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := mustMemory(t, "decided to use WAL mode for sqlite", []string{"db", "decision"}, "decision")
	require.NoError(t, s.Store(ctx, m))

	recent, err := s.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, m.ContentHash, recent[0].ContentHash)
	assert.ElementsMatch(t, []string{"db", "decision", types.ReservedFallbackEmbeddingTag}, recent[0].Tags)
}

func TestStore_DuplicateIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m1 := mustMemory(t, "same content", nil, "note")
	require.NoError(t, s.Store(ctx, m1))

	m2 := mustMemory(t, "same content", nil, "note")
	err := s.Store(ctx, m2)
	require.Error(t, err)

	var se *storage.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, storage.KindDuplicate, se.Kind)

	recent, _ := s.GetRecent(ctx, 10)
	assert.Len(t, recent, 1)
}

func TestStore_SearchByTagAny(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, mustMemory(t, "memory one", []string{"alpha"}, "note")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "memory two", []string{"beta"}, "note")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "memory three", []string{"gamma"}, "note")))

	results, err := s.SearchByTag(ctx, []string{"alpha", "beta"}, storage.MatchAny)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStore_SearchByTagAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, mustMemory(t, "has both", []string{"alpha", "beta"}, "note")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "has only alpha", []string{"alpha"}, "note")))

	results, err := s.SearchByTag(ctx, []string{"alpha", "beta"}, storage.MatchAll)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "has both")
}

func TestStore_DeleteNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete(context.Background(), "nonexistent")
	require.Error(t, err)
	var se *storage.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, storage.KindNotFound, se.Kind)
}

func TestStore_DeleteByTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, mustMemory(t, "one", []string{"temp"}, "temporary")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "two", []string{"temp"}, "temporary")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "three", []string{"keep"}, "note")))

	n, err := s.DeleteByTag(ctx, "temp")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, _ := s.GetRecent(ctx, 10)
	assert.Len(t, recent, 1)
}

func TestStore_DeleteByTagsReportsProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Store(ctx, mustMemory(t, "item"+string(rune('a'+i)), []string{"bulk"}, "note")))
	}

	var calls int
	n, err := s.DeleteByTags(ctx, []string{"bulk"}, func(done, total int) {
		calls++
		assert.LessOrEqual(t, done, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Greater(t, calls, 0)
}

func TestStore_UpdateMetadataPreservesTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := mustMemory(t, "content", nil, "note")
	require.NoError(t, s.Store(ctx, m))
	originalCreated := m.CreatedAt
	originalUpdated := m.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	err := s.UpdateMetadata(ctx, m.ContentHash, types.Metadata{"k": types.NewTextScalar("v")}, true)
	require.NoError(t, err)

	recent, _ := s.GetRecent(ctx, 10)
	require.Len(t, recent, 1)
	assert.Equal(t, originalCreated, recent[0].CreatedAt)
	assert.Equal(t, originalUpdated, recent[0].UpdatedAt)
	assert.Equal(t, "v", recent[0].Metadata["k"].Str)
}

func TestStore_UpdateMetadataAdvancesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := mustMemory(t, "content", nil, "note")
	require.NoError(t, s.Store(ctx, m))
	originalUpdated := m.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	err := s.UpdateMetadata(ctx, m.ContentHash, types.Metadata{"k": types.NewTextScalar("v")}, false)
	require.NoError(t, err)

	recent, _ := s.GetRecent(ctx, 10)
	assert.Greater(t, recent[0].UpdatedAt, originalUpdated)
}

func TestStore_UpdateMetadataNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateMetadata(context.Background(), "nonexistent", types.Metadata{}, true)
	require.Error(t, err)
	var se *storage.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, storage.KindNotFound, se.Kind)
}

func TestStore_GetAllTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, mustMemory(t, "one", []string{"alpha", "beta"}, "note")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "two", []string{"alpha"}, "note")))

	tags, err := s.GetAllTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "alpha", tags[0].Tag)
	assert.Equal(t, 2, tags[0].Count)
}

func TestStore_GetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, mustMemory(t, "one", []string{"a"}, "decision")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "two", []string{"b"}, "note")))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMemories)
	assert.Equal(t, 1, stats.ByMemoryType["decision"])
	assert.Equal(t, 1, stats.ByMemoryType["note"])
}

func TestStore_Health(t *testing.T) {
	s := newTestStore(t)
	h := s.Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, "sqlite", h.Backend)
}

func TestStore_Retrieve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, mustMemory(t, "we should use postgres for the cloud backend", nil, "decision")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "lunch was good today", nil, "note")))

	results, err := s.Retrieve(ctx, "postgres cloud backend decision", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Memory.Content, "postgres")
}

func TestStore_RecallByWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := mustMemory(t, "ancient note", nil, "note")
	old.CreatedAt = 1000
	recent := mustMemory(t, "fresh note", nil, "note")
	recent.CreatedAt = 2000

	require.NoError(t, s.Store(ctx, old))
	require.NoError(t, s.Store(ctx, recent))

	results, err := s.Recall(ctx, storage.RecallQuery{Window: &storage.TimeRange{Start: 1500, End: 2500}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fresh note", results[0].Memory.Content)
}

func TestStore_RecallEmptyIsGetRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, mustMemory(t, "a", nil, "note")))
	require.NoError(t, s.Store(ctx, mustMemory(t, "b", nil, "note")))

	results, err := s.Recall(ctx, storage.RecallQuery{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStore_CleanupDuplicatesNoOpOnCleanData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, mustMemory(t, "clean", nil, "note")))

	removed, err := s.CleanupDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
