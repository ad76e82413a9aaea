package consolidation_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/consolidation"
	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/storage/sqlite"
	"github.com/scrypster/memento/pkg/types"
)

func newTestStore(t *testing.T) (*sqlite.Store, *embedding.Service) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memento.db")
	embedSvc := embedding.NewService(nil, embedding.DefaultRetryConfig())
	store, err := sqlite.New(dbPath, embedSvc)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store, embedSvc
}

func storeMemory(t *testing.T, store *sqlite.Store, content, memoryType string, tags []string) {
	t.Helper()
	mem, err := types.New(content, tags, memoryType, nil)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), mem))
}

func TestRunAll_RunsEveryStageInOrder(t *testing.T) {
	store, embedSvc := newTestStore(t)
	storeMemory(t, store, "the quarterly roadmap review happens every January", "reference", []string{"planning"})
	storeMemory(t, store, "remember to buy milk on the way home tonight", "temporary", []string{"errand"})

	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())
	result := pipeline.RunAll(context.Background())

	require.Len(t, result.Stages, 5)
	names := make([]string, len(result.Stages))
	for i, s := range result.Stages {
		names[i] = s.Stage
	}
	assert.Equal(t, []string{"decay", "associative_discovery", "clustering", "compression", "forgetting"}, names)
	assert.NotZero(t, result.Started)
}

func TestRunAll_DecayStageWritesRelevanceMetadata(t *testing.T) {
	store, embedSvc := newTestStore(t)
	storeMemory(t, store, "critical architectural decision about the storage layer", "critical", nil)

	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())
	result := pipeline.RunAll(context.Background())

	decay := result.Stages[0]
	assert.Equal(t, "decay", decay.Stage)
	assert.NoError(t, decay.Err)
	assert.Equal(t, 1, decay.Processed)

	recent, err := store.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	_, hasRelevance := recent[0].Metadata["relevance"]
	assert.True(t, hasRelevance)
}

func TestRunAll_SerializesConcurrentRuns(t *testing.T) {
	store, embedSvc := newTestStore(t)
	storeMemory(t, store, "a memory to keep the pipeline busy for both runs", "standard", nil)

	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())

	done := make(chan struct{})
	go func() {
		pipeline.RunAll(context.Background())
		close(done)
	}()
	result := pipeline.RunAll(context.Background())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent RunAll did not complete in time")
	}
	assert.Len(t, result.Stages, 5)
}

func TestRunAll_EmptyStoreProducesNoErrors(t *testing.T) {
	store, embedSvc := newTestStore(t)
	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())

	result := pipeline.RunAll(context.Background())
	for _, stage := range result.Stages {
		assert.NoError(t, stage.Err, "stage %s should not fail on an empty store", stage.Stage)
		assert.Zero(t, stage.Processed)
	}
}

func TestRunAll_RespectsContextCancellation(t *testing.T) {
	store, embedSvc := newTestStore(t)
	storeMemory(t, store, "one memory so the sample isn't empty", "standard", nil)

	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := pipeline.RunAll(ctx)

	assert.Less(t, len(result.Stages), 5, "a pre-cancelled context should stop the stage loop early")
}
