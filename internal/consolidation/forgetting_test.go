package consolidation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/consolidation"
	"github.com/scrypster/memento/pkg/types"
)

func TestRunAll_ForgettingArchivesLowRelevanceIdleMemory(t *testing.T) {
	store, embedSvc := newTestStore(t)
	storeMemory(t, store, "a stale note nobody has touched in ages", "temporary", nil)

	recent, err := store.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	hash := recent[0].ContentHash

	require.NoError(t, store.UpdateMetadata(context.Background(), hash, types.Metadata{
		"relevance": types.NewFloatScalar(0.01),
	}, true))

	cfg := consolidation.DefaultConfig()
	cfg.RelevanceThreshold = 0.5
	cfg.AccessThresholdDays = 0
	cfg.ForgetGraceDays = 9999

	pipeline := consolidation.New(store, embedSvc, cfg)
	result := pipeline.RunAll(context.Background())

	forgetting := result.Stages[len(result.Stages)-1]
	require.Equal(t, "forgetting", forgetting.Stage)
	assert.NoError(t, forgetting.Err)
	assert.Equal(t, 1, forgetting.Produced, "the idle, low-relevance memory should be archived")

	recentAfter, err := store.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recentAfter, "an archived memory must be hidden from GetRecent")
}

func TestRunAll_ForgettingHardDeletesExpiredArchive(t *testing.T) {
	store, embedSvc := newTestStore(t)
	storeMemory(t, store, "a memory archived well past its grace period", "temporary", nil)

	recent, err := store.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	hash := recent[0].ContentHash

	longAgo := float64(time.Now().Add(-365 * 24 * time.Hour).Unix())
	require.NoError(t, store.SetArchived(context.Background(), hash, &longAgo))

	cfg := consolidation.DefaultConfig()
	cfg.ForgetGraceDays = 30

	pipeline := consolidation.New(store, embedSvc, cfg)
	result := pipeline.RunAll(context.Background())

	forgetting := result.Stages[len(result.Stages)-1]
	require.Equal(t, "forgetting", forgetting.Stage)
	assert.NoError(t, forgetting.Err)
	assert.Equal(t, 1, forgetting.Produced, "the long-expired archived memory should be hard-deleted")

	stillArchived, err := store.GetArchivedBefore(context.Background(), float64(time.Now().Unix()))
	require.NoError(t, err)
	assert.Empty(t, stillArchived)
}
