package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightgrid-ai/orchestrator/internal/models"
)

func result(id models.AgentID, status models.ResultStatus) models.AgentResult {
	return models.AgentResult{AgentID: id, Status: status, Timestamp: time.Now(), Output: "out"}
}

func TestRecordWriteOnce(t *testing.T) {
	ctx := NewSharedContext()
	require.NoError(t, ctx.Record(result(models.AgentOperations, models.StatusCompleted)))

	err := ctx.Record(result(models.AgentOperations, models.StatusFailed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a recorded result")

	// The original result must be untouched.
	res, ok := ctx.Get(models.AgentOperations)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, res.Status)
}

func TestSealStopsWrites(t *testing.T) {
	ctx := NewSharedContext()
	ctx.Seal()
	err := ctx.Record(result(models.AgentUpsell, models.StatusCompleted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sealed")
	assert.Equal(t, 0, ctx.Len())
}

func TestUpstreamRestrictedToDeclaredDeps(t *testing.T) {
	ctx := NewSharedContext()
	require.NoError(t, ctx.Record(result(models.AgentOperations, models.StatusCompleted)))
	require.NoError(t, ctx.Record(result(models.AgentUpsell, models.StatusCompleted)))
	require.NoError(t, ctx.Record(result(models.AgentCampaign, models.StatusFailed)))

	up := ctx.Upstream([]models.AgentID{models.AgentUpsell})
	require.Len(t, up, 1)
	assert.Equal(t, models.AgentUpsell, up[0].AgentID)

	// Unrecorded dependencies are simply absent.
	up = ctx.Upstream([]models.AgentID{models.AgentFinancial, models.AgentCampaign})
	require.Len(t, up, 1)
	assert.Equal(t, models.AgentCampaign, up[0].AgentID)
}

func TestSnapshotPreservesInsertionOrder(t *testing.T) {
	ctx := NewSharedContext()
	ids := []models.AgentID{models.AgentFinancial, models.AgentOperations, models.AgentUpsell}
	for _, id := range ids {
		require.NoError(t, ctx.Record(result(id, models.StatusCompleted)))
	}

	snap := ctx.Snapshot()
	require.Len(t, snap, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, snap[i].AgentID)
	}
}

func TestCompleted(t *testing.T) {
	ctx := NewSharedContext()
	require.NoError(t, ctx.Record(result(models.AgentOperations, models.StatusCompleted)))
	require.NoError(t, ctx.Record(result(models.AgentUpsell, models.StatusFailed)))

	assert.True(t, ctx.Completed(models.AgentOperations))
	assert.False(t, ctx.Completed(models.AgentUpsell))
	assert.False(t, ctx.Completed(models.AgentSynthesis))
}

func TestConcurrentWritersDistinctIDs(t *testing.T) {
	// Parallel-branch mode writes from worker goroutines; distinct ids must
	// never interfere.
	ctx := NewSharedContext()
	var wg sync.WaitGroup
	errs := make([]error, len(models.KnownAgentIDs))
	for i, id := range models.KnownAgentIDs {
		wg.Add(1)
		go func(i int, id models.AgentID) {
			defer wg.Done()
			errs[i] = ctx.Record(result(id, models.StatusCompleted))
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, fmt.Sprintf("writer %d", i))
	}
	assert.Equal(t, len(models.KnownAgentIDs), ctx.Len())
}
