package telemetry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreRecordsActivityInOrder(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.MarkAgentActive(ctx, "proc-1", "platform-expert"))
	require.NoError(t, store.TrackToolUsage(ctx, "proc-1", "platform-expert", "blob", "read_blob_content", "read deployment.yaml"))
	require.NoError(t, store.RecordPhaseTransition(ctx, "proc-1", "analysis", "completed"))

	record, err := store.Get(ctx, "proc-1")
	require.NoError(t, err)
	require.Len(t, record.Activity, 3)
	assert.Equal(t, ActivityAgentActive, record.Activity[0].Kind)
	assert.Equal(t, ActivityToolUsage, record.Activity[1].Kind)
	assert.Equal(t, ActivityPhaseTransition, record.Activity[2].Kind)
	assert.Equal(t, "analysis", record.Phase)
	assert.Equal(t, "completed", record.Status)
}

func TestMemStoreGetUnknownProcessErrors(t *testing.T) {
	store := NewMemStore()
	_, err := store.Get(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestMemStoreBoundsActivityHistory(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	for i := 0; i < maxActivityEntries+50; i++ {
		require.NoError(t, store.MarkAgentActive(ctx, "proc-1", "agent"))
	}

	record, err := store.Get(ctx, "proc-1")
	require.NoError(t, err)
	assert.Len(t, record.Activity, maxActivityEntries)
}

func TestMemStoreLastUpdatedIsMonotonic(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.TrackToolUsage(ctx, "proc-1", fmt.Sprintf("agent-%d", i), "blob", "read_blob_content", "x")
		}(i)
	}
	wg.Wait()

	record, err := store.Get(ctx, "proc-1")
	require.NoError(t, err)
	for i := 1; i < len(record.Activity); i++ {
		assert.False(t, record.Activity[i].Timestamp.Before(record.Activity[i-1].Timestamp))
	}
	assert.Equal(t, record.Activity[len(record.Activity)-1].Timestamp, record.LastUpdated)
}
