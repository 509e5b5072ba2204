package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()

	c.ObserveInsert(20*time.Millisecond, 100)
	c.ObserveInsert(40*time.Millisecond, 50)
	c.ObserveSearch(10 * time.Millisecond)
	c.SetRecall(0.95)
	c.SetReplicaProgress(0.5)
	c.SetIndexBacklog(1234)

	snap := c.GetSnapshot()
	assert.Equal(t, 150, snap.Inserted)
	assert.Equal(t, 1, snap.Searches)
	assert.Equal(t, 0.95, snap.Recall)
	assert.Equal(t, 0.5, snap.ReplicaProgress)
	assert.Equal(t, int64(1234), snap.IndexBacklog)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestCollectorRegistersMetrics(t *testing.T) {
	c := NewCollector()
	c.ObserveInsert(time.Millisecond, 1)
	c.ObserveSearch(time.Millisecond)
	c.SetRecall(1)

	families, err := c.GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["vdbbench_insert_latency_ms"])
	assert.True(t, names["vdbbench_search_latency_ms"])
	assert.True(t, names["vdbbench_search_recall"])
	assert.True(t, names["vdbbench_inserted_rows_total"])
}
