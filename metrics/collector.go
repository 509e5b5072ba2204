// Package metrics collects benchmark run metrics and exposes them through a
// Prometheus registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot holds the most recently observed run metrics.
type Snapshot struct {
	// Total vectors inserted so far
	Inserted int
	// Average insert-batch latency in milliseconds
	AvgInsertLatencyMs float64
	// Average search latency in milliseconds
	AvgSearchLatencyMs float64
	// Total searches executed
	Searches int
	// Last scored recall (0-1)
	Recall float64
	// Last observed replica replication progress (0-1)
	ReplicaProgress float64
	// Last observed count of rows not yet covered by the vector index
	IndexBacklog int64
	// Time when metrics were last updated
	Timestamp time.Time
}

// Collector tracks insert/search latency, recall, and index-build progress.
type Collector struct {
	registry *prometheus.Registry

	insertLatency   prometheus.Histogram
	insertedRows    prometheus.Counter
	searchLatency   prometheus.Histogram
	searches        prometheus.Counter
	recall          prometheus.Gauge
	replicaProgress prometheus.Gauge
	indexBacklog    prometheus.Gauge

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewCollector creates a Collector with its own Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		snapshot: Snapshot{Timestamp: time.Now()},
	}

	c.insertLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vdbbench_insert_latency_ms",
		Help:    "Insert batch latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	c.insertedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vdbbench_inserted_rows_total",
		Help: "Total number of vectors inserted",
	})
	c.searchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vdbbench_search_latency_ms",
		Help:    "Search latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	c.searches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vdbbench_searches_total",
		Help: "Total number of searches executed",
	})
	c.recall = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vdbbench_search_recall",
		Help: "Search recall rate (0-1)",
	})
	c.replicaProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vdbbench_replica_progress",
		Help: "Columnar replica replication progress (0-1)",
	})
	c.indexBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vdbbench_index_backlog_rows",
		Help: "Rows not yet covered by the vector index",
	})

	c.registry.MustRegister(
		c.insertLatency,
		c.insertedRows,
		c.searchLatency,
		c.searches,
		c.recall,
		c.replicaProgress,
		c.indexBacklog,
	)
	return c
}

// ObserveInsert records one insert batch of n rows taking d.
func (c *Collector) ObserveInsert(d time.Duration, n int) {
	ms := float64(d.Milliseconds())
	c.insertLatency.Observe(ms)
	c.insertedRows.Add(float64(n))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Inserted += n
	if c.snapshot.AvgInsertLatencyMs == 0 {
		c.snapshot.AvgInsertLatencyMs = ms
	} else {
		c.snapshot.AvgInsertLatencyMs = (c.snapshot.AvgInsertLatencyMs + ms) / 2
	}
	c.snapshot.Timestamp = time.Now()
}

// ObserveSearch records one search taking d.
func (c *Collector) ObserveSearch(d time.Duration) {
	ms := float64(d.Milliseconds())
	c.searchLatency.Observe(ms)
	c.searches.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Searches++
	if c.snapshot.AvgSearchLatencyMs == 0 {
		c.snapshot.AvgSearchLatencyMs = ms
	} else {
		c.snapshot.AvgSearchLatencyMs = (c.snapshot.AvgSearchLatencyMs + ms) / 2
	}
	c.snapshot.Timestamp = time.Now()
}

// SetRecall records the scored recall for the run.
func (c *Collector) SetRecall(recall float64) {
	c.recall.Set(recall)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Recall = recall
	c.snapshot.Timestamp = time.Now()
}

// SetReplicaProgress records the replication progress observed while waiting
// for the columnar replica to catch up.
func (c *Collector) SetReplicaProgress(progress float64) {
	c.replicaProgress.Set(progress)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.ReplicaProgress = progress
	c.snapshot.Timestamp = time.Now()
}

// SetIndexBacklog records the vector index build backlog in rows.
func (c *Collector) SetIndexBacklog(rows int64) {
	c.indexBacklog.Set(float64(rows))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.IndexBacklog = rows
	c.snapshot.Timestamp = time.Now()
}

// GetSnapshot returns the most recent metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// GetRegistry returns the Prometheus registry for HTTP exposition.
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
