// Package vdbbench defines the benchmarking harness that drives a vector
// database through a uniform lifecycle: create schema, bulk-load vectors,
// optimize, and run nearest-neighbor queries scored for recall and latency.
package vdbbench

import (
	"context"
	"fmt"
	"strings"
)

// MetricType identifies the distance metric used for indexing and search.
type MetricType string

const (
	// L2 is squared Euclidean distance.
	L2 MetricType = "L2"
	// IP is inner product (maximum similarity, minimum negative product).
	IP MetricType = "IP"
	// Cosine is cosine distance. This is the default metric.
	Cosine MetricType = "COSINE"
)

// ParseMetricType maps a user-supplied string to a MetricType.
// The empty string resolves to Cosine.
func ParseMetricType(s string) (MetricType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "COSINE":
		return Cosine, nil
	case "L2", "EUCLIDEAN":
		return L2, nil
	case "IP", "DOT":
		return IP, nil
	default:
		return "", fmt.Errorf("unknown metric type %q", s)
	}
}

// Record is a single benchmark vector with its logical identifier.
type Record struct {
	ID     int32     `json:"id"`
	Vector []float32 `json:"vector"`
}

// VectorDB is the capability set a database adapter must provide to the
// benchmark runner. Implementations are not required to be safe for
// concurrent use; the runner serializes calls except where an adapter
// parallelizes internally (e.g. a concurrent insert path).
type VectorDB interface {
	// Init acquires a scoped session for the search phase. The returned
	// release function must be called on every exit path; search calls made
	// outside an Init scope are programming errors and fail immediately.
	Init(ctx context.Context) (release func(), err error)

	// InsertEmbeddings persists the given vectors under the given ids and
	// returns the number of ids submitted. On error no partial batch from a
	// failing statement remains committed.
	InsertEmbeddings(ctx context.Context, vectors [][]float32, ids []int32) (int, error)

	// Optimize performs any post-load index build or replication catch-up.
	// It is called once, after all loading is complete.
	Optimize(ctx context.Context) error

	// SearchEmbedding returns up to k ids ordered by ascending distance to
	// the query. Filter predicates are not supported by all adapters and may
	// be ignored.
	SearchEmbedding(ctx context.Context, query []float32, k int, filters map[string]any) ([]int32, error)

	// Close releases the underlying connections.
	Close() error
}
