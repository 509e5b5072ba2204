package vdbbench

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Uyyuu/VectorDBBench/metrics"
)

// RunnerConfig holds the harness-side knobs for a benchmark run.
type RunnerConfig struct {
	// BatchSize is the number of records handed to InsertEmbeddings per call.
	BatchSize int
	// TopK is the result limit for each search.
	TopK int
	// Metric is used for ground-truth scoring and must match the adapter's
	// configured metric.
	Metric MetricType
	// SkipOptimize skips the post-load optimize stage.
	SkipOptimize bool
}

// DefaultRunnerConfig returns the documented defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		BatchSize: 1000,
		TopK:      100,
		Metric:    Cosine,
	}
}

// Result summarizes one benchmark run.
type Result struct {
	Inserted         int
	LoadDuration     time.Duration
	OptimizeDuration time.Duration
	Queries          int
	AvgLatency       time.Duration
	QPS              float64
	Recall           float64
}

// Runner drives a VectorDB through the load/optimize/search lifecycle and
// scores search results against exact-scan ground truth.
type Runner struct {
	db        VectorDB
	cfg       RunnerConfig
	log       *zap.Logger
	collector *metrics.Collector
}

// NewRunner constructs a Runner. logger and collector may be nil.
func NewRunner(db VectorDB, cfg RunnerConfig, logger *zap.Logger, collector *metrics.Collector) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRunnerConfig().BatchSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRunnerConfig().TopK
	}
	if cfg.Metric == "" {
		cfg.Metric = Cosine
	}
	return &Runner{db: db, cfg: cfg, log: logger, collector: collector}
}

// Load inserts all records in BatchSize chunks and returns the total count.
func (r *Runner) Load(ctx context.Context, records []Record) (int, error) {
	var total int
	for start := 0; start < len(records); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		vectors := make([][]float32, len(batch))
		ids := make([]int32, len(batch))
		for i, rec := range batch {
			vectors[i] = rec.Vector
			ids[i] = rec.ID
		}

		begin := time.Now()
		n, err := r.db.InsertEmbeddings(ctx, vectors, ids)
		if err != nil {
			return total, fmt.Errorf("insert batch at offset %d: %w", start, err)
		}
		if r.collector != nil {
			r.collector.ObserveInsert(time.Since(begin), n)
		}
		total += n
		r.log.Debug("batch inserted", zap.Int("offset", start), zap.Int("count", n))
	}
	return total, nil
}

// Run executes the full lifecycle: load, optimize, then one search per query,
// scoring recall against brute-force ground truth over the loaded records.
func (r *Runner) Run(ctx context.Context, records []Record, queries [][]float32) (*Result, error) {
	res := &Result{}

	r.log.Info("loading records", zap.Int("count", len(records)))
	loadStart := time.Now()
	inserted, err := r.Load(ctx, records)
	if err != nil {
		return nil, err
	}
	res.Inserted = inserted
	res.LoadDuration = time.Since(loadStart)

	if !r.cfg.SkipOptimize {
		r.log.Info("optimizing")
		optStart := time.Now()
		if err := r.db.Optimize(ctx); err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
		res.OptimizeDuration = time.Since(optStart)
	}

	if len(queries) == 0 {
		return res, nil
	}

	release, err := r.db.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire search session: %w", err)
	}
	defer release()

	r.log.Info("searching", zap.Int("queries", len(queries)), zap.Int("k", r.cfg.TopK))
	var totalLatency time.Duration
	var recallSum float64
	for i, q := range queries {
		begin := time.Now()
		got, err := r.db.SearchEmbedding(ctx, q, r.cfg.TopK, nil)
		if err != nil {
			return nil, fmt.Errorf("search query %d: %w", i, err)
		}
		latency := time.Since(begin)
		totalLatency += latency
		if r.collector != nil {
			r.collector.ObserveSearch(latency)
		}

		want := GroundTruth(records, q, r.cfg.TopK, r.cfg.Metric)
		recallSum += Recall(got, want)
	}

	res.Queries = len(queries)
	res.AvgLatency = totalLatency / time.Duration(len(queries))
	res.Recall = recallSum / float64(len(queries))
	if totalLatency > 0 {
		res.QPS = float64(len(queries)) / totalLatency.Seconds()
	}
	if r.collector != nil {
		r.collector.SetRecall(res.Recall)
	}
	r.log.Info("run complete",
		zap.Int("inserted", res.Inserted),
		zap.Duration("avg_latency", res.AvgLatency),
		zap.Float64("recall", res.Recall))
	return res, nil
}
