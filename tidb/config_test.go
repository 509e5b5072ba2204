package tidb

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	vdbbench "github.com/Uyyuu/VectorDBBench"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "", cfg.Password)
	assert.Equal(t, "test", cfg.Database)
	assert.Equal(t, 10, cfg.ConcurrentWorkers)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, vdbbench.Cosine, cfg.Metric)
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{Host: "tidb.internal", Port: 4001}.withDefaults()
	assert.Equal(t, "tidb.internal", cfg.Host)
	assert.Equal(t, 4001, cfg.Port)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "vector_bench_test", cfg.TableName)
	assert.Equal(t, 10, cfg.ConcurrentWorkers)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "tidb.example.com"
	cfg.Port = 4000
	cfg.User = "bench"
	cfg.Password = "secret"
	cfg.Database = "benchdb"

	dsn := cfg.DSN()
	assert.True(t, strings.HasPrefix(dsn, "bench:secret@tcp(tidb.example.com:4000)/benchdb"), dsn)
	assert.Contains(t, dsn, "interpolateParams=true")
}

func TestDistanceFn(t *testing.T) {
	assert.Equal(t, "VEC_L2_DISTANCE", distanceFn(vdbbench.L2))
	assert.Equal(t, "VEC_NEGATIVE_INNER_PRODUCT", distanceFn(vdbbench.IP))
	assert.Equal(t, "VEC_COSINE_DISTANCE", distanceFn(vdbbench.Cosine))
	// Cosine is the fallback for anything unrecognized
	assert.Equal(t, "VEC_COSINE_DISTANCE", distanceFn(vdbbench.MetricType("")))
}

func TestIndexAndSearchParams(t *testing.T) {
	cfg := Config{Metric: vdbbench.L2}.withDefaults()
	assert.Equal(t, "VEC_L2_DISTANCE", cfg.IndexParam().MetricFn)
	assert.Equal(t, "VEC_L2_DISTANCE", cfg.SearchParam().MetricFn)
}
