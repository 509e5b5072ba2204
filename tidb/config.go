// Package tidb implements the VectorDB adapter for TiDB, a MySQL-wire
// compatible distributed database with a native VECTOR column type and HNSW
// vector indexing backed by TiFlash columnar replicas.
package tidb

import (
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	vdbbench "github.com/Uyyuu/VectorDBBench"
)

// Config holds the connection parameters and adapter tunables for one
// benchmark table.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// TableName is the benchmark table, owned by this adapter for the
	// duration of a run.
	TableName string

	// Metric selects the distance function used for the vector index and
	// for search ordering. Defaults to cosine.
	Metric vdbbench.MetricType

	// DropOld drops and recreates the table at construction time.
	DropOld bool

	// ConcurrentWorkers bounds the insert worker pool. Default 10.
	ConcurrentWorkers int

	// PollInterval is the sleep between replication/index-build catalog
	// polls during Optimize. Default 2s.
	PollInterval time.Duration

	// AnalyzeAfterOptimize re-collects table statistics at the end of
	// Optimize.
	AnalyzeAfterOptimize bool
}

// DefaultConfig returns the documented defaults: a local TiDB listening on
// 4000, user root with an empty password, database "test".
func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              4000,
		User:              "root",
		Password:          "",
		Database:          "test",
		TableName:         "vector_bench_test",
		Metric:            vdbbench.Cosine,
		ConcurrentWorkers: 10,
		PollInterval:      2 * time.Second,
	}
}

// withDefaults fills zero-valued tunables with their documented defaults.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.User == "" {
		c.User = def.User
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.TableName == "" {
		c.TableName = def.TableName
	}
	if c.Metric == "" {
		c.Metric = def.Metric
	}
	if c.ConcurrentWorkers <= 0 {
		c.ConcurrentWorkers = def.ConcurrentWorkers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	return c
}

// DSN renders the connection parameters as a go-sql-driver DSN.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	// Multi-row inserts interpolate many placeholders per statement.
	mc.InterpolateParams = true
	return mc.FormatDSN()
}

// IndexParam carries the concrete distance-function name index DDL binds to.
type IndexParam struct {
	MetricFn string
}

// SearchParam carries engine-specific search-time parameters. TiDB has none
// beyond the distance function itself.
type SearchParam struct {
	MetricFn string
}

// IndexParam resolves the configured metric for index creation.
func (c Config) IndexParam() IndexParam {
	return IndexParam{MetricFn: distanceFn(c.Metric)}
}

// SearchParam resolves the configured metric for search ordering.
func (c Config) SearchParam() SearchParam {
	return SearchParam{MetricFn: distanceFn(c.Metric)}
}

// distanceFn maps an abstract metric to the SQL function TiDB expects.
// Cosine is the fallback for anything unrecognized.
func distanceFn(m vdbbench.MetricType) string {
	switch m {
	case vdbbench.L2:
		return "VEC_L2_DISTANCE"
	case vdbbench.IP:
		return "VEC_NEGATIVE_INNER_PRODUCT"
	default:
		return "VEC_COSINE_DISTANCE"
	}
}
