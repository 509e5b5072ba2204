package tidb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Uyyuu/VectorDBBench/metrics"
)

const (
	vectorField = "embedding"
	indexName   = "tidb_vector_index"
)

// ErrNoSession is returned when a search is issued outside an Init scope.
// This is a programming error in the caller, not a runtime condition.
var ErrNoSession = errors.New("tidb: search session not initialized; call Init first")

// Client drives one benchmark table on a TiDB cluster. It implements
// vdbbench.VectorDB. The search session acquired by Init is owned by the
// returned release func and is never shared across goroutines.
type Client struct {
	cfg       Config
	dim       int
	searchFn  string
	db        *sql.DB
	log       *zap.Logger
	collector *metrics.Collector

	session *sql.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// WithDB injects an already-open database handle instead of dialing the
// configured DSN. The Client takes ownership and closes it on Close.
func WithDB(db *sql.DB) Option {
	return func(c *Client) { c.db = db }
}

// WithCollector attaches a metrics collector for replication and
// index-build progress observations.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Client) { c.collector = collector }
}

// New opens a connection pool against the configured TiDB and, when
// cfg.DropOld is set, drops any previous table state and recreates the
// schema sized to dim.
func New(ctx context.Context, dim int, cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		dim:      dim,
		searchFn: cfg.SearchParam().MetricFn,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.db == nil {
		db, err := sql.Open("mysql", cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("open tidb connection: %w", err)
		}
		// One pooled connection per insert worker plus headroom for the
		// search session and catalog polls.
		db.SetMaxOpenConns(cfg.ConcurrentWorkers + 2)
		db.SetMaxIdleConns(cfg.ConcurrentWorkers)
		c.db = db
	}

	if cfg.DropOld {
		if err := c.DropTable(ctx); err != nil {
			return nil, err
		}
		if err := c.CreateTable(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Init acquires the scoped session used by SearchEmbedding. The release func
// returns the connection to the pool and must run on every exit path.
func (c *Client) Init(ctx context.Context) (func(), error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	c.session = conn
	release := func() {
		c.session = nil
		if err := conn.Close(); err != nil {
			c.log.Warn("failed to release session", zap.Error(err))
		}
	}
	return release, nil
}

// Close releases the connection pool. Any active search session must be
// released first.
func (c *Client) Close() error {
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			c.log.Warn("failed to close lingering session", zap.Error(err))
		}
		c.session = nil
	}
	return c.db.Close()
}

// DropTable drops the benchmark table if it exists. Safe to call repeatedly.
func (c *Client) DropTable(ctx context.Context) error {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS `%s`", c.cfg.TableName)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		c.log.Warn("failed to drop table",
			zap.String("table", c.cfg.TableName), zap.Error(err))
		return fmt.Errorf("drop table %s: %w", c.cfg.TableName, err)
	}
	return nil
}

// CreateTable creates the benchmark table with a deterministic surrogate
// primary key, the logical id, a VECTOR column sized to the configured
// dimension, and an inline vector index bound to the configured metric.
func (c *Client) CreateTable(ctx context.Context) error {
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS `%s` ("+
			"uuid BINARY(16) PRIMARY KEY, "+
			"id BIGINT NOT NULL, "+
			"%s VECTOR(%d) NOT NULL, "+
			"VECTOR INDEX `%s` ((%s(%s))))",
		c.cfg.TableName,
		vectorField, c.dim,
		indexName, c.cfg.IndexParam().MetricFn, vectorField,
	)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		c.log.Warn("failed to create table",
			zap.String("table", c.cfg.TableName), zap.Error(err))
		return fmt.Errorf("create table %s: %w", c.cfg.TableName, err)
	}
	return nil
}

// CreateIndex builds the HNSW vector index bound to the configured distance
// function. The TiFlash replica must already be enabled.
func (c *Client) CreateIndex(ctx context.Context) error {
	stmt := fmt.Sprintf(
		"CREATE VECTOR INDEX `%s` ON `%s` ((%s(%s))) USING HNSW",
		indexName, c.cfg.TableName, c.cfg.IndexParam().MetricFn, vectorField,
	)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create vector index on %s: %w", c.cfg.TableName, err)
	}
	c.log.Info("vector index created",
		zap.String("index", indexName), zap.String("field", vectorField))
	return nil
}

// DropIndex drops the vector index if it exists. Safe to call repeatedly.
func (c *Client) DropIndex(ctx context.Context) error {
	stmt := fmt.Sprintf("DROP INDEX IF EXISTS `%s` ON `%s`", indexName, c.cfg.TableName)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop vector index on %s: %w", c.cfg.TableName, err)
	}
	c.log.Info("vector index dropped",
		zap.String("index", indexName), zap.String("table", c.cfg.TableName))
	return nil
}

// SearchEmbedding returns up to k ids ordered by ascending distance to query
// under the configured metric, using the database's native distance ordering.
// Filter predicates are not supported and are ignored. It requires the scoped
// session acquired by Init.
func (c *Client) SearchEmbedding(ctx context.Context, query []float32, k int, filters map[string]any) ([]int32, error) {
	if c.session == nil {
		return nil, ErrNoSession
	}
	if len(filters) > 0 {
		c.log.Debug("filters are not supported and will be ignored",
			zap.Int("filters", len(filters)))
	}

	literal, err := serializeVector(query)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(
		"SELECT id FROM `%s` ORDER BY %s(%s, ?) LIMIT %d",
		c.cfg.TableName, c.searchFn, vectorField, k,
	)
	rows, err := c.session.QueryContext(ctx, stmt, literal)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.cfg.TableName, err)
	}
	defer rows.Close()

	ids := make([]int32, 0, k)
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return ids, nil
}
