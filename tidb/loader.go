package tidb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// serializeVector renders a vector as the textual array literal TiDB's
// VECTOR type accepts, e.g. "[0.1,0.2,0.3]".
func serializeVector(vec []float32) (string, error) {
	s, err := sonic.MarshalString(vec)
	if err != nil {
		return "", fmt.Errorf("serialize vector: %w", err)
	}
	return s, nil
}

// surrogateKey derives the 16-byte primary key for a logical id. It is a
// name-based (SHA-1) UUID of the decimal id, so the same id always maps to
// the same key across runs and workers.
func surrogateKey(id int32) []byte {
	u := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(strconv.FormatInt(int64(id), 10)))
	return u[:]
}

// splitBatches partitions n items into contiguous sub-batches of size
// ceil(n/workers), minimum 1, returned as [start, end) offset pairs covering
// [0, n) exactly once.
func splitBatches(n, workers int) [][2]int {
	if n == 0 {
		return nil
	}
	size := (n + workers - 1) / workers
	if size < 1 {
		size = 1
	}
	var bounds [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}

// BulkInsertEmbeddings persists one batch in a single multi-row INSERT inside
// one transaction. On any failure the transaction is rolled back, so a batch
// is never half-committed.
func (c *Client) BulkInsertEmbeddings(ctx context.Context, vectors [][]float32, ids []int32) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("vectors/ids length mismatch: %d != %d", len(vectors), len(ids))
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids)*3)
	for i, id := range ids {
		literal, err := serializeVector(vectors[i])
		if err != nil {
			return err
		}
		placeholders = append(placeholders, "(?, ?, ?)")
		args = append(args, surrogateKey(id), id, literal)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO `%s` (uuid, id, %s) VALUES %s",
		c.cfg.TableName, vectorField, strings.Join(placeholders, ", "),
	)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		c.log.Warn("failed to insert embeddings", zap.Error(err))
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return fmt.Errorf("insert %d embeddings: %w", len(ids), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert transaction: %w", err)
	}
	return nil
}

// InsertEmbeddings persists the batch by fanning contiguous sub-batches out
// across the configured worker pool. Each worker runs BulkInsertEmbeddings on
// its own pooled connection. The first worker error cancels not-yet-started
// workers and becomes the call's error; in-flight workers run to completion
// or natural failure. Returns the number of ids submitted.
func (c *Client) InsertEmbeddings(ctx context.Context, vectors [][]float32, ids []int32) (int, error) {
	if len(vectors) != len(ids) {
		return 0, fmt.Errorf("vectors/ids length mismatch: %d != %d", len(vectors), len(ids))
	}
	if len(ids) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ConcurrentWorkers)
	for _, b := range splitBatches(len(ids), c.cfg.ConcurrentWorkers) {
		start, end := b[0], b[1]
		g.Go(func() error {
			// Skip sub-batches not yet started once a worker has failed.
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := c.BulkInsertEmbeddings(gctx, vectors[start:end], ids[start:end]); err != nil {
				c.log.Warn("insert worker failed",
					zap.Int("offset", start), zap.Int("count", end-start), zap.Error(err))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ids), nil
}
