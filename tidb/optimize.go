package tidb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Optimize rebuilds the vector index and waits for the TiFlash columnar
// replica to fully replicate, compact, and index the loaded data. Stages run
// strictly in order and any failure aborts the whole call; a restarted
// Optimize begins again from the first stage. The replication and index-build
// waits poll vendor catalog tables with no timeout or retry cap, since they
// wait on externally-progressing conditions rather than recover from errors.
func (c *Client) Optimize(ctx context.Context) error {
	c.log.Info("starting tiflash replica optimization")

	c.log.Info("dropping existing vector index")
	if err := c.DropIndex(ctx); err != nil {
		return err
	}
	if err := c.ensureTiFlashReplica(ctx); err != nil {
		return err
	}
	if err := c.CreateIndex(ctx); err != nil {
		return err
	}

	c.log.Info("waiting for tiflash replica to catch up")
	if err := c.waitReplicaProgress(ctx); err != nil {
		return err
	}
	if err := c.waitTiFlashCatchUp(ctx); err != nil {
		return err
	}

	c.log.Info("compacting tiflash replica")
	if err := c.compactTiFlash(ctx); err != nil {
		return err
	}

	c.log.Info("waiting for index build to finish")
	if err := c.waitIndexBuild(ctx); err != nil {
		return err
	}

	if c.cfg.AnalyzeAfterOptimize {
		c.log.Info("re-collecting table statistics")
		if err := c.analyzeTable(ctx); err != nil {
			return err
		}
	}

	c.log.Info("index build finished successfully")
	return nil
}

// ensureTiFlashReplica enables one columnar replica of the table. The ALTER
// is a no-op when the replica already exists.
func (c *Client) ensureTiFlashReplica(ctx context.Context) error {
	stmt := fmt.Sprintf("ALTER TABLE `%s` SET TIFLASH REPLICA 1", c.cfg.TableName)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("set tiflash replica on %s: %w", c.cfg.TableName, err)
	}
	return nil
}

// waitReplicaProgress polls the replica catalog until replication progress
// reaches 1, sleeping PollInterval between polls and logging each miss.
func (c *Client) waitReplicaProgress(ctx context.Context) error {
	for {
		progress, err := c.replicaProgress(ctx)
		if err != nil {
			return err
		}
		if c.collector != nil {
			c.collector.SetReplicaProgress(progress)
		}
		if progress == 1 {
			return nil
		}
		c.log.Info("data replication not ready", zap.Float64("progress", progress))
		if err := sleepCtx(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// replicaProgress reads the numeric replication progress for the benchmark
// table from information_schema.
func (c *Client) replicaProgress(ctx context.Context) (float64, error) {
	var progress float64
	err := c.db.QueryRowContext(ctx,
		"SELECT PROGRESS FROM information_schema.tiflash_replica WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?",
		c.cfg.Database, c.cfg.TableName,
	).Scan(&progress)
	if err != nil {
		c.log.Warn("failed to check tiflash replica progress", zap.Error(err))
		return 0, fmt.Errorf("check tiflash replica progress: %w", err)
	}
	return progress, nil
}

// waitTiFlashCatchUp forces a replica-aware full-table count so the query
// engine blocks until the columnar replica is current.
func (c *Client) waitTiFlashCatchUp(ctx context.Context) error {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire catch-up session: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SET @@TIDB_ISOLATION_READ_ENGINES="tidb,tiflash"`); err != nil {
		c.log.Warn("failed to set isolation read engines", zap.Error(err))
		return fmt.Errorf("set isolation read engines: %w", err)
	}
	var count int64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM `%s`", c.cfg.TableName)
	if err := conn.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		c.log.Warn("failed to wait for tiflash catch up", zap.Error(err))
		return fmt.Errorf("tiflash catch-up read: %w", err)
	}
	c.log.Debug("tiflash caught up", zap.Int64("rows", count))
	return nil
}

// compactTiFlash triggers a compaction of the columnar replica.
func (c *Client) compactTiFlash(ctx context.Context) error {
	stmt := fmt.Sprintf("ALTER TABLE `%s` COMPACT", c.cfg.TableName)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		c.log.Warn("failed to compact table", zap.Error(err))
		return fmt.Errorf("compact %s: %w", c.cfg.TableName, err)
	}
	return nil
}

// waitIndexBuild polls the index catalog until no rows remain outside the
// vector index, sleeping PollInterval between polls. Only every 15th miss is
// logged to avoid flooding during long builds.
func (c *Client) waitIndexBuild(ctx context.Context) error {
	var seq int
	for {
		pending, err := c.indexPendingRows(ctx)
		if err != nil {
			return err
		}
		if c.collector != nil {
			c.collector.SetIndexBacklog(pending)
		}
		if pending <= 0 {
			return nil
		}
		if seq%15 == 0 {
			c.log.Info("index not fully built", zap.Int64("pending_rows", pending))
		}
		seq++
		if err := sleepCtx(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// indexPendingRows reads the count of stable rows not yet covered by the
// vector index. The SUM is NULL before the replica has reported, which counts
// as no backlog.
func (c *Client) indexPendingRows(ctx context.Context) (int64, error) {
	var pending sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		"SELECT SUM(ROWS_STABLE_NOT_INDEXED) FROM information_schema.tiflash_indexes WHERE TIDB_DATABASE = ? AND TIDB_TABLE = ?",
		c.cfg.Database, c.cfg.TableName,
	).Scan(&pending)
	if err != nil {
		c.log.Warn("failed to read tiflash index pending rows", zap.Error(err))
		return 0, fmt.Errorf("read tiflash index pending rows: %w", err)
	}
	if !pending.Valid {
		return 0, nil
	}
	return pending.Int64, nil
}

// analyzeTable re-collects table statistics.
func (c *Client) analyzeTable(ctx context.Context) error {
	stmt := fmt.Sprintf("ANALYZE TABLE `%s`", c.cfg.TableName)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("analyze %s: %w", c.cfg.TableName, err)
	}
	return nil
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
