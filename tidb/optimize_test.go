package tidb

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectIndexRebuild(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("DROP INDEX IF EXISTS `tidb_vector_index` ON `vector_bench_test`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `vector_bench_test` SET TIFLASH REPLICA 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE VECTOR INDEX `tidb_vector_index` ON `vector_bench_test` ((VEC_COSINE_DISTANCE(embedding))) USING HNSW")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectProgressPoll(mock sqlmock.Sqlmock, progress float64) {
	mock.ExpectQuery("SELECT PROGRESS FROM information_schema.tiflash_replica").
		WithArgs("test", "vector_bench_test").
		WillReturnRows(sqlmock.NewRows([]string{"PROGRESS"}).AddRow(progress))
}

func expectPendingPoll(mock sqlmock.Sqlmock, pending int64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(ROWS_STABLE_NOT_INDEXED) FROM information_schema.tiflash_indexes")).
		WithArgs("test", "vector_bench_test").
		WillReturnRows(sqlmock.NewRows([]string{"SUM(ROWS_STABLE_NOT_INDEXED)"}).AddRow(pending))
}

func TestOptimizeHappyPath(t *testing.T) {
	client, mock := newMockClient(t, 1)

	expectIndexRebuild(mock)

	// Replication catch-up converges on the third poll.
	expectProgressPoll(mock, 0)
	expectProgressPoll(mock, 0)
	expectProgressPoll(mock, 1)

	mock.ExpectExec(regexp.QuoteMeta(`SET @@TIDB_ISOLATION_READ_ENGINES="tidb,tiflash"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `vector_bench_test`")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(25))

	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `vector_bench_test` COMPACT")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Index build backlog drains after one non-terminal poll.
	expectPendingPoll(mock, 5)
	expectPendingPoll(mock, 0)

	require.NoError(t, client.Optimize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizeRunsAnalyzeWhenConfigured(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.AnalyzeAfterOptimize = true
	client, err := New(context.Background(), 4, cfg, WithDB(db))
	require.NoError(t, err)

	expectIndexRebuild(mock)
	expectProgressPoll(mock, 1)
	mock.ExpectExec("SET @@TIDB_ISOLATION_READ_ENGINES").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `vector_bench_test` COMPACT")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectPendingPoll(mock, 0)
	mock.ExpectExec(regexp.QuoteMeta("ANALYZE TABLE `vector_bench_test`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, client.Optimize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizeTreatsNullBacklogAsDrained(t *testing.T) {
	client, mock := newMockClient(t, 1)

	expectIndexRebuild(mock)
	expectProgressPoll(mock, 1)
	mock.ExpectExec("SET @@TIDB_ISOLATION_READ_ENGINES").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `vector_bench_test` COMPACT")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(ROWS_STABLE_NOT_INDEXED)")).
		WithArgs("test", "vector_bench_test").
		WillReturnRows(sqlmock.NewRows([]string{"SUM(ROWS_STABLE_NOT_INDEXED)"}).AddRow(nil))

	require.NoError(t, client.Optimize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizeAbortsOnCatalogError(t *testing.T) {
	client, mock := newMockClient(t, 1)

	expectIndexRebuild(mock)
	mock.ExpectQuery("SELECT PROGRESS FROM information_schema.tiflash_replica").
		WithArgs("test", "vector_bench_test").
		WillReturnError(errors.New("catalog unavailable"))

	err := client.Optimize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog unavailable")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizeAbortsOnDDLError(t *testing.T) {
	client, mock := newMockClient(t, 1)

	mock.ExpectExec("DROP INDEX IF EXISTS").
		WillReturnError(errors.New("ddl owner lost"))

	err := client.Optimize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ddl owner lost")
}
