package dsrouter

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRouter(t *testing.T, fallback bool) (*Router, sqlmock.Sqlmock, sqlmock.Sqlmock) {
	t.Helper()

	primaryDB, primaryMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = primaryDB.Close() })

	replicaDB, replicaMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = replicaDB.Close() })

	db := dbresolver.New(
		dbresolver.WithPrimaryDBs(primaryDB),
		dbresolver.WithReplicaDBs(replicaDB),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB))

	r := NewWithDB(db, primaryDB, fallback)

	return r, primaryMock, replicaMock
}

func TestAcquireAcceptsUnroutedContext(t *testing.T) {
	r, _, _ := newMockRouter(t, false)

	db, err := r.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r.db, db)
}

func TestAcquireReturnsSharedHandleForRoutedContext(t *testing.T) {
	r, _, _ := newMockRouter(t, false)

	db, err := r.Acquire(WithRouting(context.Background(), Read))
	require.NoError(t, err)
	assert.Equal(t, r.db, db)
}

func TestWithinTxRequiresWriteRoutedContext(t *testing.T) {
	r, _, _ := newMockRouter(t, false)

	err := r.WithinTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error { return nil })
	require.Error(t, err)
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	r, primaryMock, _ := newMockRouter(t, false)

	primaryMock.ExpectBegin()
	primaryMock.ExpectExec("INSERT INTO \"user\"").WillReturnResult(sqlmock.NewResult(1, 1))
	primaryMock.ExpectCommit()

	ctx := WithRouting(context.Background(), Write)

	err := r.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `INSERT INTO "user" (id) VALUES ($1)`, "1")
		return execErr
	})
	require.NoError(t, err)
	require.NoError(t, primaryMock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	r, primaryMock, _ := newMockRouter(t, false)

	primaryMock.ExpectBegin()
	primaryMock.ExpectRollback()

	ctx := WithRouting(context.Background(), Write)

	err := r.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return assert.AnError
	})
	require.Error(t, err)
	require.NoError(t, primaryMock.ExpectationsWereMet())
}

func TestQueryContextFallsBackToPrimaryOnReplicaError(t *testing.T) {
	r, primaryMock, replicaMock := newMockRouter(t, true)

	replicaMock.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)
	primaryMock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	rows, err := r.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	defer rows.Close()

	require.NoError(t, replicaMock.ExpectationsWereMet())
	require.NoError(t, primaryMock.ExpectationsWereMet())
}

func TestQueryContextNoFallbackWhenDisabled(t *testing.T) {
	r, _, replicaMock := newMockRouter(t, false)

	replicaMock.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

	_, err := r.QueryContext(context.Background(), "SELECT 1")
	require.Error(t, err)
	require.NoError(t, replicaMock.ExpectationsWereMet())
}
