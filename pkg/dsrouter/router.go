package dsrouter

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bxcodec/dbresolver/v2"

	"github.com/omniledger/usqf/pkg/dsrconfig"
	"github.com/omniledger/usqf/pkg/mlog"
	"github.com/omniledger/usqf/pkg/usqferr"
)

// Router owns the primary/replica pool pair and answers the question "which
// pool does ctx's routing intent resolve to", per spec's DSR design. It
// wraps a single dbresolver.DB exactly as the teacher's PostgresConnection
// does (common/mpostgres/postgres.go): dbresolver itself sends
// Exec/Begin-shaped calls to the primary and Query-shaped calls to the
// replica load balancer, so Acquire's job is validating and logging the
// routing decision, not re-implementing pool selection.
type Router struct {
	db       dbresolver.DB
	primary  *sql.DB
	fallback bool
	logger   mlog.Logger
}

// Option configures a Router at construction time, mirroring the teacher's
// SQLQueryBuilderOption functional-option shape (common/mpostgres/builder.go).
type Option func(*Router)

// WithLogger injects the logger used for routing warnings/errors.
func WithLogger(l mlog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New dials both pools and wraps them in a dbresolver.DB.
func New(cfg *dsrconfig.PoolConfig, opts ...Option) (*Router, error) {
	primary, err := sql.Open("pgx", cfg.PrimaryDSN)
	if err != nil {
		return nil, usqferr.NewInfrastructureUnavailable("failed to open primary pool", err)
	}

	replica, err := sql.Open("pgx", cfg.ReplicaDSN)
	if err != nil {
		return nil, usqferr.NewInfrastructureUnavailable("failed to open replica pool", err)
	}

	primary.SetMaxOpenConns(cfg.MaxOpenConnsPrimary)
	primary.SetMaxIdleConns(cfg.MaxIdleConnsPrimary)
	replica.SetMaxOpenConns(cfg.MaxOpenConnsReplica)
	replica.SetMaxIdleConns(cfg.MaxIdleConnsReplica)

	db := dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB))

	r := &Router{db: db, primary: primary, fallback: cfg.FallbackToPrimaryOnReplicaError, logger: &mlog.NoneLogger{}}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// NewWithDB builds a Router around an already-constructed dbresolver.DB and
// its primary pool, for callers that assemble pools through some other
// mechanism than New (tests, a shared pool across multiple routers).
func NewWithDB(db dbresolver.DB, primary *sql.DB, fallback bool, opts ...Option) *Router {
	r := &Router{db: db, primary: primary, fallback: fallback, logger: &mlog.NoneLogger{}}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Acquire validates ctx's routing state and returns the shared dbresolver.DB
// handle. The caller is expected to already know, from its own code path,
// whether it is about to issue a Query (read-shaped) or an Exec/Begin
// (write-shaped) call — Acquire's contribution is catching a mid-transaction
// re-route. A context that never declared a routing intent is accepted and
// resolves to the WRITE pool.
func (r *Router) Acquire(ctx context.Context) (dbresolver.DB, error) {
	if _, err := resolvePool(ctx); err != nil {
		return nil, err
	}

	return r.db, nil
}

// WithinTx runs fn inside a primary-bound transaction. ctx must already be
// routed WRITE; the transaction's routing state is locked to the primary
// pool for its duration, so any nested Acquire call that disagrees (e.g. a
// stray WithRouting(ctx, Read) inside fn's call graph) is rejected by
// resolvePool as a mid-transaction re-route.
func (r *Router) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	mode, ok := ModeFrom(ctx)
	if !ok {
		return usqferr.NewInvariantViolation("dsrouter: WithinTx requires a routed context")
	}

	if mode != Write {
		return usqferr.NewInvariantViolation("dsrouter: WithinTx requires a WRITE-routed context")
	}

	lockedCtx := context.WithValue(ctx, ctxKey{}, &state{mode: Write, locked: true, lockedPool: poolPrimary})

	tx, err := r.db.BeginTx(lockedCtx, nil)
	if err != nil {
		return usqferr.ClassifyPgError(err)
	}

	if err := fn(lockedCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Errorf("dsrouter: rollback failed after error %v: %v", err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return usqferr.ClassifyPgError(err)
	}

	return nil
}

// QueryContext runs a read query through the resolver's load-balanced
// replica set (or primary, if the call is exec/tx-shaped), retrying against
// the primary pool on failure when PoolConfig.FallbackToPrimaryOnReplicaError
// is set. Acquire still validates the routing context first; this exists
// alongside it for callers that want the fallback behavior.
func (r *Router) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil && r.fallback && r.primary != nil {
		r.logger.Warnf("dsrouter: replica read failed, falling back to primary: %v", err)
		return r.primary.QueryContext(ctx, query, args...)
	}

	return rows, err
}

// QueryRowContext mirrors QueryContext for the single-row case. No fallback
// is attempted here: QueryRow defers its error until Scan, by which point a
// second attempt against a different pool would observe inconsistent state.
func (r *Router) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, query, args...)
}

// Close releases both pools.
func (r *Router) Close() error {
	return r.db.Close()
}
