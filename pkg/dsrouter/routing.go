// Package dsrouter implements the transaction-scoped read/write datasource
// router: a request carries its routing intent (READ or WRITE) as a value on
// its context.Context, and the router validates that intent (including the
// mid-transaction re-route guard) at acquisition time.
//
// Grounded on the teacher's common/mpostgres.PostgresConnection, which dials
// a dbresolver.DB pair (primary + replica) behind a single handle; this
// package keeps the same two-pool shape and the same handle. The pool a
// statement actually reaches is chosen by dbresolver from the statement's
// shape (Query to the replica set, Exec/Begin to the primary); the routing
// intent on the context does not change that choice.
package dsrouter

import (
	"context"

	"github.com/omniledger/usqf/pkg/mlog"
	"github.com/omniledger/usqf/pkg/usqferr"
)

// Mode is the routing intent a request context carries.
type Mode string

const (
	Read  Mode = "READ"
	Write Mode = "WRITE"
)

type poolTag string

const (
	poolPrimary poolTag = "primary"
	poolReplica poolTag = "replica"
)

// state is the mutable routing record stashed behind a single context key.
// It is addressed by pointer so WithinTx can "lock" it in place for the
// lifetime of a transaction without every nested context derivation losing
// track of the lock.
type state struct {
	mode       Mode
	locked     bool
	lockedPool poolTag
}

type ctxKey struct{}

// WithRouting tags ctx with the request's routing intent. A context that
// never passes through WithRouting resolves to the WRITE pool in Acquire;
// WithinTx requires it. Inside a WithinTx scope the transaction's lock is
// carried over, so asking for a different pool there is still caught by
// resolvePool as a mid-transaction re-route.
func WithRouting(ctx context.Context, mode Mode) context.Context {
	next := &state{mode: mode}
	if st, ok := stateFrom(ctx); ok && st.locked {
		next.locked, next.lockedPool = true, st.lockedPool
	}

	return context.WithValue(ctx, ctxKey{}, next)
}

// MarkReadOnly downgrades the current context to READ, for a call site that
// knows its own query is read-only even though the surrounding request was
// tagged WRITE. Downgrading a WRITE context is logged as a warning rather
// than silently accepted, since it usually signals the caller over-scoped
// the original WithRouting call.
func MarkReadOnly(ctx context.Context) context.Context {
	st, ok := stateFrom(ctx)
	if !ok {
		return WithRouting(ctx, Read)
	}

	if st.mode == Write {
		mlog.FromContext(ctx).Warnf("dsrouter: downgrading a WRITE-routed context to READ-only")
	}

	return context.WithValue(ctx, ctxKey{}, &state{mode: Read, locked: st.locked, lockedPool: st.lockedPool})
}

func stateFrom(ctx context.Context) (*state, bool) {
	st, ok := ctx.Value(ctxKey{}).(*state)
	return st, ok
}

// ModeFrom reports the routing mode tagged on ctx, if any.
func ModeFrom(ctx context.Context) (Mode, bool) {
	st, ok := stateFrom(ctx)
	if !ok {
		return "", false
	}

	return st.mode, true
}

func poolFor(mode Mode) poolTag {
	if mode == Write {
		return poolPrimary
	}

	return poolReplica
}

// resolvePool applies the routing decision for ctx: the mode it carries,
// subject to the "locked" transaction guard a WithinTx call installs. A
// locked context whose requested pool disagrees with the pool its
// transaction is already bound to is the mid-transaction re-route spec
// calls a fatal error — it is reported as an INVARIANT_VIOLATION, never
// silently honored. A context that never called WithRouting at all has no
// state to lock or disagree with, so it defaults to the WRITE pool (spec
// §3's "RoutingContext ... default WRITE", §4.1's "if no context is set,
// the pool is WRITE") rather than failing.
func resolvePool(ctx context.Context) (poolTag, error) {
	st, ok := stateFrom(ctx)
	if !ok {
		return poolPrimary, nil
	}

	want := poolFor(st.mode)

	if st.locked && st.lockedPool != want {
		mlog.FromContext(ctx).Errorf("dsrouter: mid-transaction re-route attempted: locked to %s, requested %s", st.lockedPool, want)
		return "", usqferr.NewInvariantViolation("mid-transaction re-route is not allowed")
	}

	return want, nil
}
