package usqf

import (
	"context"
	"database/sql"

	"github.com/omniledger/usqf/pkg/usqferr"
)

// Queryer is the minimal surface Execute needs. Both *sql.DB and
// dbresolver.DB satisfy it, and usqf deliberately never imports dbresolver
// itself — composing a plan and routing it to a pool are separate concerns
// (spec's "composer composes, router routes" split). Callers are expected to
// have already selected the correct pool via dsrouter before calling
// Execute.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scan converts one result row into a T.
type Scan[T any] func(rows *sql.Rows) (T, error)

// Execute runs plan against db and returns a populated Page[T]: the data
// query via Scan, the count query via a single scalar read, per spec §4.1's
// "the composer performs the final query/count I/O" requirement.
func Execute[T any](ctx context.Context, db Queryer, plan *Plan, page Pagination, scan Scan[T]) (Page[T], error) {
	dataSQL, dataArgs, err := plan.PreparedData()
	if err != nil {
		return Page[T]{}, err
	}

	rows, err := db.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return Page[T]{}, usqferr.ClassifyPgError(err)
	}
	defer rows.Close()

	var items []T

	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return Page[T]{}, usqferr.NewInternal(err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return Page[T]{}, usqferr.ClassifyPgError(err)
	}

	countSQL, countArgs, err := plan.PreparedCount()
	if err != nil {
		return Page[T]{}, err
	}

	var total int64
	if err := db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return Page[T]{}, usqferr.ClassifyPgError(err)
	}

	return NewPage(page.Page, page.Size, total, items), nil
}
