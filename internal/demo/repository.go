package demo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/omniledger/usqf/pkg/dsrouter"
	"github.com/omniledger/usqf/pkg/usqf"
	"github.com/omniledger/usqf/pkg/usqferr"
)

// UserRepository exercises the full framework: a squirrel-built base query
// (mirroring account.postgresql.go's FindAll), extended through
// usqf.ComposeFromBase, routed through dsrouter, and scanned through
// usqf.Execute.
type UserRepository struct {
	router   *dsrouter.Router
	composer *usqf.Composer
	desc     *usqf.SearchDescriptor
}

// NewUserRepository wires a repository bound to the given router and the
// registry's "user" descriptor.
func NewUserRepository(router *dsrouter.Router, composer *usqf.Composer, reg *usqf.Registry) (*UserRepository, error) {
	desc, ok := reg.Get("user")
	if !ok {
		return nil, usqferr.NewInvariantViolation("demo: \"user\" descriptor not registered")
	}

	return &UserRepository{router: router, composer: composer, desc: desc}, nil
}

// userColumns are the physical, quoted-camelCase columns backing this demo
// schema — matching the descriptor's JPQL-style property paths verbatim, so
// the composer's generated WHERE/ORDER BY clauses and this base SELECT
// reference the very same identifiers.
var userColumns = []string{"id", "name", "email", "active", "createdAt"}

func baseSelect() squirrel.SelectBuilder {
	cols := make([]string, 0, len(userColumns))
	for _, c := range userColumns {
		cols = append(cols, fmt.Sprintf(`e.%q`, c))
	}

	return squirrel.Select(cols...).From(`"user" e`)
}

// FindAll composes and executes req against the user table, returning a
// paginated result. ctx need not be routed: FindAll marks its own query
// read-only via dsrouter.MarkReadOnly before calling dsrouter.Acquire.
func (r *UserRepository) FindAll(ctx context.Context, req *usqf.DataTableRequest) (usqf.Page[User], error) {
	base, _, err := baseSelect().ToSql()
	if err != nil {
		return usqf.Page[User]{}, usqferr.NewInternal(err)
	}

	plan, err := r.composer.ComposeFromBase(ctx, base, r.desc, req)
	if err != nil {
		return usqf.Page[User]{}, err
	}

	if _, err := r.router.Acquire(dsrouter.MarkReadOnly(ctx)); err != nil {
		return usqf.Page[User]{}, err
	}

	return usqf.Execute(ctx, r.router, plan, req.Pagination, scanUser)
}

func scanUser(rows *sql.Rows) (User, error) {
	var u User

	if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Active, &u.CreatedAt); err != nil {
		return User{}, err
	}

	return u, nil
}

// Create demonstrates the WRITE side of the router: inserts always run
// inside WithinTx, bound to the primary pool regardless of the caller's
// ambient routing intent (spec's "writes always resolve to primary").
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	writeCtx := dsrouter.WithRouting(ctx, dsrouter.Write)

	return r.router.WithinTx(writeCtx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO "user" (id, name, email, active, "createdAt") VALUES ($1,$2,$3,$4,$5)`,
			u.ID, u.Name, u.Email, u.Active, u.CreatedAt)
		if err != nil {
			return usqferr.ClassifyPgError(err)
		}

		return nil
	})
}
