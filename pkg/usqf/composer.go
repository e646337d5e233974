package usqf

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/omniledger/usqf/pkg/mlog"
	"github.com/omniledger/usqf/pkg/usqferr"
)

// Plan is the parameterized query plan the composer produces: a JPQL-
// equivalent SELECT and a matching COUNT, each with named binds (spec §4.3).
// Plan.Prepared* translate the named-bind text into Postgres positional SQL
// for execution, the one place this framework touches a concrete dialect.
type Plan struct {
	DataSQL   string
	CountSQL  string
	DataBinds map[string]any
}

var bindTokenPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// prepare translates a `:name` JPQL-style bind text into `$1, $2, ...`
// Postgres positional SQL plus an ordered argument slice built from binds.
// A name reused multiple times in text maps to the same positional index,
// matching JPQL named-parameter semantics. It is the composer's only
// dialect-specific step — not a query planner, just a bind-substitution
// pass (spec explicitly rules out "a full ORM").
func prepare(text string, binds map[string]any) (string, []any, error) {
	order := make([]string, 0, len(binds))
	index := make(map[string]int, len(binds))

	var buildErr error

	out := bindTokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		name := tok[1:]

		i, seen := index[name]
		if !seen {
			if _, ok := binds[name]; !ok {
				buildErr = usqferr.NewInvariantViolation(fmt.Sprintf("bind %q referenced but never assigned", name))
				return tok
			}

			i = len(order)
			index[name] = i
			order = append(order, name)
		}

		return fmt.Sprintf("$%d", i+1)
	})

	if buildErr != nil {
		return "", nil, buildErr
	}

	args := make([]any, len(order))
	for name, i := range index {
		args[i] = binds[name]
	}

	return out, args, nil
}

// PreparedData returns the Postgres-ready SELECT statement and its
// positional arguments.
func (p *Plan) PreparedData() (string, []any, error) { return prepare(p.DataSQL, p.DataBinds) }

// PreparedCount returns the Postgres-ready COUNT statement and its
// positional arguments.
func (p *Plan) PreparedCount() (string, []any, error) { return prepare(p.CountSQL, p.DataBinds) }

// Composer transforms (SearchDescriptor, DataTableRequest) pairs into Plans,
// per spec §4.3. It holds no per-request state.
type Composer struct {
	registry *Registry
	logger   mlog.Logger
	tracer   trace.Tracer
}

// ComposerOption configures a Composer at construction time.
type ComposerOption func(*Composer)

// WithLogger injects the logger used for the "downgrade with a warning"
// local-recovery cases from spec §7.
func WithLogger(l mlog.Logger) ComposerOption {
	return func(c *Composer) { c.logger = l }
}

// WithTracer injects an OpenTelemetry tracer, grounded on the teacher's
// mopentelemetry span-per-operation pattern (tracer.Start/HandleSpanError in
// account.postgresql.go).
func WithTracer(t trace.Tracer) ComposerOption {
	return func(c *Composer) { c.tracer = t }
}

// NewComposer builds a Composer bound to a descriptor registry.
func NewComposer(reg *Registry, opts ...ComposerOption) *Composer {
	c := &Composer{registry: reg, logger: &mlog.NoneLogger{}, tracer: otel.Tracer("usqf/composer")}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type compiled struct {
	text  string
	binds map[string]any
}

// Compose builds the full plan for descriptor desc and request req, per the
// algorithm in spec §4.3.
func (c *Composer) Compose(ctx context.Context, desc *SearchDescriptor, req *DataTableRequest) (*Plan, error) {
	_, span := c.tracer.Start(ctx, "usqf.compose")
	defer span.End()

	return c.compose(desc, req, "")
}

// ComposeFromBase is the base-query extension mode from spec §4.3: the
// caller supplies a preformed `SELECT ... FROM ... [joins] [WHERE ...]`
// and the composer only splices in additional WHERE/ORDER BY/pagination.
func (c *Composer) ComposeFromBase(ctx context.Context, baseSQL string, desc *SearchDescriptor, req *DataTableRequest) (*Plan, error) {
	_, span := c.tracer.Start(ctx, "usqf.compose_from_base")
	defer span.End()

	return c.compose(desc, req, baseSQL)
}

func (c *Composer) compose(desc *SearchDescriptor, req *DataTableRequest, baseSQL string) (*Plan, error) {
	if err := req.ValidatePagination(); err != nil {
		return nil, err
	}

	binds := make(map[string]any)

	searchPaths, err := c.resolveSearchPaths(desc, req)
	if err != nil {
		return nil, err
	}

	filterPaths, wherePredicates, err := c.compileColumnFilters(desc, req, binds)
	if err != nil {
		return nil, err
	}

	searchPredicate := c.compileGlobalSearch(desc, searchPaths, req.SearchFilter.SearchText, binds)

	orderBy, err := c.resolveOrderBy(desc, req)
	if err != nil {
		return nil, err
	}

	limit, offset := req.Pagination.Size, req.Pagination.Page*req.Pagination.Size

	if baseSQL != "" {
		return c.assembleFromBase(baseSQL, desc, searchPredicate, wherePredicates, orderBy, limit, offset, binds)
	}

	participating := append(append([]string{}, searchPaths...), filterPaths...)
	fetchJoins, plainJoins := c.buildJoins(desc, participating)

	dataSQL, err := buildSelect(desc, fetchJoins, plainJoins, searchPredicate, wherePredicates, orderBy, limit, offset)
	if err != nil {
		return nil, usqferr.NewInternal(err)
	}

	countSQL, err := buildCount(desc, plainJoins, searchPredicate, wherePredicates)
	if err != nil {
		return nil, usqferr.NewInternal(err)
	}

	return &Plan{DataSQL: dataSQL, CountSQL: countSQL, DataBinds: binds}, nil
}

// buildSelect assembles the data query on squirrel's expression builder
// (spec §4.3 steps 3-6): one FROM with root alias, fetch joins before plain
// joins, the combined search/filter predicates ANDed in, the resolved ORDER
// BY, then LIMIT/OFFSET. Every predicate/join/order fragment still carries
// its own `:name` bind tokens as literal text — squirrel never sees or
// substitutes them, it only assembles the clauses around them; translation
// to positional `$n` args happens afterward in prepare().
func buildSelect(desc *SearchDescriptor, fetchJoins, plainJoins []string, searchPredicate string, wherePredicates []string, orderBy string, limit, offset int) (string, error) {
	root := desc.RootAlias

	sel := squirrel.Select(root)
	if desc.UseDistinct {
		sel = sel.Distinct()
	}

	sel = sel.From(desc.Entity.Name + " " + root)

	for _, j := range fetchJoins {
		sel = sel.LeftJoin("FETCH " + j)
	}

	for _, j := range plainJoins {
		sel = sel.LeftJoin(j)
	}

	sel = applyWhere(sel, searchPredicate, wherePredicates)

	if orderBy != "" {
		sel = sel.OrderBy(orderBy)
	}

	sel = sel.Limit(uint64(limit)).Offset(uint64(offset))

	sql, _, err := sel.ToSql()
	if err != nil {
		return "", err
	}

	return sql, nil
}

// buildCount mirrors buildSelect for the COUNT query: fetch joins are
// dropped (they only affect which columns are eagerly loaded, never row
// count), ORDER BY/LIMIT/OFFSET are never meaningful on a COUNT.
func buildCount(desc *SearchDescriptor, plainJoins []string, searchPredicate string, wherePredicates []string) (string, error) {
	root := desc.RootAlias
	projection := "COUNT(" + root + ")"

	if desc.UseDistinct {
		projection = "COUNT(DISTINCT " + root + ")"
	}

	sel := squirrel.Select(projection).From(desc.Entity.Name + " " + root)

	for _, j := range plainJoins {
		sel = sel.LeftJoin(j)
	}

	sel = applyWhere(sel, searchPredicate, wherePredicates)

	sql, _, err := sel.ToSql()
	if err != nil {
		return "", err
	}

	return sql, nil
}

// applyWhere ANDs the global search predicate (already its own parenthesized
// OR group) with every column-filter predicate, one squirrel Where() call
// per fragment — squirrel joins multiple Where() calls with " AND ", the
// same combination combinePredicates built by hand for the base-query path.
func applyWhere(sel squirrel.SelectBuilder, searchPredicate string, wherePredicates []string) squirrel.SelectBuilder {
	if searchPredicate != "" {
		sel = sel.Where(searchPredicate)
	}

	for _, p := range wherePredicates {
		sel = sel.Where(p)
	}

	return sel
}

// resolveSearchPaths computes the "effective search set" from spec's
// GLOSSARY: explicit request columns if supplied, else the descriptor's
// DefaultSearchColumns. Unknown explicit columns are a hard validation
// failure (never silently dropped), per spec §4.3 step 1.
func (c *Composer) resolveSearchPaths(desc *SearchDescriptor, req *DataTableRequest) ([]string, error) {
	var raw []string
	if len(req.SearchFilter.Columns) > 0 {
		raw = req.SearchFilter.Columns
	} else {
		raw = desc.DefaultSearchColumns
	}

	paths := make([]string, 0, len(raw))

	for _, name := range raw {
		resolved := desc.resolveAlias(name)
		if !desc.isSearchable(resolved) {
			return nil, usqferr.NewValidation(fmt.Sprintf("unknown search field %q", name),
				usqferr.FieldValidation{Field: name, Message: "not a searchable field"})
		}

		paths = append(paths, resolved)
	}

	return paths, nil
}

// compileGlobalSearch ORs one predicate per effective search field, sharing
// a single :searchText bind across all of them (spec §4.3 step 5).
func (c *Composer) compileGlobalSearch(desc *SearchDescriptor, paths []string, searchText string, binds map[string]any) string {
	if searchText == "" || len(paths) == 0 {
		return ""
	}

	binds["searchText"] = searchText

	parts := make([]string, 0, len(paths))

	for _, path := range paths {
		if tmpl, ok := desc.SubqueryFields[path]; ok {
			parts = append(parts, tmpl.Build("searchText"))
			continue
		}

		field := desc.RootAlias + "." + path

		if desc.FieldType(path) == TypeText {
			parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE LOWER(CONCAT('%%',:searchText,'%%'))", field))
		} else {
			parts = append(parts, fmt.Sprintf("CONCAT('', %s) LIKE CONCAT('%%',:searchText,'%%')", field))
		}
	}

	return "(" + strings.Join(parts, " OR ") + ")"
}

// compileColumnFilters parses and compiles every column with a non-empty
// Filter. Unknown field references are a hard VALIDATION_FAILED (step 1);
// everything else that can go wrong within a known field (bad operator,
// coerce failure, bad date, wrong dbetween arity) downgrades per spec §7:
// the predicate (and its would-be bind) is dropped as a pair and a warning
// is logged, the request is never aborted for it.
func (c *Composer) compileColumnFilters(desc *SearchDescriptor, req *DataTableRequest, binds map[string]any) ([]string, []string, error) {
	var paths []string

	var predicates []string

	for _, col := range req.Columns {
		if col.Filter == "" {
			continue
		}

		resolved := desc.resolveAlias(col.ColumnName)
		if !desc.isSearchable(resolved) {
			return nil, nil, usqferr.NewValidation(fmt.Sprintf("unknown filter field %q", col.ColumnName),
				usqferr.FieldValidation{Field: col.ColumnName, Message: "not a filterable field"})
		}

		paths = append(paths, resolved)

		fc, ok := ParseFilter(col.Filter)
		if !ok {
			c.logger.Warnf("usqf: dropping unparseable filter %q on field %q", col.Filter, col.ColumnName)
			continue
		}

		res, ok := c.compilePredicate(desc, resolved, fc)
		if !ok {
			c.logger.Warnf("usqf: dropping filter %s on field %q (coercion or arity failure)", fc, col.ColumnName)
			continue
		}

		for k, v := range res.binds {
			binds[k] = v
		}

		predicates = append(predicates, res.text)
	}

	return paths, predicates, nil
}

// resolveOrderBy implements spec §4.3 step 6's three-way precedence, and
// spec §4.3 step 1's "sort not in sortable -> VALIDATION_FAILED".
func (c *Composer) resolveOrderBy(desc *SearchDescriptor, req *DataTableRequest) (string, error) {
	var clauses []string

	for _, col := range req.Columns {
		if col.Sort == "" {
			continue
		}

		dir, ok := ParseSortDirection(col.Sort)
		if !ok {
			return "", usqferr.NewValidation(fmt.Sprintf("invalid sort direction %q on field %q", col.Sort, col.ColumnName))
		}

		resolved := desc.resolveAlias(col.ColumnName)
		if !desc.isSortable(resolved) {
			return "", usqferr.NewValidation(fmt.Sprintf("field %q is not sortable", col.ColumnName),
				usqferr.FieldValidation{Field: col.ColumnName, Message: "not a sortable field"})
		}

		clauses = append(clauses, fmt.Sprintf("%s.%s %s", desc.RootAlias, resolved, dir))
	}

	if len(clauses) > 0 {
		return strings.Join(clauses, ", "), nil
	}

	if len(desc.DefaultSortFields) > 0 {
		seen := make(map[string]bool)

		var parts []string

		for _, sf := range desc.DefaultSortFields {
			if seen[sf.Field] {
				continue // first declaration wins, spec §4.3 tie-break
			}

			seen[sf.Field] = true
			parts = append(parts, fmt.Sprintf("%s.%s %s", desc.RootAlias, sf.Field, sf.Direction))
		}

		return strings.Join(parts, ", "), nil
	}

	c.logger.Warnf("usqf: descriptor %q declares no default sort fields, falling back to %s.id ASC", desc.Entity.Name, desc.RootAlias)

	return fmt.Sprintf("%s.id ASC", desc.RootAlias), nil
}

// buildJoins emits one LEFT JOIN FETCH per FetchJoins entry, plus a plain
// LEFT JOIN for every association root implied by a participating dotted
// path that isn't already fetch-joined or covered by a subquery field
// (spec §4.3 step 4). The two slices are returned separately (fetch, plain)
// since the COUNT query needs the plain joins but never the fetch ones.
func (c *Composer) buildJoins(desc *SearchDescriptor, participatingPaths []string) (fetch, plain []string) {
	fetchSet := make(map[string]bool)

	for _, fj := range desc.FetchJoins {
		fetch = append(fetch, fmt.Sprintf("%s.%s", desc.RootAlias, fj))
		fetchSet[fj] = true
	}

	seen := make(map[string]bool)

	for _, path := range participatingPaths {
		root := rootSegment(path)
		if root == path {
			continue // not a dotted/association path
		}

		if fetchSet[root] || seen[root] {
			continue
		}

		if _, isSubquery := desc.SubqueryFields[path]; isSubquery {
			continue
		}

		seen[root] = true
		plain = append(plain, fmt.Sprintf("%s.%s", desc.RootAlias, root))
	}

	return fetch, plain
}

func combinePredicates(search string, filters []string) string {
	parts := make([]string, 0, len(filters)+1)
	if search != "" {
		parts = append(parts, search)
	}

	parts = append(parts, filters...)

	return strings.Join(parts, " AND ")
}

var orderByPattern = regexp.MustCompile(`(?i)\s+ORDER\s+BY\s.*$`)

// assembleFromBase implements spec §4.3's base-query extension mode. Unlike
// buildSelect/buildCount above, there is no structured builder to drive
// here: baseSQL is an opaque, already-assembled string the *caller* built
// (e.g. with its own squirrel chain, see internal/demo.baseSelect), not
// something this composer accumulated clause-by-clause — squirrel has no
// handle on text it never built, so stripping a pre-existing ORDER BY and
// swapping the projection for COUNT (countProjection, below) is genuinely a
// text-rewrite problem over someone else's SQL, not an "accumulate clauses,
// build once" one. That is the one place in this package a regex remains;
// everything this composer itself assembles goes through squirrel above.
func (c *Composer) assembleFromBase(baseSQL string, desc *SearchDescriptor, search string, filters []string, orderBy string, limit, offset int, binds map[string]any) (*Plan, error) {
	stripped := strings.TrimSpace(orderByPattern.ReplaceAllString(baseSQL, ""))

	where := combinePredicates(search, filters)

	dataSQL := stripped
	countBase := stripped

	if where != "" {
		if hasWhere(stripped) {
			dataSQL = fmt.Sprintf("%s AND (%s)", stripped, where)
			countBase = dataSQL
		} else {
			dataSQL = fmt.Sprintf("%s WHERE (%s)", stripped, where)
			countBase = dataSQL
		}
	}

	if orderBy != "" {
		dataSQL = fmt.Sprintf("%s ORDER BY %s", dataSQL, orderBy)
	}

	dataSQL = fmt.Sprintf("%s LIMIT %d OFFSET %d", dataSQL, limit, offset)

	countSQL := countProjection(countBase, desc)

	return &Plan{DataSQL: dataSQL, CountSQL: countSQL, DataBinds: binds}, nil
}

var selectProjectionPattern = regexp.MustCompile(`(?is)^SELECT\s+.*?\s+FROM`)
var fetchKeywordPattern = regexp.MustCompile(`(?i)\bFETCH\b`)

func countProjection(base string, desc *SearchDescriptor) string {
	projection := "SELECT COUNT(" + desc.RootAlias + ")"
	if desc.UseDistinct {
		projection = "SELECT COUNT(DISTINCT " + desc.RootAlias + ")"
	}

	replaced := selectProjectionPattern.ReplaceAllString(base, projection+" FROM")

	return strings.TrimSpace(fetchKeywordPattern.ReplaceAllString(replaced, ""))
}

func hasWhere(sql string) bool {
	return regexp.MustCompile(`(?i)\bWHERE\b`).MatchString(sql)
}
