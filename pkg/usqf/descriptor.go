// Package usqf implements the Universal Search & Query Framework: a
// runtime query composer that, given a SearchDescriptor and a
// DataTableRequest, produces a paginated, parameterized query plan.
//
// Grounded on the teacher's common/mpostgres (query builder options,
// pagination) and on the dynamic squirrel-based WHERE construction in
// components/ledger/internal/adapters/postgres/account/account.postgresql.go,
// generalized from one hand-written repository method per entity into a
// single descriptor-driven composer.
package usqf

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/omniledger/usqf/pkg/usqferr"
)

// SubqueryTemplate lets a descriptor compile a collection-valued predicate
// to an EXISTS(...) subquery instead of a join, spec §4.3 step 5 / §8's
// "subquery optimization". Build receives the bind-parameter name the
// composer assigned and returns the subquery text referencing it.
type SubqueryTemplate struct {
	Build func(bindParam string) string
}

// EntityRef is the logical entity identity plus the Go struct that backs
// the one-time structural field-type walk, spec §3's "name + field graph
// reference". Descriptors never hold the entity as a domain object --- only
// this type reference, per spec §1's scoping of entities out of the core.
type EntityRef struct {
	Name   string
	GoType reflect.Type
}

// SearchDescriptor is the immutable per-entity declaration from spec §3.
// It is a plain value record on purpose (design notes §9): no descriptor
// inheritance hierarchy, just dotted-path sets and maps a registry seals
// after validation.
type SearchDescriptor struct {
	Entity   EntityRef
	RootAlias string // SQL/JPQL alias for the entity root, defaults to "e"

	Searchable           []string
	Sortable             []string
	DefaultSearchColumns []string
	DefaultSortFields    []SortField
	Aliases              map[string]string
	FetchJoins           []string
	SubqueryFields       map[string]SubqueryTemplate
	FieldTypes           map[string]LogicalType
	UseDistinct          bool

	searchableSet map[string]bool
	sortableSet   map[string]bool
	resolvedTypes map[string]LogicalType
	collection    map[string]bool // fetchJoins entries that are collection-valued
}

// resolveAlias performs the single-hop alias resolution spec §3 requires:
// a client-facing name maps to at most one internal dotted path.
func (d *SearchDescriptor) resolveAlias(name string) string {
	if target, ok := d.Aliases[name]; ok {
		return target
	}

	return name
}

func (d *SearchDescriptor) isSearchable(path string) bool {
	if d.searchableSet[path] {
		return true
	}

	_, subquery := d.SubqueryFields[path]

	return subquery
}

func (d *SearchDescriptor) isSortable(path string) bool {
	return d.sortableSet[path]
}

// Validate checks every invariant from spec §3 and populates the derived
// lookup structures the composer uses. It is called once by Registry.Register
// and never again --- the "one-time structural walk ... never per request"
// rule from design notes §9.
func (d *SearchDescriptor) Validate() error {
	if d.RootAlias == "" {
		d.RootAlias = "e"
	}

	if len(d.DefaultSearchColumns) == 0 {
		return usqferr.NewInvariantViolation(fmt.Sprintf(
			"descriptor %q: defaultSearchColumns must be non-empty", d.Entity.Name))
	}

	d.searchableSet = toSet(d.Searchable)
	d.sortableSet = toSet(d.Sortable)

	for alias, target := range d.Aliases {
		if d.searchableSet[alias] {
			return usqferr.NewInvariantViolation(fmt.Sprintf(
				"descriptor %q: alias %q collides with a real searchable field", d.Entity.Name, alias))
		}

		if !d.isSearchable(target) {
			return usqferr.NewInvariantViolation(fmt.Sprintf(
				"descriptor %q: alias %q targets %q which is not searchable or a subquery field",
				d.Entity.Name, alias, target))
		}
	}

	for _, col := range d.DefaultSearchColumns {
		resolved := d.resolveAlias(col)
		if !d.isSearchable(resolved) {
			return usqferr.NewInvariantViolation(fmt.Sprintf(
				"descriptor %q: defaultSearchColumns entry %q is not in searchable or subqueryFields", d.Entity.Name, col))
		}
	}

	for _, s := range d.Sortable {
		resolved := d.resolveAlias(s)
		if !d.isSearchable(resolved) {
			return usqferr.NewInvariantViolation(fmt.Sprintf(
				"descriptor %q: sortable entry %q must also be searchable or a subquery field", d.Entity.Name, s))
		}
	}

	for _, sf := range d.DefaultSortFields {
		resolved := d.resolveAlias(sf.Field)
		if !d.isSortable(resolved) {
			return usqferr.NewInvariantViolation(fmt.Sprintf(
				"descriptor %q: defaultSortFields entry %q is not sortable", d.Entity.Name, sf.Field))
		}
	}

	// relation-collection fields in subqueryFields must not also appear in
	// fetchJoins (spec §3 invariant / §8 "field in both ... is an invariant
	// violation caught at descriptor registration").
	for sq := range d.SubqueryFields {
		root := rootSegment(sq)
		for _, fj := range d.FetchJoins {
			if fj == root {
				return usqferr.NewInvariantViolation(fmt.Sprintf(
					"descriptor %q: %q is both fetch-joined and a subquery field", d.Entity.Name, root))
			}
		}
	}

	if err := d.resolveFieldTypesAndCollections(); err != nil {
		return err
	}

	for _, fj := range d.FetchJoins {
		if d.collection[fj] && !d.UseDistinct {
			return usqferr.NewInvariantViolation(fmt.Sprintf(
				"descriptor %q: fetchJoins entry %q is collection-valued, useDistinct must be true", d.Entity.Name, fj))
		}
	}

	return nil
}

// resolveFieldTypesAndCollections runs the structural walk of spec §4.4 for
// every path the descriptor references (unless FieldTypes already declares
// it), and records which fetchJoins segments are collection-valued so
// Validate can enforce useDistinct.
func (d *SearchDescriptor) resolveFieldTypesAndCollections() error {
	d.resolvedTypes = make(map[string]LogicalType, len(d.FieldTypes))

	for path, lt := range d.FieldTypes {
		d.resolvedTypes[path] = lt
	}

	d.collection = make(map[string]bool, len(d.FetchJoins))

	paths := make(map[string]bool)
	for _, p := range d.Searchable {
		paths[p] = true
	}

	for _, p := range d.Sortable {
		paths[p] = true
	}

	for p := range paths {
		if _, declared := d.resolvedTypes[p]; declared {
			continue
		}

		if d.Entity.GoType == nil {
			continue // no Go field graph supplied; rely solely on FieldTypes.
		}

		lt, _, ok := walkFieldGraph(d.Entity.GoType, p)
		if ok && lt != "" {
			d.resolvedTypes[p] = lt
		}
	}

	if d.Entity.GoType != nil {
		for _, fj := range d.FetchJoins {
			_, segs, ok := walkFieldGraph(d.Entity.GoType, fj)
			if ok && len(segs) > 0 {
				d.collection[fj] = segs[len(segs)-1].collection
			}
		}
	}

	return nil
}

// FieldType returns the resolved logical type for path, falling back to
// TypeText when nothing was declared or discoverable. That fallback also
// covers a path whose structural walk stopped at a type outside the
// safe-type allow-list: such a path is not suppressed, and its predicates
// compile as TEXT.
func (d *SearchDescriptor) FieldType(path string) LogicalType {
	if lt, ok := d.resolvedTypes[path]; ok {
		return lt
	}

	return TypeText
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}

	return set
}

// sortedKeys returns the keys of m in ascending order, for deterministic
// iteration over a set. Nothing in the package calls it at present.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
