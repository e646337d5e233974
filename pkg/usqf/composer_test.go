package usqf

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type composerTestUser struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"createdAt"`
	Role      *composerTestRole `json:"role"`
}

type composerTestRole struct {
	Name string `json:"name"`
}

func userDescriptor() *SearchDescriptor {
	d := &SearchDescriptor{
		Entity:               EntityRef{Name: "user", GoType: reflect.TypeOf(composerTestUser{})},
		Searchable:           []string{"name", "email", "active", "createdAt", "role.name"},
		Sortable:             []string{"name", "email", "createdAt", "role.name"},
		DefaultSearchColumns: []string{"name", "email"},
		DefaultSortFields:    []SortField{{Field: "createdAt", Direction: SortDesc}},
		Aliases:              map[string]string{"roleName": "role.name"},
		FetchJoins:           []string{"role"},
	}
	if err := d.Validate(); err != nil {
		panic(err)
	}

	return d
}

func newTestComposer() *Composer {
	return NewComposer(NewRegistry())
}

func TestComposeGlobalSearch(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()

	req := &DataTableRequest{
		Pagination:   Pagination{Page: 0, Size: 20},
		SearchFilter: SearchFilter{SearchText: "jane"},
	}

	plan, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)
	assert.Contains(t, plan.DataSQL, "e.name")
	assert.Contains(t, plan.DataSQL, "e.email")
	assert.Contains(t, plan.DataSQL, "LEFT JOIN FETCH e.role")
	assert.Equal(t, "jane", plan.DataBinds["searchText"])
	assert.Contains(t, plan.DataSQL, "LIMIT 20 OFFSET 0")
}

func TestComposeColumnFilterAndSort(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()

	req := &DataTableRequest{
		Pagination: Pagination{Page: 1, Size: 10},
		Columns: []Column{
			{ColumnName: "active", Filter: "eq:true"},
			{ColumnName: "name", Sort: "asc"},
		},
	}

	plan, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)
	assert.Contains(t, plan.DataSQL, "e.active = :filter_active")
	assert.Equal(t, true, plan.DataBinds["filter_active"])
	assert.Contains(t, plan.DataSQL, "ORDER BY e.name ASC")
	assert.Contains(t, plan.DataSQL, "OFFSET 10")
}

func TestComposeUnknownSortFieldIsValidationFailed(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()

	req := &DataTableRequest{
		Pagination: Pagination{Page: 0, Size: 10},
		Columns:    []Column{{ColumnName: "bogusField", Sort: "asc"}},
	}

	_, err := c.Compose(context.Background(), desc, req)
	require.Error(t, err)
}

func TestComposeDropsUnparseableFilterInsteadOfFailing(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()

	req := &DataTableRequest{
		Pagination: Pagination{Page: 0, Size: 10},
		Columns:    []Column{{ColumnName: "createdAt", Filter: "gt:not-a-date"}},
	}

	plan, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)
	assert.NotContains(t, plan.DataSQL, "filter_createdAt")
}

func TestComposeDropsUnparseableFilterLogsAWarning(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := newMockLogger(ctrl)
	logger.EXPECT().Warnf(gomock.Any(), gomock.Any()).Times(1)

	c := NewComposer(NewRegistry(), WithLogger(logger))
	desc := userDescriptor()

	req := &DataTableRequest{
		Pagination: Pagination{Page: 0, Size: 10},
		Columns:    []Column{{ColumnName: "createdAt", Filter: "gt:not-a-date"}},
	}

	_, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)
}

func TestComposeDefaultSortFallsBackToID(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()
	desc.DefaultSortFields = nil

	req := &DataTableRequest{Pagination: Pagination{Page: 0, Size: 10}}

	plan, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)
	assert.Contains(t, plan.DataSQL, "ORDER BY e.id ASC")
}

func TestComposeFromBaseSplicesWhereAndStripsOrderBy(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()

	base := `SELECT e.id, e.name FROM "user" e WHERE e.active = true ORDER BY e.id DESC`

	req := &DataTableRequest{
		Pagination: Pagination{Page: 0, Size: 10},
		Columns: []Column{
			{ColumnName: "email", Filter: "cnt:jane"},
			{ColumnName: "name", Sort: "asc"},
		},
	}

	plan, err := c.ComposeFromBase(context.Background(), base, desc, req)
	require.NoError(t, err)
	assert.Contains(t, plan.DataSQL, "AND (")
	assert.Contains(t, plan.DataSQL, "ORDER BY e.name ASC")
	assert.NotContains(t, plan.CountSQL, "ORDER BY")
	assert.Contains(t, plan.CountSQL, "SELECT COUNT(e)")
}

func TestPlanPreparedTranslatesNamedBindsInOrder(t *testing.T) {
	plan := &Plan{
		DataSQL:   "SELECT 1 WHERE a = :x AND b = :y AND c = :x",
		DataBinds: map[string]any{"x": 1, "y": 2},
	}

	sql, args, err := plan.PreparedData()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2 AND c = $1", sql)
	assert.Equal(t, []any{1, 2}, args)
}

// subqueryUserDescriptor matches spec §8 scenario 3: a subquery field with
// an EXISTS template, aliased to a client-facing name distinct from its
// internal dotted path.
func subqueryUserDescriptor() *SearchDescriptor {
	d := &SearchDescriptor{
		Entity:               EntityRef{Name: "user", GoType: reflect.TypeOf(composerTestUser{})},
		Searchable:           []string{"name", "email"},
		Sortable:             []string{"name", "email"},
		DefaultSearchColumns: []string{"name", "email"},
		DefaultSortFields:    []SortField{{Field: "name", Direction: SortAsc}},
		Aliases:              map[string]string{"companyName": "companies.companyName"},
		SubqueryFields: map[string]SubqueryTemplate{
			"companies.companyName": {Build: func(bind string) string {
				return "EXISTS (SELECT 1 FROM companies c WHERE c.user_id = e.id AND LOWER(c.companyName) LIKE LOWER(CONCAT('%',:" + bind + ",'%')))"
			}},
		},
	}
	if err := d.Validate(); err != nil {
		panic(err)
	}

	return d
}

// TestComposeSubqueryFieldProducesNoJoin pins spec §8 scenario 3: filtering
// on a subqueryFields-declared path compiles to an EXISTS subquery with the
// expected bind, and adds zero joins for that field's related entity.
func TestComposeSubqueryFieldProducesNoJoin(t *testing.T) {
	c := newTestComposer()
	desc := subqueryUserDescriptor()

	req := &DataTableRequest{
		Pagination: Pagination{Page: 0, Size: 10},
		Columns:    []Column{{ColumnName: "companyName", Filter: "cnt:acme"}},
	}

	plan, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)
	assert.Contains(t, plan.DataSQL, "EXISTS (SELECT 1 FROM companies c WHERE c.user_id = e.id")
	assert.Equal(t, "acme", plan.DataBinds["filter_companies_companyName"])
	assert.NotContains(t, plan.DataSQL, "LEFT JOIN companies")
	assert.NotContains(t, plan.DataSQL, "JOIN e.companies")
}

// TestComposeDateBetweenBindsBothDataAndCount pins spec §8 scenario 4: a
// dbetween filter produces the same CAST(... AS DATE) BETWEEN predicate, with both
// start and end bound, on the data query and on the count query, and
// ORDER BY falls back to the descriptor default since the request sorts
// nothing explicitly.
func TestComposeDateBetweenBindsBothDataAndCount(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()

	req := &DataTableRequest{
		Pagination: Pagination{Page: 0, Size: 10},
		Columns:    []Column{{ColumnName: "createdAt", Filter: "dbetween:2024-01-01,2024-03-31"}},
	}

	plan, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)

	wantPredicate := "CAST(e.createdAt AS DATE) BETWEEN :filter_createdAt_start AND :filter_createdAt_end"
	assert.Contains(t, plan.DataSQL, wantPredicate)
	assert.Contains(t, plan.CountSQL, wantPredicate)
	assert.Contains(t, plan.DataBinds, "filter_createdAt_start")
	assert.Contains(t, plan.DataBinds, "filter_createdAt_end")
	assert.Contains(t, plan.DataSQL, "ORDER BY e.createdAt DESC")
}

func TestInOperatorEmptyListCompilesToFalse(t *testing.T) {
	c := newTestComposer()
	desc := userDescriptor()

	req := &DataTableRequest{
		Pagination: Pagination{Page: 0, Size: 10},
		Columns:    []Column{{ColumnName: "name", Filter: "in:"}},
	}

	plan, err := c.Compose(context.Background(), desc, req)
	require.NoError(t, err)
	assert.Contains(t, plan.DataSQL, "1=0")
}
