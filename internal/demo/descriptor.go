package demo

import (
	"fmt"
	"reflect"

	"github.com/omniledger/usqf/pkg/usqf"
)

// NewUserDescriptor builds the descriptor for User, grounded on the
// literal shape of spec §8's worked scenarios (role.name alias, a
// company.companyName subquery field, fetch-joined role, default sort by
// createdAt then name as tie-break).
func NewUserDescriptor() *usqf.SearchDescriptor {
	return &usqf.SearchDescriptor{
		Entity:    usqf.EntityRef{Name: "user", GoType: reflect.TypeOf(User{})},
		RootAlias: "e",

		Searchable: []string{"name", "email", "active", "createdAt", "role.name"},
		Sortable:   []string{"name", "email", "createdAt", "role.name"},

		DefaultSearchColumns: []string{"name", "email"},
		DefaultSortFields: []usqf.SortField{
			{Field: "createdAt", Direction: usqf.SortDesc},
			{Field: "name", Direction: usqf.SortAsc},
		},

		Aliases: map[string]string{
			"roleName":    "role.name",
			"companyName": "company.companyName",
		},

		FetchJoins: []string{"role"},

		SubqueryFields: map[string]usqf.SubqueryTemplate{
			"company.companyName": {
				Build: func(bindParam string) string {
					return fmt.Sprintf(
						"EXISTS (SELECT 1 FROM company c WHERE c.id = e.companyId AND LOWER(c.companyName) LIKE LOWER(CONCAT('%%',:%s,'%%')))",
						bindParam)
				},
			},
		},
	}
}
