package usqf

import (
	"github.com/omniledger/usqf/pkg/usqferr"
)

// MaxPageSize is the MAX_PAGE bound from spec §3's pagination invariant.
const MaxPageSize = 500

// Pagination is the per-call paging request, spec §3.
type Pagination struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// SearchFilter is the optional global-search portion of a request, spec §3.
type SearchFilter struct {
	SearchText string   `json:"searchText,omitempty"`
	Columns    []string `json:"columns,omitempty"`
}

// Column is one client-supplied column spec: an optional filter expression
// (spec §4.2 grammar) and an optional sort direction.
type Column struct {
	ColumnName string `json:"columnName"`
	Filter     string `json:"filter,omitempty"`
	Sort       string `json:"sort,omitempty"`
}

// DataTableRequest is the per-call, ephemeral request spec §3 defines and
// spec §6 shows as the request envelope.
type DataTableRequest struct {
	Pagination   Pagination   `json:"pagination"`
	SearchFilter SearchFilter `json:"searchFilter"`
	Columns      []Column     `json:"columns"`
}

// ValidatePagination enforces spec §3's `{page >= 0, size in [1, MAX_PAGE]}`.
func (r *DataTableRequest) ValidatePagination() error {
	if r.Pagination.Page < 0 {
		return usqferr.NewValidation("page must be >= 0", usqferr.FieldValidation{
			Field: "pagination.page", Message: "must be >= 0",
		})
	}

	if r.Pagination.Size < 1 || r.Pagination.Size > MaxPageSize {
		return usqferr.NewValidation("size must be between 1 and the max page size", usqferr.FieldValidation{
			Field: "pagination.size", Message: "must be between 1 and 500",
		})
	}

	return nil
}

// SortDirection is the direction half of a `field:direction` sort pair.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// ParseSortDirection parses the case-insensitive `asc`/`desc` tokens spec §3
// and §6 use.
func ParseSortDirection(s string) (SortDirection, bool) {
	switch toLower(s) {
	case "asc":
		return SortAsc, true
	case "desc":
		return SortDesc, true
	default:
		return "", false
	}
}

func toLower(s string) string {
	b := make([]byte, len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}

		b[i] = c
	}

	return string(b)
}

// SortField is one entry of a descriptor's ordered DefaultSortFields list.
type SortField struct {
	Field     string
	Direction SortDirection
}
