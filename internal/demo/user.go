// Package demo wires the framework end to end against a small illustrative
// domain (users, their role, their company), the way account.postgresql.go
// exercises mpostgres/squirrel for the teacher's ledger domain.
package demo

import (
	"time"

	"github.com/google/uuid"
)

// User is the root entity the demo descriptor searches over. Its Go shape
// backs the one-time field-type walk (spec §4.4) that usqf.SearchDescriptor
// runs at registration time.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	Role      *Role     `json:"role"`
}

// Role is the user's fetch-joined association.
type Role struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Company is referenced only through a subquery field (company.companyName,
// aliased as companyName),
// never fetch-joined — it exercises the subquery-vs-join branch of the
// composer (spec §4.3 step 4/5, §8's subquery-optimization scenario).
type Company struct {
	ID          uuid.UUID `json:"id"`
	CompanyName string    `json:"companyName"`
}
