package clause

import (
	"errors"
	"fmt"

	"github.com/roach88/mbrel/internal/ir"
)

var (
	// ErrEmptyQuery is returned for a query with no clauses.
	ErrEmptyQuery = errors.New("query has no clauses")

	// ErrSiblingCompound is returned when a sibling clause is combined
	// with other clauses.
	ErrSiblingCompound = errors.New("sibling clauses cannot be combined with other clauses")

	// ErrNoResolver is returned when a compound AND query needs
	// pre-resolution and the builder has no Resolver.
	ErrNoResolver = errors.New("compound AND query requires a resolver")
)

// HostMismatchError reports a clause whose results are not the objects the
// host query selects.
type HostMismatchError struct {
	Clause   string
	Host     ir.ObjectType
	Selected ir.ObjectType
}

func (e *HostMismatchError) Error() string {
	return fmt.Sprintf("clause %q selects %s objects but the host query selects %s objects",
		e.Clause, e.Selected, e.Host)
}
