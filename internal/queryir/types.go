package queryir

// Expr is a scalar expression.
//
// This is a sealed interface - only types in this package implement it.
//
// Expr types:
//   - Column: table.column reference
//   - Value: literal bound as a query parameter
//   - Ref: reference to a selected field alias
//   - Case: CASE WHEN ... THEN ... ELSE ... END
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Predicate is a boolean condition used in join conditions and WHERE.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Compare: left <op> right
//   - In: left [NOT] IN set
//   - And, Or: conjunction and disjunction
//   - True, False: constants
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Set is the right-hand side of an In predicate.
//
// Set types:
//   - IDs: a literal list of object ids
//   - SubSelect: a single-column sub-query
//   - Union: the union of several single-column sub-queries
type Set interface {
	setNode()
}

// Column references a column. Table is the table name or alias and may be
// empty for columns of a sub-select's own table.
type Column struct {
	Table string
	Name  string
}

func (Column) exprNode() {}

// Value is a literal. V is an int64 or a string and is always bound as a
// parameter, never spliced into the SQL text.
type Value struct {
	V any
}

func (Value) exprNode() {}

// Ref refers to a field selected under Alias, for use in ORDER BY.
type Ref struct {
	Alias string
}

func (Ref) exprNode() {}

// When is one branch of a Case.
type When struct {
	Cond Predicate
	Then Expr
}

// Case evaluates to the Then of the first branch whose Cond holds, or to
// Else. A nil Else yields NULL when no branch matches.
type Case struct {
	Whens []When
	Else  Expr
}

func (Case) exprNode() {}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
)

// Compare is Left Op Right.
type Compare struct {
	Left  Expr
	Op    Op
	Right Expr
}

func (Compare) predicateNode() {}

// In is Left IN Set, or Left NOT IN Set when Negate is set.
type In struct {
	Left   Expr
	Set    Set
	Negate bool
}

func (In) predicateNode() {}

// And holds when every predicate holds. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or holds when any predicate holds. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// True always holds.
type True struct{}

func (True) predicateNode() {}

// False never holds.
type False struct{}

func (False) predicateNode() {}

// IDs is a literal id list.
type IDs []int64

func (IDs) setNode() {}

// SubSelect is SELECT [DISTINCT] Column FROM Table WHERE Where.
type SubSelect struct {
	Distinct bool
	Column   Expr
	Table    string
	Where    Predicate // nil = no filter
}

func (SubSelect) setNode() {}

// Union is the set union of its selects.
type Union struct {
	Selects []SubSelect
}

func (Union) setNode() {}

// Join is an INNER JOIN of Table AS Alias ON On. When Derived is set it
// is joined in place of Table.
type Join struct {
	Table   string
	Derived *Derived
	Alias   string
	On      Predicate
}

// Column names of a Derived table.
const (
	DerivedID     = "id"
	DerivedOrder  = "ord"
	DerivedOrigin = "origin"
)

// Branch selects the rows of Table matching Where into a Derived table,
// projecting ID, Order and Origin onto its columns.
type Branch struct {
	Table  string
	Where  Predicate
	ID     Expr
	Order  Expr
	Origin Expr
}

// Derived is a table of object ids built from the union of its branches.
// Rows are grouped so each id appears once, with the lowest order and
// origin among its rows. With ByOrigin each (id, origin) pair appears
// once instead.
type Derived struct {
	Branches []Branch
	ByOrigin bool
}

// Field is an extra selected expression.
type Field struct {
	Expr  Expr
	Alias string
}

// SortDir is an ORDER BY direction.
type SortDir string

const (
	Asc  SortDir = "ASC"
	Desc SortDir = "DESC"
)

// Order is one ORDER BY term.
type Order struct {
	Expr Expr
	Dir  SortDir
}

// Fragments are the query parts a host query splices in.
//
// A nil Where adds no restriction. A nil OrderBy with PassThroughOrder set
// tells the host to keep its own ORDER BY; a nil OrderBy otherwise leaves
// ordering unspecified.
type Fragments struct {
	Joins            []Join
	Where            Predicate
	Fields           []Field
	GroupBy          []Expr
	OrderBy          []Order
	PassThroughOrder bool
}

// IsEmptyResult reports whether the fragments can never match a row.
func (f Fragments) IsEmptyResult() bool {
	if _, ok := f.Where.(False); ok {
		return true
	}
	for _, j := range f.Joins {
		if _, ok := j.On.(False); ok {
			return true
		}
	}
	return false
}
