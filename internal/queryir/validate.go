package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists structural problems found in a Fragments value.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each defect, prefixed with its location
	// (e.g. "join[0].on: nil predicate").
	Problems []string
}

// Err returns the problems as one error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query fragments: %s", strings.Join(r.Problems, "; "))
}

// Validate checks that f can be serialized:
//  1. Every join names a table, an alias and a non-nil condition
//  2. No In predicate carries an empty IDs list
//  3. Columns, refs and field aliases are named
//  4. Sub-selects name a table and a column
//  5. Case expressions have at least one branch
//  6. Derived joins have branches, each naming a table and its columns
//
// Validate is a pure function with no side effects.
func Validate(f Fragments) ValidationResult {
	v := &validator{problems: []string{}}

	for i, j := range f.Joins {
		at := fmt.Sprintf("join[%d]", i)
		switch {
		case j.Derived != nil:
			v.derived(at+".derived", *j.Derived)
		case j.Table == "":
			v.add(at, "missing table")
		}
		if j.Alias == "" {
			v.add(at, "missing alias")
		}
		if j.On == nil {
			v.add(at+".on", "nil predicate")
		} else {
			v.predicate(at+".on", j.On)
		}
	}
	if f.Where != nil {
		v.predicate("where", f.Where)
	}
	for i, fld := range f.Fields {
		at := fmt.Sprintf("fields[%d]", i)
		if fld.Alias == "" {
			v.add(at, "missing alias")
		}
		v.expr(at, fld.Expr)
	}
	for i, g := range f.GroupBy {
		v.expr(fmt.Sprintf("group_by[%d]", i), g)
	}
	for i, o := range f.OrderBy {
		at := fmt.Sprintf("order_by[%d]", i)
		if o.Dir != Asc && o.Dir != Desc {
			v.add(at, fmt.Sprintf("invalid direction %q", o.Dir))
		}
		v.expr(at, o.Expr)
	}

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) add(at, msg string) {
	v.problems = append(v.problems, at+": "+msg)
}

func (v *validator) expr(at string, e Expr) {
	switch x := e.(type) {
	case nil:
		v.add(at, "nil expression")
	case Column:
		if x.Name == "" {
			v.add(at, "column without name")
		}
	case Value:
		switch x.V.(type) {
		case int64, string:
		default:
			v.add(at, fmt.Sprintf("unsupported literal %T", x.V))
		}
	case Ref:
		if x.Alias == "" {
			v.add(at, "ref without alias")
		}
	case Case:
		if len(x.Whens) == 0 {
			v.add(at, "case without branches")
		}
		for i, w := range x.Whens {
			wat := fmt.Sprintf("%s.when[%d]", at, i)
			v.predicate(wat, w.Cond)
			v.expr(wat+".then", w.Then)
		}
		if x.Else != nil {
			v.expr(at+".else", x.Else)
		}
	default:
		v.add(at, fmt.Sprintf("unknown expression type %T", e))
	}
}

func (v *validator) predicate(at string, p Predicate) {
	switch x := p.(type) {
	case nil:
		v.add(at, "nil predicate")
	case Compare:
		if x.Op != OpEq && x.Op != OpNe {
			v.add(at, fmt.Sprintf("invalid operator %q", x.Op))
		}
		v.expr(at+".left", x.Left)
		v.expr(at+".right", x.Right)
	case In:
		v.expr(at+".left", x.Left)
		v.set(at+".set", x.Set)
	case And:
		for i, sub := range x.Predicates {
			v.predicate(fmt.Sprintf("%s.and[%d]", at, i), sub)
		}
	case Or:
		for i, sub := range x.Predicates {
			v.predicate(fmt.Sprintf("%s.or[%d]", at, i), sub)
		}
	case True, False:
	default:
		v.add(at, fmt.Sprintf("unknown predicate type %T", p))
	}
}

func (v *validator) set(at string, s Set) {
	switch x := s.(type) {
	case nil:
		v.add(at, "nil set")
	case IDs:
		if len(x) == 0 {
			v.add(at, "empty id list")
		}
		for _, id := range x {
			if id < 0 {
				v.add(at, fmt.Sprintf("negative id %d", id))
				break
			}
		}
	case SubSelect:
		v.subSelect(at, x)
	case Union:
		if len(x.Selects) == 0 {
			v.add(at, "empty union")
		}
		for i, sel := range x.Selects {
			v.subSelect(fmt.Sprintf("%s.union[%d]", at, i), sel)
		}
	default:
		v.add(at, fmt.Sprintf("unknown set type %T", s))
	}
}

func (v *validator) derived(at string, d Derived) {
	if len(d.Branches) == 0 {
		v.add(at, "no branches")
	}
	for i, br := range d.Branches {
		bat := fmt.Sprintf("%s.branch[%d]", at, i)
		if br.Table == "" {
			v.add(bat, "missing table")
		}
		v.expr(bat+".id", br.ID)
		v.expr(bat+".order", br.Order)
		v.expr(bat+".origin", br.Origin)
		if br.Where != nil {
			v.predicate(bat+".where", br.Where)
		}
	}
}

func (v *validator) subSelect(at string, s SubSelect) {
	if s.Table == "" {
		v.add(at, "sub-select without table")
	}
	v.expr(at+".column", s.Column)
	if s.Where != nil {
		v.predicate(at+".where", s.Where)
	}
}
