package querysql

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"

	"github.com/roach88/mbrel/internal/queryir"
)

// Compiler serializes query fragments for one SQL flavor.
//
// By default values are bound as placeholders and returned in Args, in
// the order they appear in a SELECT (fields, join, where, group by, order
// by). With interpolation the values are inlined and Args is nil, which is
// what hosts that splice raw clause strings need.
type Compiler struct {
	flavor      sqlbuilder.Flavor
	interpolate bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithInterpolation inlines values instead of binding placeholders.
func WithInterpolation() Option {
	return func(c *Compiler) {
		c.interpolate = true
	}
}

// New creates a Compiler for flavor.
func New(flavor sqlbuilder.Flavor, opts ...Option) *Compiler {
	c := &Compiler{flavor: flavor}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Flavor returns the compiler's SQL flavor.
func (c *Compiler) Flavor() sqlbuilder.Flavor {
	return c.flavor
}

// Compiled holds serialized fragments. Empty strings mean the fragment
// adds nothing. Clause keywords (JOIN excepted) are not included.
type Compiled struct {
	Fields           string `json:"fields"`
	Join             string `json:"join"`
	Where            string `json:"where"`
	GroupBy          string `json:"groupby"`
	OrderBy          string `json:"orderby"`
	PassThroughOrder bool   `json:"pass_through_order"`
	Args             []any  `json:"args,omitempty"`

	orderTerms []string
}

// OrderByOpenEnded is OrderBy with the direction of the last term left
// off, for hosts that append their own direction to the clause.
func (c Compiled) OrderByOpenEnded() string {
	if len(c.orderTerms) == 0 {
		return ""
	}
	parts := make([]string, len(c.orderTerms))
	copy(parts, c.orderTerms)
	last := len(parts) - 1
	parts[last] = strings.TrimSuffix(strings.TrimSuffix(parts[last], " "+string(queryir.Asc)), " "+string(queryir.Desc))
	return strings.Join(parts, ", ")
}

// formats are the unresolved parts of a build, sharing one Args.
type formats struct {
	fields, join, where, groupBy, orderBy string
	orderTerms                            []string
}

// Compile serializes f.
func (c *Compiler) Compile(f queryir.Fragments) (Compiled, error) {
	if err := queryir.Validate(f).Err(); err != nil {
		return Compiled{}, err
	}

	r := &renderer{flavor: c.flavor, args: &sqlbuilder.Args{Flavor: c.flavor}}
	fm, err := r.fragments(f)
	if err != nil {
		return Compiled{}, err
	}

	out := Compiled{PassThroughOrder: f.PassThroughOrder}
	parts := []struct {
		format string
		dst    *string
	}{
		{fm.fields, &out.Fields},
		{fm.join, &out.Join},
		{fm.where, &out.Where},
		{fm.groupBy, &out.GroupBy},
		{fm.orderBy, &out.OrderBy},
	}

	var values []any
	for _, part := range parts {
		if part.format == "" {
			continue
		}
		if c.interpolate {
			sql, vals := r.args.CompileWithFlavor(part.format, c.flavor)
			inlined, err := c.inline(sql, vals)
			if err != nil {
				return Compiled{}, err
			}
			*part.dst = inlined
			continue
		}
		*part.dst, values = r.args.CompileWithFlavor(part.format, c.flavor, values...)
	}
	out.Args = values

	for _, term := range fm.orderTerms {
		sql, vals := r.args.CompileWithFlavor(term, c.flavor)
		if len(vals) > 0 {
			inlined, err := c.inline(sql, vals)
			if err != nil {
				return Compiled{}, err
			}
			sql = inlined
		}
		out.orderTerms = append(out.orderTerms, sql)
	}

	return out, nil
}

// Source is the FROM of a standalone SELECT: a table name or a
// parenthesized sub-query, its alias, and its object id column.
type Source struct {
	SQL      string
	Alias    string
	IDColumn string
}

// IDAlias is the name the object id is selected under by Select.
const IDAlias = "ID"

// Select serializes a complete statement selecting the object ids of src
// restricted by f, together with f's fields.
//
// When f.PassThroughOrder is set the rows are ordered by object id.
func (c *Compiler) Select(src Source, f queryir.Fragments) (string, []any, error) {
	if src.SQL == "" || src.Alias == "" || src.IDColumn == "" {
		return "", nil, fmt.Errorf("select source requires SQL, alias and id column")
	}
	if err := queryir.Validate(f).Err(); err != nil {
		return "", nil, err
	}

	r := &renderer{flavor: c.flavor, args: &sqlbuilder.Args{Flavor: c.flavor}}
	fm, err := r.fragments(f)
	if err != nil {
		return "", nil, err
	}

	idCol := r.column(queryir.Col(src.Alias, src.IDColumn))

	var buf strings.Builder
	buf.WriteString("SELECT ")
	buf.WriteString(idCol + " AS " + r.quote(IDAlias))
	if fm.fields != "" {
		buf.WriteString(", " + fm.fields)
	}
	buf.WriteString(" FROM " + escape(src.SQL) + " AS " + src.Alias)
	if fm.join != "" {
		buf.WriteString(" " + fm.join)
	}
	if fm.where != "" {
		buf.WriteString(" WHERE " + fm.where)
	}
	if fm.groupBy != "" {
		buf.WriteString(" GROUP BY " + fm.groupBy)
	}
	switch {
	case fm.orderBy != "":
		buf.WriteString(" ORDER BY " + fm.orderBy)
	case f.PassThroughOrder:
		buf.WriteString(" ORDER BY " + idCol + " ASC")
	}

	sql, values := r.args.CompileWithFlavor(buf.String(), c.flavor)
	if c.interpolate {
		inlined, err := c.inline(sql, values)
		return inlined, nil, err
	}
	return sql, values, nil
}

func (c *Compiler) inline(sql string, values []any) (string, error) {
	if len(values) == 0 {
		return sql, nil
	}
	inlined, err := c.flavor.Interpolate(sql, values)
	if err != nil {
		return "", fmt.Errorf("interpolate %s values: %w", c.flavor, err)
	}
	return inlined, nil
}

// escape protects literal dollar signs from the Args compiler.
func escape(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

// renderer turns IR nodes into Args format strings.
type renderer struct {
	flavor sqlbuilder.Flavor
	args   *sqlbuilder.Args
}

func (r *renderer) quote(name string) string {
	return escape(r.flavor.Quote(name))
}

func (r *renderer) column(col queryir.Column) string {
	if col.Table == "" {
		return r.quote(col.Name)
	}
	return escape(col.Table) + "." + r.quote(col.Name)
}

func (r *renderer) fragments(f queryir.Fragments) (formats, error) {
	var fm formats

	fields := make([]string, 0, len(f.Fields))
	for _, fld := range f.Fields {
		e, err := r.expr(fld.Expr)
		if err != nil {
			return formats{}, fmt.Errorf("field %s: %w", fld.Alias, err)
		}
		fields = append(fields, e+" AS "+r.quote(fld.Alias))
	}
	fm.fields = strings.Join(fields, ", ")

	joins := make([]string, 0, len(f.Joins))
	for _, j := range f.Joins {
		on, err := r.predicate(j.On)
		if err != nil {
			return formats{}, fmt.Errorf("join %s: %w", j.Alias, err)
		}
		source := escape(j.Table)
		if j.Derived != nil {
			sub, err := r.derived(*j.Derived)
			if err != nil {
				return formats{}, fmt.Errorf("join %s: %w", j.Alias, err)
			}
			source = "(" + sub + ")"
		}
		joins = append(joins, fmt.Sprintf("INNER JOIN %s AS %s ON %s", source, escape(j.Alias), on))
	}
	fm.join = strings.Join(joins, " ")

	if f.Where != nil {
		where, err := r.predicate(f.Where)
		if err != nil {
			return formats{}, fmt.Errorf("where: %w", err)
		}
		fm.where = where
	}

	groups := make([]string, 0, len(f.GroupBy))
	for _, g := range f.GroupBy {
		e, err := r.expr(g)
		if err != nil {
			return formats{}, fmt.Errorf("group by: %w", err)
		}
		groups = append(groups, e)
	}
	fm.groupBy = strings.Join(groups, ", ")

	for _, o := range f.OrderBy {
		e, err := r.expr(o.Expr)
		if err != nil {
			return formats{}, fmt.Errorf("order by: %w", err)
		}
		fm.orderTerms = append(fm.orderTerms, e+" "+string(o.Dir))
	}
	fm.orderBy = strings.Join(fm.orderTerms, ", ")

	return fm, nil
}

func (r *renderer) expr(e queryir.Expr) (string, error) {
	switch x := e.(type) {
	case queryir.Column:
		return r.column(x), nil
	case queryir.Value:
		return r.args.Add(x.V), nil
	case queryir.Ref:
		return r.quote(x.Alias), nil
	case queryir.Case:
		var buf strings.Builder
		buf.WriteString("CASE")
		for _, w := range x.Whens {
			cond, err := r.predicate(w.Cond)
			if err != nil {
				return "", err
			}
			then, err := r.expr(w.Then)
			if err != nil {
				return "", err
			}
			buf.WriteString(" WHEN " + cond + " THEN " + then)
		}
		if x.Else != nil {
			els, err := r.expr(x.Else)
			if err != nil {
				return "", err
			}
			buf.WriteString(" ELSE " + els)
		}
		buf.WriteString(" END")
		return buf.String(), nil
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (r *renderer) predicate(p queryir.Predicate) (string, error) {
	switch x := p.(type) {
	case queryir.True:
		return "1 = 1", nil
	case queryir.False:
		return "1 = 0", nil
	case queryir.Compare:
		left, err := r.expr(x.Left)
		if err != nil {
			return "", err
		}
		right, err := r.expr(x.Right)
		if err != nil {
			return "", err
		}
		return left + " " + string(x.Op) + " " + right, nil
	case queryir.In:
		return r.in(x)
	case queryir.And:
		return r.junction(x.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return r.junction(x.Predicates, " OR ", "1 = 0")
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (r *renderer) junction(preds []queryir.Predicate, sep, empty string) (string, error) {
	if len(preds) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		s, err := r.predicate(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (r *renderer) in(x queryir.In) (string, error) {
	left, err := r.expr(x.Left)
	if err != nil {
		return "", err
	}
	op := " IN "
	if x.Negate {
		op = " NOT IN "
	}

	switch set := x.Set.(type) {
	case queryir.IDs:
		if len(set) == 0 {
			// Validate rejects this; an empty list must never render as "IN ()".
			return "", fmt.Errorf("empty id list")
		}
		return left + op + "(" + r.args.Add(sqlbuilder.List([]int64(set))) + ")", nil
	case queryir.SubSelect:
		sub, err := r.subSelect(set)
		if err != nil {
			return "", err
		}
		return left + op + "(" + sub + ")", nil
	case queryir.Union:
		subs := make([]string, 0, len(set.Selects))
		for _, sel := range set.Selects {
			sub, err := r.subSelect(sel)
			if err != nil {
				return "", err
			}
			subs = append(subs, sub)
		}
		return left + op + "(" + strings.Join(subs, " UNION ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported set type: %T", x.Set)
	}
}

// derivedAlias names the union of a derived table's branches.
const derivedAlias = "edges"

// derived renders d as a grouped select over the UNION ALL of its
// branches.
func (r *renderer) derived(d queryir.Derived) (string, error) {
	branches := make([]string, 0, len(d.Branches))
	for i, br := range d.Branches {
		id, err := r.expr(br.ID)
		if err != nil {
			return "", fmt.Errorf("branch %d id: %w", i, err)
		}
		order, err := r.expr(br.Order)
		if err != nil {
			return "", fmt.Errorf("branch %d order: %w", i, err)
		}
		origin, err := r.expr(br.Origin)
		if err != nil {
			return "", fmt.Errorf("branch %d origin: %w", i, err)
		}
		sql := fmt.Sprintf("SELECT %s AS %s, %s AS %s, %s AS %s FROM %s",
			id, r.quote(queryir.DerivedID),
			order, r.quote(queryir.DerivedOrder),
			origin, r.quote(queryir.DerivedOrigin),
			escape(br.Table))
		if br.Where != nil {
			where, err := r.predicate(br.Where)
			if err != nil {
				return "", fmt.Errorf("branch %d where: %w", i, err)
			}
			sql += " WHERE " + where
		}
		branches = append(branches, sql)
	}

	id := r.column(queryir.Col(derivedAlias, queryir.DerivedID))
	order := r.column(queryir.Col(derivedAlias, queryir.DerivedOrder))
	origin := r.column(queryir.Col(derivedAlias, queryir.DerivedOrigin))

	sql := fmt.Sprintf("SELECT %s AS %s, MIN(%s) AS %s, ", id, r.quote(queryir.DerivedID), order, r.quote(queryir.DerivedOrder))
	group := id
	if d.ByOrigin {
		sql += origin + " AS " + r.quote(queryir.DerivedOrigin)
		group += ", " + origin
	} else {
		sql += "MIN(" + origin + ") AS " + r.quote(queryir.DerivedOrigin)
	}
	sql += " FROM (" + strings.Join(branches, " UNION ALL ") + ") AS " + derivedAlias + " GROUP BY " + group
	return sql, nil
}

func (r *renderer) subSelect(s queryir.SubSelect) (string, error) {
	col, err := r.expr(s.Column)
	if err != nil {
		return "", err
	}
	sql := "SELECT "
	if s.Distinct {
		sql += "DISTINCT "
	}
	sql += col + " FROM " + escape(s.Table)
	if s.Where != nil {
		where, err := r.predicate(s.Where)
		if err != nil {
			return "", err
		}
		sql += " WHERE " + where
	}
	return sql, nil
}
