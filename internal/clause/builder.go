package clause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/queryir"
)

// Defaults for the edge table and the names the builder selects.
const (
	DefaultTable = "mb_relationships"
	DefaultAlias = "mbr"

	// OriginField carries the anchor id (or, for siblings, the shared
	// counterpart id) that connected each result row.
	OriginField = "mb_origin"

	// OrderField carries the effective order of reciprocal and mixed
	// compound results.
	OrderField = "mb_order"
)

// Host describes the query the fragments are spliced into.
type Host struct {
	// Column is the host's object id column, e.g. wp_posts.ID.
	Column queryir.Column

	// Type is the object type the host selects. When set, every clause
	// must select objects of this type.
	Type ir.ObjectType

	// Derived joins the edges as a table keyed by object id, so each host
	// row matches at most once without a GROUP BY. Set it for hosts that
	// have no GROUP BY slot.
	Derived bool
}

// Options tune one build.
type Options struct {
	// PassThroughOrder keeps the host's own ORDER BY.
	PassThroughOrder bool

	// KeepOrigins keeps one row per (object, origin) pair instead of one
	// row per object. Set it when the rows will be distributed back onto
	// several anchors.
	KeepOrigins bool
}

// Resolver turns one clause into the ids of the objects it selects. It is
// used to pre-resolve the non-lead clauses of a compound AND query.
type Resolver interface {
	Resolve(ctx context.Context, c ir.Clause) ([]int64, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, c ir.Clause) ([]int64, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, c ir.Clause) ([]int64, error) {
	return f(ctx, c)
}

// Builder turns canonical queries into query fragments.
type Builder struct {
	table    string
	alias    string
	resolver Resolver
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithTable sets the edge table name.
func WithTable(table string) Option {
	return func(b *Builder) {
		if table != "" {
			b.table = table
		}
	}
}

// WithAlias sets the alias the edge table is joined under.
func WithAlias(alias string) Option {
	return func(b *Builder) {
		if alias != "" {
			b.alias = alias
		}
	}
}

// WithResolver sets the resolver used for compound AND queries.
func WithResolver(r Resolver) Option {
	return func(b *Builder) {
		b.resolver = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		table:  DefaultTable,
		alias:  DefaultAlias,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Table returns the edge table name.
func (b *Builder) Table() string {
	return b.table
}

// Alias returns the edge table alias.
func (b *Builder) Alias() string {
	return b.alias
}

// Build returns the fragments restricting host to the objects selected by q.
func (b *Builder) Build(ctx context.Context, q ir.Query, host Host, opts Options) (queryir.Fragments, error) {
	if len(q.Clauses) == 0 {
		return queryir.Fragments{}, ErrEmptyQuery
	}
	if host.Column.Name == "" {
		return queryir.Fragments{}, errors.New("host id column is required")
	}
	for _, c := range q.Clauses {
		if host.Type != "" && c.ResultType() != host.Type {
			return queryir.Fragments{}, &HostMismatchError{Clause: c.ID, Host: host.Type, Selected: c.ResultType()}
		}
		if c.Sibling && q.IsCompound() {
			return queryir.Fragments{}, fmt.Errorf("clause %q: %w", c.ID, ErrSiblingCompound)
		}
	}

	var (
		frag     queryir.Fragments
		strategy string
		err      error
	)
	switch {
	case q.Clauses[0].Sibling:
		frag, strategy = b.sibling(q.Clauses[0], host, opts), "sibling"
	case q.IsCompound() && q.Relation == ir.RelationAnd:
		frag, err = b.intersect(ctx, q.Clauses, host, opts)
		strategy = "intersect"
	default:
		frag, strategy = b.joined(q.Clauses, host, opts), "joined"
	}
	if err != nil {
		return queryir.Fragments{}, err
	}

	b.logger.Debug("relationship clauses built",
		"clauses", len(q.Clauses),
		"relation", q.Relation,
		"strategy", strategy,
		"host", host.Column.Table+"."+host.Column.Name,
		"empty", frag.IsEmptyResult())

	return frag, nil
}

// col references a column of the joined edge table.
func (b *Builder) col(name string) queryir.Column {
	return queryir.Col(b.alias, name)
}

// predicate is the join condition selecting the host rows of one clause.
func (b *Builder) predicate(c ir.Clause, host queryir.Column) queryir.Predicate {
	typeMatch := queryir.Eq(b.col("type"), queryir.Value{V: c.ID})

	if c.Reciprocal {
		return queryir.AndOf(
			typeMatch,
			queryir.OrOf(
				queryir.AndOf(queryir.Eq(b.col(ir.From.Column()), host), queryir.InIDs(b.col(ir.To.Column()), c.Items)),
				queryir.AndOf(queryir.Eq(b.col(ir.To.Column()), host), queryir.InIDs(b.col(ir.From.Column()), c.Items)),
			),
		)
	}

	return queryir.AndOf(
		queryir.Eq(b.col(c.Target().Column()), host),
		typeMatch,
		queryir.InIDs(b.col(c.Source().Column()), c.Items),
	)
}

// originExpr is the anchor id that matched a row of clause c.
func (b *Builder) originExpr(c ir.Clause, host queryir.Column) queryir.Expr {
	if c.Reciprocal {
		return queryir.Case{
			Whens: []queryir.When{{Cond: queryir.Eq(b.col(ir.From.Column()), host), Then: b.col(ir.To.Column())}},
			Else:  b.col(ir.From.Column()),
		}
	}
	return b.col(c.Source().Column())
}

// orderExpr is the stored position of a row of clause c. For reciprocal
// clauses the anchor may sit in either column, so the position is read
// from the anchor's side of the edge.
func (b *Builder) orderExpr(c ir.Clause, host queryir.Column) queryir.Expr {
	if c.Reciprocal {
		return b.reciprocalOrder(host)
	}
	return b.col(c.Source().OrderColumn())
}

func (b *Builder) reciprocalOrder(host queryir.Column) queryir.Expr {
	return queryir.Case{
		Whens: []queryir.When{{Cond: queryir.Eq(b.col(ir.To.Column()), host), Then: b.col(ir.From.OrderColumn())}},
		Else:  b.col(ir.To.OrderColumn()),
	}
}

// joined builds clauses as one join whose condition disjoins the clause
// predicates. A single clause is the one-operand case.
func (b *Builder) joined(clauses []ir.Clause, host Host, opts Options) queryir.Fragments {
	if host.Derived {
		var branches []queryir.Branch
		for _, c := range clauses {
			branches = append(branches, b.branches(c)...)
		}
		return b.derivedJoin(branches, host, opts)
	}

	hostCol := host.Column

	preds := make([]queryir.Predicate, len(clauses))
	for i, c := range clauses {
		preds[i] = b.predicate(c, hostCol)
	}
	on := queryir.OrOf(preds...)

	frag := queryir.Fragments{
		Joins: []queryir.Join{{Table: b.table, Alias: b.alias, On: on}},
	}
	if queryir.IsFalse(on) {
		frag.Where = queryir.False{}
	}

	origin, order, computed := b.markers(clauses, preds, hostCol)
	frag.Fields = []queryir.Field{{Expr: origin, Alias: OriginField}}
	if computed {
		frag.Fields = append(frag.Fields, queryir.Field{Expr: order, Alias: OrderField})
	}

	if opts.PassThroughOrder {
		frag.PassThroughOrder = true
	} else if computed {
		frag.OrderBy = []queryir.Order{
			{Expr: queryir.Ref{Alias: OrderField}, Dir: queryir.Asc},
			{Expr: hostCol, Dir: queryir.Asc},
		}
	} else {
		frag.OrderBy = []queryir.Order{{Expr: order, Dir: queryir.Asc}}
	}

	frag.GroupBy = b.groupBy(hostCol, origin, opts)
	return frag
}

// markers returns the origin and order expressions for a joined build.
// computed reports whether the order needs its own selected field.
func (b *Builder) markers(clauses []ir.Clause, preds []queryir.Predicate, host queryir.Column) (origin, order queryir.Expr, computed bool) {
	live := make([]int, 0, len(clauses))
	for i := range clauses {
		if !queryir.IsFalse(preds[i]) {
			live = append(live, i)
		}
	}
	if len(live) == 0 {
		live = []int{0}
	}

	if len(live) == 1 {
		c := clauses[live[0]]
		return b.originExpr(c, host), b.orderExpr(c, host), c.Reciprocal
	}

	uniform := true
	for _, i := range live {
		c := clauses[i]
		if c.Reciprocal || c.Direction != clauses[live[0]].Direction {
			uniform = false
			break
		}
	}
	if uniform {
		c := clauses[live[0]]
		return b.originExpr(c, host), b.orderExpr(c, host), false
	}

	originCase := queryir.Case{}
	orderCase := queryir.Case{}
	for _, i := range live {
		originCase.Whens = append(originCase.Whens, queryir.When{Cond: preds[i], Then: b.originExpr(clauses[i], host)})
		orderCase.Whens = append(orderCase.Whens, queryir.When{Cond: preds[i], Then: b.orderExpr(clauses[i], host)})
	}
	return originCase, orderCase, true
}

// groupBy deduplicates host rows. With KeepOrigins a row survives per
// origin. A reciprocal origin depends on which end the host sits on, so it
// is grouped through its selected alias; that also folds a pair stored in
// both orientations into one row.
func (b *Builder) groupBy(host queryir.Column, origin queryir.Expr, opts Options) []queryir.Expr {
	if !opts.KeepOrigins {
		return []queryir.Expr{host}
	}
	if col, ok := origin.(queryir.Column); ok {
		return []queryir.Expr{host, col}
	}
	return []queryir.Expr{host, queryir.Ref{Alias: OriginField}}
}

// intersect joins the lead clause in place and restricts the host to the
// intersection of the remaining clauses' pre-resolved ids.
func (b *Builder) intersect(ctx context.Context, clauses []ir.Clause, host Host, opts Options) (queryir.Fragments, error) {
	if b.resolver == nil {
		return queryir.Fragments{}, ErrNoResolver
	}

	frag := b.joined(clauses[:1], host, opts)

	var ids []int64
	for i, c := range clauses[1:] {
		if c.IsEmpty() {
			ids = nil
			break
		}
		got, err := b.resolver.Resolve(ctx, c)
		if err != nil {
			return queryir.Fragments{}, fmt.Errorf("resolve clause %q: %w", c.ID, err)
		}
		if i == 0 {
			ids = unique(got)
		} else {
			ids = intersectIDs(ids, got)
		}
		if len(ids) == 0 {
			break
		}
	}

	frag.Where = queryir.AndOf(frag.Where, queryir.InIDs(host.Column, ids))
	return frag, nil
}

// sibling builds a two-hop query: objects sharing a counterpart with the
// anchors, excluding the anchors.
func (b *Builder) sibling(c ir.Clause, host Host, opts Options) queryir.Fragments {
	if host.Derived {
		frag := b.derivedJoin(b.siblingBranches(c), host, opts)
		if c.IsEmpty() {
			frag.Where = queryir.False{}
		}
		return frag
	}
	if c.Reciprocal {
		return b.reciprocalSibling(c, host, opts)
	}

	hostCol := host.Column
	src, tgt := c.Source(), c.Target()

	counterparts := queryir.SubSelect{
		Distinct: true,
		Column:   queryir.Col("", tgt.Column()),
		Table:    b.table,
		Where: queryir.AndOf(
			queryir.Eq(queryir.Col("", "type"), queryir.Value{V: c.ID}),
			queryir.InIDs(queryir.Col("", src.Column()), c.Items),
		),
	}

	// The anchor and target roles swap: host rows sit in the anchor
	// column and the counterparts in the target column.
	frag := queryir.Fragments{
		Joins: []queryir.Join{{Table: b.table, Alias: b.alias, On: queryir.Eq(b.col(src.Column()), hostCol)}},
		Fields: []queryir.Field{
			{Expr: b.col(tgt.Column()), Alias: OriginField},
		},
	}

	if c.IsEmpty() {
		frag.Where = queryir.False{}
	} else {
		frag.Where = queryir.AndOf(
			queryir.Eq(b.col("type"), queryir.Value{V: c.ID}),
			queryir.InSet(b.col(tgt.Column()), counterparts),
			queryir.NotInIDs(b.col(src.Column()), c.Items),
		)
	}

	if opts.PassThroughOrder {
		frag.PassThroughOrder = true
	} else {
		frag.OrderBy = []queryir.Order{{Expr: b.col(tgt.OrderColumn()), Dir: queryir.Asc}}
	}

	frag.GroupBy = []queryir.Expr{hostCol}
	if opts.KeepOrigins {
		frag.GroupBy = append(frag.GroupBy, b.col(tgt.Column()))
	}
	return frag
}

// reciprocalSibling is sibling for relationships whose edges may store
// the anchor in either column.
func (b *Builder) reciprocalSibling(c ir.Clause, host Host, opts Options) queryir.Fragments {
	hostCol := host.Column
	typeMatch := queryir.Eq(queryir.Col("", "type"), queryir.Value{V: c.ID})

	counterparts := queryir.Union{Selects: []queryir.SubSelect{
		{
			Column: queryir.Col("", ir.To.Column()),
			Table:  b.table,
			Where:  queryir.AndOf(typeMatch, queryir.InIDs(queryir.Col("", ir.From.Column()), c.Items)),
		},
		{
			Column: queryir.Col("", ir.From.Column()),
			Table:  b.table,
			Where:  queryir.AndOf(typeMatch, queryir.InIDs(queryir.Col("", ir.To.Column()), c.Items)),
		},
	}}

	on := queryir.AndOf(
		queryir.Eq(b.col("type"), queryir.Value{V: c.ID}),
		queryir.OrOf(
			queryir.AndOf(queryir.Eq(b.col(ir.From.Column()), hostCol), queryir.InSet(b.col(ir.To.Column()), counterparts)),
			queryir.AndOf(queryir.Eq(b.col(ir.To.Column()), hostCol), queryir.InSet(b.col(ir.From.Column()), counterparts)),
		),
	)

	frag := queryir.Fragments{
		Joins: []queryir.Join{{Table: b.table, Alias: b.alias, On: on}},
		Fields: []queryir.Field{
			{Expr: b.originExpr(c, hostCol), Alias: OriginField},
			{Expr: b.reciprocalOrder(hostCol), Alias: OrderField},
		},
	}

	if c.IsEmpty() {
		frag.Where = queryir.False{}
	} else {
		frag.Where = queryir.NotInIDs(hostCol, c.Items)
	}

	if opts.PassThroughOrder {
		frag.PassThroughOrder = true
	} else {
		frag.OrderBy = []queryir.Order{
			{Expr: queryir.Ref{Alias: OrderField}, Dir: queryir.Asc},
			{Expr: hostCol, Dir: queryir.Asc},
		}
	}

	frag.GroupBy = b.groupBy(hostCol, frag.Fields[0].Expr, opts)
	return frag
}

// ends lists the (anchor, target) column pairs an edge of c can match
// through. Reciprocal edges may store the anchor on either side.
func ends(c ir.Clause) [][2]ir.Direction {
	if c.Reciprocal {
		return [][2]ir.Direction{{ir.From, ir.To}, {ir.To, ir.From}}
	}
	return [][2]ir.Direction{{c.Source(), c.Target()}}
}

// branches selects the edges of c keyed by the object each one reaches.
func (b *Builder) branches(c ir.Clause) []queryir.Branch {
	typeMatch := queryir.Eq(queryir.Col("", "type"), queryir.Value{V: c.ID})

	var out []queryir.Branch
	for _, e := range ends(c) {
		anchor, target := e[0], e[1]
		out = append(out, queryir.Branch{
			Table:  b.table,
			Where:  queryir.AndOf(typeMatch, queryir.InIDs(queryir.Col("", anchor.Column()), c.Items)),
			ID:     queryir.Col("", target.Column()),
			Order:  queryir.Col("", anchor.OrderColumn()),
			Origin: queryir.Col("", anchor.Column()),
		})
	}
	return out
}

// siblingBranches selects the edges from the counterparts of c's anchors
// back to other objects, keyed by those objects.
func (b *Builder) siblingBranches(c ir.Clause) []queryir.Branch {
	typeMatch := queryir.Eq(queryir.Col("", "type"), queryir.Value{V: c.ID})

	var counterparts queryir.Set
	if c.Reciprocal {
		counterparts = queryir.Union{Selects: []queryir.SubSelect{
			{Column: queryir.Col("", ir.To.Column()), Table: b.table, Where: queryir.AndOf(typeMatch, queryir.InIDs(queryir.Col("", ir.From.Column()), c.Items))},
			{Column: queryir.Col("", ir.From.Column()), Table: b.table, Where: queryir.AndOf(typeMatch, queryir.InIDs(queryir.Col("", ir.To.Column()), c.Items))},
		}}
	} else {
		counterparts = queryir.SubSelect{
			Distinct: true,
			Column:   queryir.Col("", c.Target().Column()),
			Table:    b.table,
			Where:    queryir.AndOf(typeMatch, queryir.InIDs(queryir.Col("", c.Source().Column()), c.Items)),
		}
	}

	// The shared counterpart plays the anchor role of each branch; the
	// sibling sits in the other column.
	var out []queryir.Branch
	for _, e := range ends(c) {
		sibling, shared := e[0], e[1]
		out = append(out, queryir.Branch{
			Table: b.table,
			Where: queryir.AndOf(
				typeMatch,
				queryir.InSet(queryir.Col("", shared.Column()), counterparts),
				queryir.NotInIDs(queryir.Col("", sibling.Column()), c.Items),
			),
			ID:     queryir.Col("", sibling.Column()),
			Order:  queryir.Col("", shared.OrderColumn()),
			Origin: queryir.Col("", shared.Column()),
		})
	}
	return out
}

// derivedJoin joins branches as a derived table keyed by object id. Each
// host row matches once, or once per origin with KeepOrigins, and takes
// the lowest order of its edges.
func (b *Builder) derivedJoin(branches []queryir.Branch, host Host, opts Options) queryir.Fragments {
	live := make([]queryir.Branch, 0, len(branches))
	for _, br := range branches {
		if !queryir.IsFalse(br.Where) {
			live = append(live, br)
		}
	}
	empty := len(live) == 0
	if empty {
		live = branches[:1]
	}

	frag := queryir.Fragments{
		Joins: []queryir.Join{{
			Derived: &queryir.Derived{Branches: live, ByOrigin: opts.KeepOrigins},
			Alias:   b.alias,
			On:      queryir.Eq(b.col(queryir.DerivedID), host.Column),
		}},
		Fields: []queryir.Field{
			{Expr: b.col(queryir.DerivedOrigin), Alias: OriginField},
			{Expr: b.col(queryir.DerivedOrder), Alias: OrderField},
		},
	}
	if empty {
		frag.Where = queryir.False{}
	}

	if opts.PassThroughOrder {
		frag.PassThroughOrder = true
	} else {
		frag.OrderBy = []queryir.Order{
			{Expr: b.col(queryir.DerivedOrder), Dir: queryir.Asc},
			{Expr: host.Column, Dir: queryir.Asc},
		}
	}
	return frag
}

// unique drops repeated ids, keeping first occurrence order.
func unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// intersectIDs keeps the ids of a that also appear in b, in a's order.
func intersectIDs(a, b []int64) []int64 {
	in := make(map[int64]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}
	out := make([]int64, 0, len(a))
	for _, id := range a {
		if _, ok := in[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
