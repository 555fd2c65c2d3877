package clause

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/queryir"
)

var postHost = Host{Column: queryir.Col("wp_posts", "ID"), Type: ir.ObjectPost}

func newTestBuilder(opts ...Option) *Builder {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(opts...)
}

func mbr(name string) queryir.Column {
	return queryir.Col(DefaultAlias, name)
}

func postsToPages(items ...int64) ir.Clause {
	return ir.Clause{
		ID:         "posts_to_pages",
		Direction:  ir.From,
		Items:      items,
		AnchorType: ir.ObjectPost,
		TargetType: ir.ObjectPost,
	}
}

func relatedPosts(items ...int64) ir.Clause {
	return ir.Clause{
		ID:         "related_posts",
		Direction:  ir.From,
		Items:      items,
		Reciprocal: true,
		AnchorType: ir.ObjectPost,
		TargetType: ir.ObjectPost,
	}
}

func single(c ir.Clause) ir.Query {
	return ir.Query{Relation: ir.RelationAnd, Clauses: []ir.Clause{c}}
}

func TestBuild_NonReciprocal(t *testing.T) {
	frag, err := newTestBuilder().Build(context.Background(), single(postsToPages(10, 11)), postHost, Options{})
	require.NoError(t, err)

	require.Len(t, frag.Joins, 1)
	join := frag.Joins[0]
	assert.Equal(t, DefaultTable, join.Table)
	assert.Equal(t, DefaultAlias, join.Alias)
	assert.Equal(t, queryir.And{Predicates: []queryir.Predicate{
		queryir.Eq(mbr("to"), postHost.Column),
		queryir.Eq(mbr("type"), queryir.Value{V: "posts_to_pages"}),
		queryir.In{Left: mbr("from"), Set: queryir.IDs{10, 11}},
	}}, join.On)

	assert.Nil(t, frag.Where)
	assert.Equal(t, []queryir.Field{{Expr: mbr("from"), Alias: OriginField}}, frag.Fields)
	assert.Equal(t, []queryir.Order{{Expr: mbr("order_from"), Dir: queryir.Asc}}, frag.OrderBy)
	assert.Equal(t, []queryir.Expr{postHost.Column}, frag.GroupBy)
	assert.False(t, frag.PassThroughOrder)
	assert.True(t, queryir.Validate(frag).Valid)
}

func TestBuild_ToDirection(t *testing.T) {
	c := postsToPages(20)
	c.Direction = ir.To

	frag, err := newTestBuilder().Build(context.Background(), single(c), postHost, Options{})
	require.NoError(t, err)

	on := frag.Joins[0].On.(queryir.And)
	assert.Equal(t, queryir.Eq(mbr("from"), postHost.Column), on.Predicates[0])
	assert.Equal(t, queryir.In{Left: mbr("to"), Set: queryir.IDs{20}}, on.Predicates[2])
	assert.Equal(t, []queryir.Order{{Expr: mbr("order_to"), Dir: queryir.Asc}}, frag.OrderBy)
}

func TestBuild_Reciprocal(t *testing.T) {
	frag, err := newTestBuilder().Build(context.Background(), single(relatedPosts(5)), postHost, Options{})
	require.NoError(t, err)

	host := postHost.Column
	assert.Equal(t, queryir.And{Predicates: []queryir.Predicate{
		queryir.Eq(mbr("type"), queryir.Value{V: "related_posts"}),
		queryir.Or{Predicates: []queryir.Predicate{
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Eq(mbr("from"), host),
				queryir.In{Left: mbr("to"), Set: queryir.IDs{5}},
			}},
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Eq(mbr("to"), host),
				queryir.In{Left: mbr("from"), Set: queryir.IDs{5}},
			}},
		}},
	}}, frag.Joins[0].On)

	require.Len(t, frag.Fields, 2)
	assert.Equal(t, queryir.Case{
		Whens: []queryir.When{{Cond: queryir.Eq(mbr("from"), host), Then: mbr("to")}},
		Else:  mbr("from"),
	}, frag.Fields[0].Expr)
	assert.Equal(t, OrderField, frag.Fields[1].Alias)
	assert.Equal(t, queryir.Case{
		Whens: []queryir.When{{Cond: queryir.Eq(mbr("to"), host), Then: mbr("order_from")}},
		Else:  mbr("order_to"),
	}, frag.Fields[1].Expr)

	assert.Equal(t, []queryir.Order{
		{Expr: queryir.Ref{Alias: OrderField}, Dir: queryir.Asc},
		{Expr: host, Dir: queryir.Asc},
	}, frag.OrderBy)
	assert.Equal(t, []queryir.Expr{host}, frag.GroupBy)
}

func TestBuild_KeepOrigins(t *testing.T) {
	tests := []struct {
		name  string
		query ir.Query
		want  []queryir.Expr
	}{
		{
			name:  "plain clause groups by origin column",
			query: single(postsToPages(1)),
			want:  []queryir.Expr{postHost.Column, mbr("from")},
		},
		{
			name:  "reciprocal groups by origin alias",
			query: single(relatedPosts(1)),
			want:  []queryir.Expr{postHost.Column, queryir.Ref{Alias: OriginField}},
		},
		{
			name: "mixed directions group by origin alias",
			query: ir.Query{Relation: ir.RelationOr, Clauses: []ir.Clause{
				postsToPages(1),
				func() ir.Clause { c := postsToPages(2); c.Direction = ir.To; return c }(),
			}},
			want: []queryir.Expr{postHost.Column, queryir.Ref{Alias: OriginField}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := newTestBuilder().Build(context.Background(), tt.query, postHost, Options{KeepOrigins: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, frag.GroupBy)
		})
	}
}

func TestBuild_PassThroughOrder(t *testing.T) {
	for _, c := range []ir.Clause{postsToPages(1), relatedPosts(1)} {
		t.Run(c.ID, func(t *testing.T) {
			frag, err := newTestBuilder().Build(context.Background(), single(c), postHost, Options{PassThroughOrder: true})
			require.NoError(t, err)
			assert.True(t, frag.PassThroughOrder)
			assert.Empty(t, frag.OrderBy)
			assert.NotEmpty(t, frag.Fields)
		})
	}
}

func TestBuild_EmptyItemsMatchNothing(t *testing.T) {
	tests := []struct {
		name  string
		query ir.Query
	}{
		{"single", single(postsToPages())},
		{"reciprocal", single(relatedPosts())},
		{"sibling", single(func() ir.Clause { c := postsToPages(); c.Sibling = true; return c }())},
		{"reciprocal sibling", single(func() ir.Clause { c := relatedPosts(); c.Sibling = true; return c }())},
		{"or of empties", ir.Query{Relation: ir.RelationOr, Clauses: []ir.Clause{postsToPages(), relatedPosts()}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := newTestBuilder().Build(context.Background(), tt.query, postHost, Options{})
			require.NoError(t, err)
			assert.Equal(t, queryir.False{}, frag.Where)
			assert.True(t, frag.IsEmptyResult())
			assert.True(t, queryir.Validate(frag).Valid, queryir.Validate(frag).Problems)
		})
	}
}

func TestBuild_OrComposition(t *testing.T) {
	q := ir.Query{Relation: ir.RelationOr, Clauses: []ir.Clause{
		postsToPages(1),
		{ID: "posts_to_posts", Direction: ir.From, Items: []int64{2}, AnchorType: ir.ObjectPost, TargetType: ir.ObjectPost},
	}}

	frag, err := newTestBuilder().Build(context.Background(), q, postHost, Options{})
	require.NoError(t, err)

	require.Len(t, frag.Joins, 1)
	or, ok := frag.Joins[0].On.(queryir.Or)
	require.True(t, ok, "join condition should be a disjunction, got %T", frag.Joins[0].On)
	assert.Len(t, or.Predicates, 2)

	// Same direction, no reciprocal: the plain columns carry origin and order.
	assert.Equal(t, []queryir.Field{{Expr: mbr("from"), Alias: OriginField}}, frag.Fields)
	assert.Equal(t, []queryir.Order{{Expr: mbr("order_from"), Dir: queryir.Asc}}, frag.OrderBy)
}

func TestBuild_OrMixedUsesCase(t *testing.T) {
	q := ir.Query{Relation: ir.RelationOr, Clauses: []ir.Clause{postsToPages(1), relatedPosts(2)}}

	frag, err := newTestBuilder().Build(context.Background(), q, postHost, Options{})
	require.NoError(t, err)

	require.Len(t, frag.Fields, 2)
	origin, ok := frag.Fields[0].Expr.(queryir.Case)
	require.True(t, ok)
	assert.Len(t, origin.Whens, 2)
	assert.Equal(t, OrderField, frag.Fields[1].Alias)
	assert.Equal(t, queryir.Ref{Alias: OrderField}, frag.OrderBy[0].Expr)
}

func TestBuild_OrDropsEmptyClause(t *testing.T) {
	q := ir.Query{Relation: ir.RelationOr, Clauses: []ir.Clause{postsToPages(), relatedPosts(2)}}

	frag, err := newTestBuilder().Build(context.Background(), q, postHost, Options{})
	require.NoError(t, err)

	assert.Nil(t, frag.Where)
	assert.IsType(t, queryir.And{}, frag.Joins[0].On)
	// Only the reciprocal clause is live, so its markers are used directly.
	assert.IsType(t, queryir.Case{}, frag.Fields[0].Expr)
	assert.Len(t, frag.Fields[0].Expr.(queryir.Case).Whens, 1)
}

func TestBuild_AndIntersectsResolvedClauses(t *testing.T) {
	resolved := map[string][]int64{
		"posts_to_posts": {3, 2, 2},
		"posts_to_tags":  {2, 4, 3},
	}
	var calls []string
	resolver := ResolverFunc(func(_ context.Context, c ir.Clause) ([]int64, error) {
		calls = append(calls, c.ID)
		return resolved[c.ID], nil
	})

	q := ir.Query{Relation: ir.RelationAnd, Clauses: []ir.Clause{
		postsToPages(1),
		{ID: "posts_to_posts", Direction: ir.From, Items: []int64{9}, AnchorType: ir.ObjectPost, TargetType: ir.ObjectPost},
		{ID: "posts_to_tags", Direction: ir.To, Items: []int64{7}, AnchorType: ir.ObjectTerm, TargetType: ir.ObjectPost},
	}}

	frag, err := newTestBuilder(WithResolver(resolver)).Build(context.Background(), q, postHost, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"posts_to_posts", "posts_to_tags"}, calls)
	assert.Equal(t, queryir.In{Left: postHost.Column, Set: queryir.IDs{3, 2}}, frag.Where)

	// The lead clause is joined in place.
	on := frag.Joins[0].On.(queryir.And)
	assert.Equal(t, queryir.Eq(mbr("type"), queryir.Value{V: "posts_to_pages"}), on.Predicates[1])
}

func TestBuild_AndEmptyIntersection(t *testing.T) {
	resolver := ResolverFunc(func(_ context.Context, c ir.Clause) ([]int64, error) {
		if c.ID == "a" {
			return []int64{1}, nil
		}
		return []int64{2}, nil
	})
	clause := func(id string) ir.Clause {
		return ir.Clause{ID: id, Direction: ir.From, Items: []int64{5}, AnchorType: ir.ObjectPost, TargetType: ir.ObjectPost}
	}
	q := ir.Query{Relation: ir.RelationAnd, Clauses: []ir.Clause{clause("lead"), clause("a"), clause("b")}}

	frag, err := newTestBuilder(WithResolver(resolver)).Build(context.Background(), q, postHost, Options{})
	require.NoError(t, err)
	assert.Equal(t, queryir.False{}, frag.Where)
}

func TestBuild_AndWithEmptyClauseSkipsResolver(t *testing.T) {
	resolver := ResolverFunc(func(context.Context, ir.Clause) ([]int64, error) {
		t.Fatal("resolver should not be called for an empty clause")
		return nil, nil
	})
	q := ir.Query{Relation: ir.RelationAnd, Clauses: []ir.Clause{postsToPages(1), relatedPosts()}}

	frag, err := newTestBuilder(WithResolver(resolver)).Build(context.Background(), q, postHost, Options{})
	require.NoError(t, err)
	assert.Equal(t, queryir.False{}, frag.Where)
}

func TestBuild_AndResolverError(t *testing.T) {
	boom := errors.New("database is locked")
	resolver := ResolverFunc(func(context.Context, ir.Clause) ([]int64, error) {
		return nil, boom
	})
	q := ir.Query{Relation: ir.RelationAnd, Clauses: []ir.Clause{postsToPages(1), relatedPosts(2)}}

	_, err := newTestBuilder(WithResolver(resolver)).Build(context.Background(), q, postHost, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"related_posts"`)
}

func TestBuild_Sibling(t *testing.T) {
	c := postsToPages(1, 2)
	c.Sibling = true

	frag, err := newTestBuilder().Build(context.Background(), single(c), postHost, Options{})
	require.NoError(t, err)

	host := postHost.Column
	assert.Equal(t, queryir.Eq(mbr("from"), host), frag.Joins[0].On)
	assert.Equal(t, queryir.And{Predicates: []queryir.Predicate{
		queryir.Eq(mbr("type"), queryir.Value{V: "posts_to_pages"}),
		queryir.In{Left: mbr("to"), Set: queryir.SubSelect{
			Distinct: true,
			Column:   queryir.Col("", "to"),
			Table:    DefaultTable,
			Where: queryir.And{Predicates: []queryir.Predicate{
				queryir.Eq(queryir.Col("", "type"), queryir.Value{V: "posts_to_pages"}),
				queryir.In{Left: queryir.Col("", "from"), Set: queryir.IDs{1, 2}},
			}},
		}},
		queryir.In{Left: mbr("from"), Set: queryir.IDs{1, 2}, Negate: true},
	}}, frag.Where)

	assert.Equal(t, []queryir.Field{{Expr: mbr("to"), Alias: OriginField}}, frag.Fields)
	assert.Equal(t, []queryir.Order{{Expr: mbr("order_to"), Dir: queryir.Asc}}, frag.OrderBy)
	assert.Equal(t, []queryir.Expr{host}, frag.GroupBy)
}

func TestBuild_ReciprocalSibling(t *testing.T) {
	c := relatedPosts(4)
	c.Sibling = true

	frag, err := newTestBuilder().Build(context.Background(), single(c), postHost, Options{KeepOrigins: true})
	require.NoError(t, err)

	host := postHost.Column
	assert.Equal(t, queryir.In{Left: host, Set: queryir.IDs{4}, Negate: true}, frag.Where)

	on := frag.Joins[0].On.(queryir.And)
	branches := on.Predicates[1].(queryir.Or)
	require.Len(t, branches.Predicates, 2)
	in := branches.Predicates[0].(queryir.And).Predicates[1].(queryir.In)
	union, ok := in.Set.(queryir.Union)
	require.True(t, ok)
	assert.Len(t, union.Selects, 2)

	assert.Equal(t, []queryir.Expr{host, queryir.Ref{Alias: OriginField}}, frag.GroupBy)
	assert.True(t, queryir.Validate(frag).Valid, queryir.Validate(frag).Problems)
}

func TestBuild_CustomTableAndAlias(t *testing.T) {
	b := newTestBuilder(WithTable("wp_mb_relationships"), WithAlias("rel"))
	assert.Equal(t, "wp_mb_relationships", b.Table())
	assert.Equal(t, "rel", b.Alias())

	frag, err := b.Build(context.Background(), single(postsToPages(1)), postHost, Options{})
	require.NoError(t, err)
	assert.Equal(t, "wp_mb_relationships", frag.Joins[0].Table)
	assert.Equal(t, "rel", frag.Joins[0].Alias)
	assert.Equal(t, queryir.Col("rel", "from"), frag.Fields[0].Expr)
}

func TestBuild_Errors(t *testing.T) {
	sibling := postsToPages(1)
	sibling.Sibling = true

	tests := []struct {
		name    string
		builder *Builder
		query   ir.Query
		host    Host
		check   func(t *testing.T, err error)
	}{
		{
			name:    "empty query",
			builder: newTestBuilder(),
			query:   ir.Query{Relation: ir.RelationAnd},
			host:    postHost,
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyQuery) },
		},
		{
			name:    "missing host column",
			builder: newTestBuilder(),
			query:   single(postsToPages(1)),
			host:    Host{},
			check:   func(t *testing.T, err error) { assert.Contains(t, err.Error(), "host id column") },
		},
		{
			name:    "host type mismatch",
			builder: newTestBuilder(),
			query: single(ir.Clause{
				ID: "posts_to_tags", Direction: ir.From, Items: []int64{1},
				AnchorType: ir.ObjectPost, TargetType: ir.ObjectTerm,
			}),
			host: postHost,
			check: func(t *testing.T, err error) {
				var mismatch *HostMismatchError
				require.ErrorAs(t, err, &mismatch)
				assert.Equal(t, "posts_to_tags", mismatch.Clause)
				assert.Equal(t, ir.ObjectTerm, mismatch.Selected)
				assert.Equal(t, ir.ObjectPost, mismatch.Host)
			},
		},
		{
			name:    "sibling in compound",
			builder: newTestBuilder(),
			query:   ir.Query{Relation: ir.RelationOr, Clauses: []ir.Clause{postsToPages(1), sibling}},
			host:    postHost,
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrSiblingCompound) },
		},
		{
			name:    "and without resolver",
			builder: newTestBuilder(),
			query:   ir.Query{Relation: ir.RelationAnd, Clauses: []ir.Clause{postsToPages(1), relatedPosts(2)}},
			host:    postHost,
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNoResolver) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build(context.Background(), tt.query, tt.host, Options{})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestBuild_UntypedHostAcceptsAnyResult(t *testing.T) {
	q := single(ir.Clause{
		ID: "posts_to_tags", Direction: ir.From, Items: []int64{1},
		AnchorType: ir.ObjectPost, TargetType: ir.ObjectTerm,
	})
	_, err := newTestBuilder().Build(context.Background(), q, Host{Column: queryir.Col("objects", "ID")}, Options{})
	require.NoError(t, err)
}

func TestIntersectIDs(t *testing.T) {
	assert.Equal(t, []int64{3, 1}, intersectIDs([]int64{3, 2, 1}, []int64{1, 3, 5}))
	assert.Empty(t, intersectIDs([]int64{1}, nil))
	assert.Equal(t, []int64{2, 1}, unique([]int64{2, 1, 2, 1}))
}

func TestBuild_DerivedHost(t *testing.T) {
	derivedHost := Host{Column: queryir.Col("t", "term_id"), Type: ir.ObjectPost, Derived: true}
	col := func(name string) queryir.Column { return queryir.Col("", name) }
	typeMatch := queryir.Eq(col("type"), queryir.Value{V: "related_posts"})

	frag, err := newTestBuilder().Build(context.Background(), single(relatedPosts(4)), derivedHost, Options{})
	require.NoError(t, err)

	require.Len(t, frag.Joins, 1)
	join := frag.Joins[0]
	assert.Equal(t, queryir.Eq(mbr(queryir.DerivedID), derivedHost.Column), join.On)
	require.NotNil(t, join.Derived)
	assert.False(t, join.Derived.ByOrigin)
	assert.Equal(t, []queryir.Branch{
		{
			Table:  DefaultTable,
			Where:  queryir.AndOf(typeMatch, queryir.InIDs(col("from"), []int64{4})),
			ID:     col("to"),
			Order:  col("order_from"),
			Origin: col("from"),
		},
		{
			Table:  DefaultTable,
			Where:  queryir.AndOf(typeMatch, queryir.InIDs(col("to"), []int64{4})),
			ID:     col("from"),
			Order:  col("order_to"),
			Origin: col("to"),
		},
	}, join.Derived.Branches)

	assert.Nil(t, frag.GroupBy, "rows are unique per object without grouping")
	assert.Nil(t, frag.Where)
	assert.Equal(t, []queryir.Field{
		{Expr: mbr(queryir.DerivedOrigin), Alias: OriginField},
		{Expr: mbr(queryir.DerivedOrder), Alias: OrderField},
	}, frag.Fields)
	assert.Equal(t, []queryir.Order{
		{Expr: mbr(queryir.DerivedOrder), Dir: queryir.Asc},
		{Expr: derivedHost.Column, Dir: queryir.Asc},
	}, frag.OrderBy)
	assert.True(t, queryir.Validate(frag).Valid, queryir.Validate(frag).Problems)

	frag, err = newTestBuilder().Build(context.Background(), single(relatedPosts(4)), derivedHost, Options{KeepOrigins: true})
	require.NoError(t, err)
	assert.True(t, frag.Joins[0].Derived.ByOrigin)

	frag, err = newTestBuilder().Build(context.Background(), single(postsToPages()), derivedHost, Options{})
	require.NoError(t, err)
	assert.True(t, frag.IsEmptyResult())
	assert.Len(t, frag.Joins[0].Derived.Branches, 1)
	assert.True(t, queryir.Validate(frag).Valid, queryir.Validate(frag).Problems)
}
