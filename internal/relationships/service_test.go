package relationships

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mbrel/internal/clause"
	"github.com/roach88/mbrel/internal/host"
	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/normalizer"
	"github.com/roach88/mbrel/internal/registry"
	"github.com/roach88/mbrel/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService opens a service over a fresh SQLite store with defs
// registered.
func newTestService(t *testing.T, defs ...registry.Definition) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "edges.db"), store.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := New(registry.New(registry.WithLogger(discardLogger())), st, WithLogger(discardLogger()))
	for _, def := range defs {
		_, err := svc.Register(def)
		require.NoError(t, err)
	}
	return svc
}

var (
	postsToPages = registry.Definition{ID: "posts_to_pages", From: registry.PostType("post"), To: registry.PostType("page")}
	relatedPosts = registry.Definition{ID: "related_posts", From: registry.PostType("post"), To: registry.PostType("post"), Reciprocal: true}
	usersToPosts = registry.Definition{ID: "users_to_posts", From: registry.Users(), To: registry.PostType("post")}
	postsToTags  = registry.Definition{ID: "posts_to_tags", From: registry.PostType("post"), To: registry.Taxonomy("post_tag")}
)

func mustAdd(t *testing.T, svc *Service, typ string, pairs ...[2]int64) {
	t.Helper()
	for _, p := range pairs {
		require.True(t, svc.AddEdge(context.Background(), p[0], p[1], typ), "AddEdge(%d, %d, %q): %v", p[0], p[1], typ, svc.LastError())
	}
}

func TestPostsToPages_EndToEnd(t *testing.T) {
	svc := newTestService(t, postsToPages)
	ctx := context.Background()

	require.True(t, svc.AddEdge(ctx, 10, 20, "posts_to_pages"))

	ids, err := svc.GetConnected(ctx, map[string]any{"id": "posts_to_pages", "from": 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, ids)

	n, err := svc.DeleteObject(ctx, 10, ir.ObjectPost)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ids, err = svc.GetConnected(ctx, map[string]any{"id": "posts_to_pages", "from": 10})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, svc.HasEdge(ctx, 10, 20, "posts_to_pages"))
}

func TestEdges_AddHasDelete(t *testing.T) {
	svc := newTestService(t, postsToPages)
	ctx := context.Background()

	assert.True(t, svc.AddEdge(ctx, 1, 2, "posts_to_pages"))
	assert.True(t, svc.HasEdge(ctx, 1, 2, "posts_to_pages"))
	assert.False(t, svc.HasEdge(ctx, 2, 1, "posts_to_pages"))

	assert.False(t, svc.AddEdge(ctx, 1, 2, "posts_to_pages"), "second add is a no-op")
	assert.NoError(t, svc.LastError(), "an existing edge is not a failure")

	ids, err := svc.GetConnected(ctx, map[string]any{"id": "posts_to_pages", "from": 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	assert.True(t, svc.DeleteEdge(ctx, 1, 2, "posts_to_pages"))
	assert.False(t, svc.HasEdge(ctx, 1, 2, "posts_to_pages"))
	assert.False(t, svc.DeleteEdge(ctx, 1, 2, "posts_to_pages"))
	assert.NoError(t, svc.LastError())
}

func TestEdges_ReciprocalEitherOrientation(t *testing.T) {
	svc := newTestService(t, relatedPosts)
	ctx := context.Background()

	require.True(t, svc.AddEdge(ctx, 1, 2, "related_posts"))
	assert.True(t, svc.HasEdge(ctx, 2, 1, "related_posts"))
	assert.False(t, svc.AddEdge(ctx, 2, 1, "related_posts"), "reversed pair is the same edge")
	assert.NoError(t, svc.LastError())

	got, err := svc.EachConnected(ctx, map[string]any{"id": "related_posts", "from": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, map[int64][]int64{1: {2}, 2: {1}}, got)

	ids, err := svc.GetConnected(ctx, map[string]any{"id": "related_posts", "from": 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	assert.True(t, svc.DeleteEdge(ctx, 2, 1, "related_posts"))
	assert.False(t, svc.HasEdge(ctx, 1, 2, "related_posts"))
	assert.False(t, svc.DeleteEdge(ctx, 1, 2, "related_posts"))
}

func TestList(t *testing.T) {
	svc := newTestService(t, postsToPages)
	ctx := context.Background()
	mustAdd(t, svc, "posts_to_pages", [2]int64{1, 30}, [2]int64{1, 10}, [2]int64{2, 10})

	ids, err := svc.List(ctx, 1, "posts_to_pages", ir.From)
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 10}, ids)

	ids, err = svc.List(ctx, 10, "posts_to_pages", ir.To)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	_, err = svc.List(ctx, 1, "nope", ir.From)
	assert.True(t, registry.IsNotRegistered(err))
}

func TestBuildClauses_TermSharedAcrossAnchors(t *testing.T) {
	svc := newTestService(t, postsToTags)
	mustAdd(t, svc, "posts_to_tags", [2]int64{10, 5}, [2]int64{11, 5})

	a := host.NewTerm(host.DefaultPrefix)
	got, err := svc.BuildClauses(context.Background(), map[string]any{"id": "posts_to_tags", "from": []any{10, 11}}, a, a.Base(), false)
	require.NoError(t, err)

	assert.Contains(t, got.Join, "GROUP BY edges.`id`) AS mbr ON mbr.`id` = t.`term_id`")
	assert.NotContains(t, a.Statement(got), "DISTINCT")
}

func TestEdges_UnknownRelationship(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.False(t, svc.AddEdge(ctx, 1, 2, "nope"))
	assert.True(t, registry.IsNotRegistered(svc.LastError()))
	assert.False(t, svc.HasEdge(ctx, 1, 2, "nope"))
	assert.False(t, svc.DeleteEdge(ctx, 1, 2, "nope"))

	_, err := svc.GetConnected(ctx, map[string]any{"id": "nope", "from": 1})
	assert.True(t, registry.IsNotRegistered(err))
}

func TestEdges_StorageFailureReportsFalse(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(sqlx.NewDb(db, "sqlmock"), store.WithLogger(discardLogger()))
	require.NoError(t, err)
	svc := New(registry.New(registry.WithLogger(discardLogger())), st, WithLogger(discardLogger()))
	_, err = svc.Register(postsToPages)
	require.NoError(t, err)

	errDisk := errors.New("disk I/O error")
	mk.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM mb_relationships`)).WillReturnError(errDisk)
	mk.ExpectBegin().WillReturnError(errDisk)
	mk.ExpectExec(regexp.QuoteMeta(`DELETE FROM mb_relationships`)).WillReturnError(errDisk)

	ctx := context.Background()
	assert.False(t, svc.HasEdge(ctx, 1, 2, "posts_to_pages"))
	assert.ErrorIs(t, svc.LastError(), errDisk)
	assert.False(t, svc.AddEdge(ctx, 1, 2, "posts_to_pages"))
	assert.ErrorIs(t, svc.LastError(), errDisk)
	assert.False(t, svc.DeleteEdge(ctx, 1, 2, "posts_to_pages"))
	assert.ErrorIs(t, svc.LastError(), errDisk)
	assert.NoError(t, mk.ExpectationsWereMet())
}

func TestGetConnected_Order(t *testing.T) {
	svc := newTestService(t, postsToPages)
	mustAdd(t, svc, "posts_to_pages", [2]int64{1, 30}, [2]int64{1, 10}, [2]int64{1, 20})

	ids, err := svc.GetConnected(context.Background(), map[string]any{"id": "posts_to_pages", "from": 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 10, 20}, ids)

	require.NoError(t, svc.Replace(context.Background(), 1, "posts_to_pages", ir.From, []int64{20, 30}))
	ids, err = svc.GetConnected(context.Background(), map[string]any{"id": "posts_to_pages", "from": 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 30}, ids)

	assert.True(t, registry.IsNotRegistered(svc.Replace(context.Background(), 1, "nope", ir.From, nil)))
}

func TestGetConnected_Reciprocal(t *testing.T) {
	svc := newTestService(t, relatedPosts)
	mustAdd(t, svc, "related_posts", [2]int64{1, 2})

	ids, err := svc.GetConnected(context.Background(), map[string]any{"id": "related_posts", "from": 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	ids, err = svc.GetConnected(context.Background(), map[string]any{"id": "related_posts", "from": 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestGetConnected_Sibling(t *testing.T) {
	svc := newTestService(t, postsToPages)
	// A=1, B=2, C=3 ; X=100, Y=200
	mustAdd(t, svc, "posts_to_pages", [2]int64{1, 100}, [2]int64{2, 100}, [2]int64{3, 200})

	ids, err := svc.GetConnected(context.Background(), map[string]any{"id": "posts_to_pages", "from": 1, "sibling": true})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestGetConnected_EmptyItems(t *testing.T) {
	svc := newTestService(t, postsToPages, relatedPosts)
	mustAdd(t, svc, "posts_to_pages", [2]int64{1, 2})
	mustAdd(t, svc, "related_posts", [2]int64{1, 2})

	for _, spec := range []map[string]any{
		{"id": "posts_to_pages", "from": []int64{}},
		{"id": "related_posts", "to": []any{}},
		{"id": "posts_to_pages", "from": nil, "sibling": true},
		{"relation": "OR", "0": map[string]any{"id": "posts_to_pages", "from": []int{}}},
	} {
		ids, err := svc.GetConnected(context.Background(), spec)
		require.NoError(t, err)
		assert.Empty(t, ids, "spec %v", spec)
	}
}

func TestGetConnected_Compound(t *testing.T) {
	a := registry.Definition{ID: "a", From: registry.PostType("post"), To: registry.PostType("post")}
	b := registry.Definition{ID: "b", From: registry.PostType("post"), To: registry.PostType("post")}
	svc := newTestService(t, a, b)
	mustAdd(t, svc, "a", [2]int64{10, 1}, [2]int64{10, 2})
	mustAdd(t, svc, "b", [2]int64{20, 2}, [2]int64{20, 3})

	spec := func(relation string) map[string]any {
		return map[string]any{
			"relation": relation,
			"0":        map[string]any{"id": "a", "from": 10},
			"1":        map[string]any{"id": "b", "from": 20},
		}
	}

	ids, err := svc.GetConnected(context.Background(), spec("OR"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	ids, err = svc.GetConnected(context.Background(), spec("AND"))
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestGetConnected_MalformedSpec(t *testing.T) {
	svc := newTestService(t, postsToPages)

	_, err := svc.GetConnected(context.Background(), map[string]any{
		"0": map[string]any{"id": "posts_to_pages", "from": 1},
		"1": map[string]any{"id": "posts_to_pages", "from": 2},
	})
	assert.True(t, normalizer.IsSpecError(err, normalizer.CodeMalformedSpec))
}

func TestEachConnected(t *testing.T) {
	svc := newTestService(t, postsToPages)
	mustAdd(t, svc, "posts_to_pages", [2]int64{1, 10}, [2]int64{1, 11}, [2]int64{2, 11})

	got, err := svc.EachConnected(context.Background(), map[string]any{
		"id":   "posts_to_pages",
		"from": []map[string]any{{"ID": 1}, {"ID": 2}, {"ID": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64][]int64{
		1: {10, 11},
		2: {11},
		3: {},
	}, got)

	_, err = svc.EachConnected(context.Background(), map[string]any{"id": "posts_to_pages", "from": 1, "sibling": true})
	assert.True(t, normalizer.IsSpecError(err, normalizer.CodeMixedShape))
}

func TestBuildClauses_Post(t *testing.T) {
	svc := newTestService(t, postsToPages)
	a := host.NewPost(host.DefaultPrefix)

	got, err := svc.BuildClauses(context.Background(), map[string]any{"id": "posts_to_pages", "from": 10}, a, a.Base(), false)
	require.NoError(t, err)

	assert.Equal(t, "wp_posts.*, mbr.`from` AS `mb_origin`", got.Fields)
	assert.Contains(t, got.Join, "INNER JOIN mb_relationships AS mbr ON (mbr.`to` = wp_posts.`ID`")
	assert.Contains(t, got.Join, "mbr.`from` IN (10)")
	assert.Equal(t, "wp_posts.`ID`", got.GroupBy)
	assert.Equal(t, "mbr.`order_from` ASC", got.OrderBy)
}

func TestBuildClauses_AndPreResolves(t *testing.T) {
	a := registry.Definition{ID: "a", From: registry.PostType("post"), To: registry.PostType("post")}
	svc := newTestService(t, a, postsToTags)
	mustAdd(t, svc, "posts_to_tags", [2]int64{2, 7}, [2]int64{3, 7}, [2]int64{4, 8})

	adapter := host.NewPost(host.DefaultPrefix)
	got, err := svc.BuildClauses(context.Background(), map[string]any{
		"relation": "AND",
		"0":        map[string]any{"id": "a", "from": 10},
		"1":        map[string]any{"id": "posts_to_tags", "to": 7},
	}, adapter, adapter.Base(), false)
	require.NoError(t, err)

	assert.Contains(t, got.Join, "mbr.`type` = 'a'")
	assert.Contains(t, got.Where, "wp_posts.`ID` IN (2, 3)")
}

func TestBuildClauses_HostMismatch(t *testing.T) {
	svc := newTestService(t, postsToTags)
	a := host.NewUser(host.DefaultPrefix)

	_, err := svc.BuildClauses(context.Background(), map[string]any{"id": "posts_to_tags", "from": 1}, a, a.Base(), false)
	var mismatch *clause.HostMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestDistribute(t *testing.T) {
	svc := newTestService(t)
	rows := []map[string]any{
		{"ID": int64(20), clause.OriginField: int64(10)},
		{"ID": int64(21), clause.OriginField: []byte("11")},
		{"ID": int64(22), clause.OriginField: "10"},
	}

	got := svc.Distribute([]int64{10, 11, 12}, rows)
	assert.Equal(t, []map[string]any{rows[0], rows[2]}, got[10])
	assert.Equal(t, []map[string]any{rows[1]}, got[11])
	assert.Empty(t, got[12])
}

func TestDeleteObject_OnlyMatchingObjectTypes(t *testing.T) {
	svc := newTestService(t, postsToPages, usersToPosts, postsToTags)
	ctx := context.Background()
	mustAdd(t, svc, "posts_to_pages", [2]int64{10, 20})
	mustAdd(t, svc, "users_to_posts", [2]int64{3, 10})
	mustAdd(t, svc, "posts_to_tags", [2]int64{10, 5})

	n, err := svc.DeleteObject(ctx, 10, ir.ObjectUser)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "user 10 has no edges")
	assert.True(t, svc.HasEdge(ctx, 10, 20, "posts_to_pages"))

	n, err = svc.DeleteObject(ctx, 10, ir.ObjectPost)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.False(t, svc.HasEdge(ctx, 3, 10, "users_to_posts"))
	assert.False(t, svc.HasEdge(ctx, 10, 5, "posts_to_tags"))
}
