package normalizer

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/registry"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	reg := registry.New(registry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	for _, def := range []registry.Definition{
		{ID: "posts_to_pages", From: registry.PostType("post"), To: registry.PostType("page")},
		{ID: "posts_to_tags", From: registry.PostType("post"), To: registry.Taxonomy("post_tag")},
		{ID: "related_posts", From: registry.PostType("post"), To: registry.PostType("post"), Reciprocal: true},
		{ID: "users_to_posts", From: registry.Users(), To: registry.PostType("post")},
	} {
		_, err := reg.Register(def)
		require.NoError(t, err)
	}
	return New(reg)
}

type post struct{ id int64 }

func (p post) ObjectID() int64 { return p.id }

func TestNormalize_SingleFrom(t *testing.T) {
	n := newTestNormalizer(t)

	q, err := n.Normalize(map[string]any{"id": "posts_to_pages", "from": 10})
	require.NoError(t, err)

	assert.Equal(t, ir.RelationAnd, q.Relation)
	require.Len(t, q.Clauses, 1)
	c := q.Clauses[0]
	assert.Equal(t, "posts_to_pages", c.ID)
	assert.Equal(t, ir.From, c.Direction)
	assert.Equal(t, []int64{10}, c.Items)
	assert.False(t, c.Reciprocal)
	assert.False(t, c.Sibling)
	assert.Equal(t, ir.ObjectPost, c.AnchorType)
	assert.Equal(t, ir.ObjectPost, c.TargetType)
}

func TestNormalize_ToWithTypes(t *testing.T) {
	n := newTestNormalizer(t)

	q, err := n.Normalize(map[string]any{"id": "posts_to_tags", "to": []any{5, "6", 5}})
	require.NoError(t, err)

	c := q.Clauses[0]
	assert.Equal(t, ir.To, c.Direction)
	assert.Equal(t, []int64{5, 6}, c.Items)
	assert.Equal(t, ir.ObjectTerm, c.AnchorType)
	assert.Equal(t, ir.ObjectPost, c.TargetType)
	assert.Equal(t, ir.ObjectPost, c.ResultType())
}

func TestNormalize_ItemsAsObjects(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name  string
		spec  map[string]any
		items []int64
	}{
		{
			name:  "post maps use ID",
			spec:  map[string]any{"id": "posts_to_pages", "from": []any{map[string]any{"ID": 3}, map[string]any{"ID": 4}}},
			items: []int64{3, 4},
		},
		{
			name:  "single post map",
			spec:  map[string]any{"id": "posts_to_pages", "from": map[string]any{"ID": int64(7)}},
			items: []int64{7},
		},
		{
			name:  "term maps use term_id",
			spec:  map[string]any{"id": "posts_to_tags", "to": []map[string]any{{"term_id": 12, "name": "go"}}},
			items: []int64{12},
		},
		{
			name:  "Object implementations",
			spec:  map[string]any{"id": "users_to_posts", "to": []post{{id: 8}, {id: 9}}},
			items: []int64{8, 9},
		},
		{
			name:  "typed slice",
			spec:  map[string]any{"id": "posts_to_pages", "from": []int64{1, 2}},
			items: []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := n.Normalize(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.items, q.Clauses[0].Items)
		})
	}
}

func TestNormalize_EmptyItemsIsNotAnError(t *testing.T) {
	n := newTestNormalizer(t)

	for _, items := range []any{nil, []any{}, []int64{}} {
		q, err := n.Normalize(map[string]any{"id": "posts_to_pages", "from": items})
		require.NoError(t, err)
		assert.True(t, q.Clauses[0].IsEmpty())
		assert.NotNil(t, q.Clauses[0].Items)
	}
}

func TestNormalize_ReciprocalAndSibling(t *testing.T) {
	n := newTestNormalizer(t)

	q, err := n.Normalize(map[string]any{"id": "related_posts", "from": 1})
	require.NoError(t, err)
	assert.True(t, q.Clauses[0].Reciprocal)

	q, err = n.Normalize(map[string]any{"id": "posts_to_pages", "from": 1, "sibling": true})
	require.NoError(t, err)
	assert.True(t, q.Clauses[0].Sibling)
	assert.Equal(t, ir.ObjectPost, q.Clauses[0].ResultType())
}

func TestNormalize_Compound(t *testing.T) {
	n := newTestNormalizer(t)

	q, err := n.Normalize(map[string]any{
		"relation": "or",
		"1":        map[string]any{"id": "posts_to_tags", "to": 5},
		"0":        map[string]any{"id": "posts_to_pages", "to": 20},
	})
	require.NoError(t, err)

	assert.Equal(t, ir.RelationOr, q.Relation)
	require.Len(t, q.Clauses, 2)
	assert.Equal(t, "posts_to_pages", q.Clauses[0].ID)
	assert.Equal(t, "posts_to_tags", q.Clauses[1].ID)
	assert.True(t, q.IsCompound())
}

func TestNormalize_CompoundSingleClauseNeedsNoRelation(t *testing.T) {
	n := newTestNormalizer(t)

	q, err := n.Normalize(map[string]any{"0": map[string]any{"id": "posts_to_pages", "from": 1}})
	require.NoError(t, err)
	assert.Equal(t, ir.RelationAnd, q.Relation)
	assert.Len(t, q.Clauses, 1)
}

func TestNormalize_JSON(t *testing.T) {
	n := newTestNormalizer(t)

	spec, err := DecodeJSON([]byte(`{"relation":"AND","0":{"id":"posts_to_pages","from":[9007199254740993]},"1":{"id":"users_to_posts","to":{"ID":4}}}`))
	require.NoError(t, err)
	q, err := n.Normalize(spec)
	require.NoError(t, err)
	assert.Equal(t, []int64{9007199254740993}, q.Clauses[0].Items)
	assert.Equal(t, []int64{4}, q.Clauses[1].Items)

	_, err = DecodeJSON([]byte(`{"id":`))
	assert.True(t, IsSpecError(err, CodeMalformedSpec))
}

func TestNormalize_Errors(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name string
		spec map[string]any
		code string
	}{
		{"empty spec", map[string]any{}, CodeMalformedSpec},
		{"missing id", map[string]any{"from": 1}, CodeMalformedSpec},
		{"non-string id", map[string]any{"id": 5, "from": 1}, CodeMalformedSpec},
		{"missing direction", map[string]any{"id": "posts_to_pages"}, CodeMissingDirection},
		{"both directions", map[string]any{"id": "posts_to_pages", "from": 1, "to": 2}, CodeAmbiguousDirection},
		{"negative id", map[string]any{"id": "posts_to_pages", "from": -1}, CodeInvalidItems},
		{"fractional id", map[string]any{"id": "posts_to_pages", "from": 1.5}, CodeInvalidItems},
		{"non-numeric string", map[string]any{"id": "posts_to_pages", "from": "abc"}, CodeInvalidItems},
		{"object without id field", map[string]any{"id": "posts_to_tags", "to": map[string]any{"ID": 1}}, CodeInvalidItems},
		{"bool item", map[string]any{"id": "posts_to_pages", "from": true}, CodeInvalidItems},
		{
			"many clauses without relation",
			map[string]any{"0": map[string]any{"id": "posts_to_pages", "from": 1}, "1": map[string]any{"id": "posts_to_pages", "from": 2}},
			CodeMalformedSpec,
		},
		{
			"mixed shape",
			map[string]any{"id": "posts_to_pages", "from": 1, "0": map[string]any{"id": "posts_to_pages", "from": 2}},
			CodeMixedShape,
		},
		{
			"unexpected key in compound",
			map[string]any{"relation": "AND", "extra": 1, "0": map[string]any{"id": "posts_to_pages", "from": 2}},
			CodeMixedShape,
		},
		{
			"bad relation",
			map[string]any{"relation": "XOR", "0": map[string]any{"id": "posts_to_pages", "from": 1}},
			CodeInvalidRelation,
		},
		{
			"relation not a string",
			map[string]any{"relation": 1, "0": map[string]any{"id": "posts_to_pages", "from": 1}},
			CodeInvalidRelation,
		},
		{"relation without clauses", map[string]any{"relation": "OR"}, CodeMalformedSpec},
		{
			"clause not an object",
			map[string]any{"relation": "OR", "0": "posts_to_pages"},
			CodeMalformedSpec,
		},
		{
			"sibling inside compound",
			map[string]any{
				"relation": "OR",
				"0":        map[string]any{"id": "posts_to_pages", "from": 1, "sibling": true},
				"1":        map[string]any{"id": "posts_to_pages", "from": 2},
			},
			CodeMixedShape,
		},
		{"bad sibling flag", map[string]any{"id": "posts_to_pages", "from": 1, "sibling": []any{}}, CodeMalformedSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.spec)
			require.Error(t, err)
			assert.True(t, IsSpecError(err, tt.code), "want %s, got %v", tt.code, err)
		})
	}
}

func TestNormalize_UnknownRelationship(t *testing.T) {
	n := newTestNormalizer(t)

	_, err := n.Normalize(map[string]any{"id": "nope", "from": 1})
	require.Error(t, err)
	assert.True(t, registry.IsNotRegistered(err))
	assert.False(t, IsSpecError(err))

	_, err = n.Normalize(map[string]any{
		"relation": "AND",
		"0":        map[string]any{"id": "posts_to_pages", "from": 1},
		"1":        map[string]any{"id": "nope", "from": 1},
	})
	assert.True(t, registry.IsNotRegistered(err))
}

func TestScalarID(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{int(3), 3},
		{int32(4), 4},
		{uint16(5), 5},
		{float64(6), 6},
		{json.Number("7"), 7},
		{" 8 ", 8},
		{int64(0), 0},
	}
	for _, tt := range tests {
		got, err := scalarID(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := scalarID(uint64(1 << 63))
	assert.Error(t, err)
	_, err = scalarID(json.Number("1.5"))
	assert.Error(t, err)
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, "1", "yes", 1, json.Number("1")} {
		b, err := truthy(v)
		require.NoError(t, err)
		assert.True(t, b, "%v", v)
	}
	for _, v := range []any{nil, false, "", "0", "false", 0, json.Number("0")} {
		b, err := truthy(v)
		require.NoError(t, err)
		assert.False(t, b, "%v", v)
	}
}
