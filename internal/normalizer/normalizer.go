// Package normalizer converts loosely typed relationship query specs into
// canonical ir.Query values.
//
// A spec is either a single clause:
//
//	{"id": "posts_to_pages", "from": 10}
//	{"id": "posts_to_pages", "to": [20, 21], "sibling": true}
//
// or a compound spec whose clauses sit under numeric keys:
//
//	{"relation": "OR", "0": {"id": "a", "from": 1}, "1": {"id": "b", "to": 2}}
//
// Each clause names exactly one of "from" or "to". Its value is an id, a
// host object, or a list of either. Relationship ids are resolved against a
// registry.Registry; an unknown id is an error.
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/registry"
)

// Normalizer resolves specs against a registry.
type Normalizer struct {
	registry *registry.Registry
}

// New creates a Normalizer backed by reg.
func New(reg *registry.Registry) *Normalizer {
	return &Normalizer{registry: reg}
}

// Spec keys.
const (
	KeyID       = "id"
	KeyFrom     = "from"
	KeyTo       = "to"
	KeySibling  = "sibling"
	KeyRelation = "relation"
)

// DecodeJSON decodes a JSON object spec for Normalize. Numbers decode as
// json.Number so large ids keep full precision.
func DecodeJSON(data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var spec map[string]any
	if err := decoder.Decode(&spec); err != nil {
		return nil, specErrorf(CodeMalformedSpec, "", "decode JSON spec: %v", err)
	}
	return spec, nil
}

// Normalize converts spec into a canonical query.
func (n *Normalizer) Normalize(spec map[string]any) (ir.Query, error) {
	if len(spec) == 0 {
		return ir.Query{}, specErrorf(CodeMalformedSpec, "", "spec is empty")
	}

	leaves, relation, err := splitCompound(spec)
	if err != nil {
		return ir.Query{}, err
	}

	q := ir.Query{Relation: relation, Clauses: make([]ir.Clause, 0, len(leaves))}
	for _, leaf := range leaves {
		clause, err := n.normalizeClause(leaf.spec, leaf.path)
		if err != nil {
			return ir.Query{}, err
		}
		q.Clauses = append(q.Clauses, clause)
	}

	if q.IsCompound() {
		for i, c := range q.Clauses {
			if c.Sibling {
				return ir.Query{}, specErrorf(CodeMixedShape, leaves[i].path+"."+KeySibling,
					"sibling clauses cannot be combined with other clauses")
			}
		}
	}

	return q, nil
}

type leafSpec struct {
	path string
	spec map[string]any
}

// splitCompound separates a spec into its leaf clauses and relation.
func splitCompound(spec map[string]any) ([]leafSpec, ir.Relation, error) {
	relRaw, hasRelation := spec[KeyRelation]

	keyByIndex := map[int]string{}
	var indexes []int
	for key := range spec {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			continue
		}
		if other, dup := keyByIndex[idx]; dup {
			return nil, "", specErrorf(CodeMalformedSpec, key, "clause index collides with %q", other)
		}
		keyByIndex[idx] = key
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	_, hasID := spec[KeyID]
	if len(indexes) == 0 {
		if hasRelation {
			return nil, "", specErrorf(CodeMalformedSpec, KeyRelation, "relation given without any numbered clauses")
		}
		return []leafSpec{{path: "", spec: spec}}, ir.RelationAnd, nil
	}
	if hasID {
		return nil, "", specErrorf(CodeMixedShape, KeyID, "spec mixes a single clause with numbered clauses")
	}

	relation := ir.RelationAnd
	if hasRelation {
		relStr, ok := relRaw.(string)
		if !ok {
			return nil, "", specErrorf(CodeInvalidRelation, KeyRelation, "relation must be a string, got %T", relRaw)
		}
		parsed, err := ir.ParseRelation(relStr)
		if err != nil {
			return nil, "", specErrorf(CodeInvalidRelation, KeyRelation, "%v", err)
		}
		relation = parsed
	} else if len(indexes) > 1 {
		return nil, "", specErrorf(CodeMalformedSpec, KeyRelation, "%d clauses given without a relation", len(indexes))
	}

	for key := range spec {
		if key == KeyRelation {
			continue
		}
		if idx, err := strconv.Atoi(key); err != nil || idx < 0 {
			return nil, "", specErrorf(CodeMixedShape, key, "unexpected key in compound spec")
		}
	}

	leaves := make([]leafSpec, 0, len(indexes))
	for _, idx := range indexes {
		key := keyByIndex[idx]
		raw := spec[key]
		clause, ok := raw.(map[string]any)
		if !ok {
			return nil, "", specErrorf(CodeMalformedSpec, key, "clause must be an object, got %T", raw)
		}
		leaves = append(leaves, leafSpec{path: key, spec: clause})
	}
	return leaves, relation, nil
}

// normalizeClause resolves one leaf spec.
func (n *Normalizer) normalizeClause(spec map[string]any, path string) (ir.Clause, error) {
	field := func(key string) string {
		if path == "" {
			return key
		}
		return path + "." + key
	}

	rawID, ok := spec[KeyID]
	if !ok {
		return ir.Clause{}, specErrorf(CodeMalformedSpec, field(KeyID), "relationship id is required")
	}
	id, ok := rawID.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return ir.Clause{}, specErrorf(CodeMalformedSpec, field(KeyID), "relationship id must be a non-empty string")
	}

	fromRaw, hasFrom := spec[KeyFrom]
	toRaw, hasTo := spec[KeyTo]
	var direction ir.Direction
	var itemsRaw any
	switch {
	case hasFrom && hasTo:
		return ir.Clause{}, specErrorf(CodeAmbiguousDirection, field(KeyFrom), "exactly one of from or to is allowed")
	case hasFrom:
		direction, itemsRaw = ir.From, fromRaw
	case hasTo:
		direction, itemsRaw = ir.To, toRaw
	default:
		return ir.Clause{}, specErrorf(CodeMissingDirection, field(KeyFrom), "one of from or to is required")
	}

	rel, err := n.registry.Lookup(id)
	if err != nil {
		return ir.Clause{}, fmt.Errorf("normalize %s: %w", field(KeyID), err)
	}

	items, err := resolveItems(itemsRaw, rel.ObjectType(direction), field(direction.String()))
	if err != nil {
		return ir.Clause{}, err
	}

	sibling, err := truthy(spec[KeySibling])
	if err != nil {
		return ir.Clause{}, specErrorf(CodeMalformedSpec, field(KeySibling), "%v", err)
	}

	return ir.Clause{
		ID:         rel.ID,
		Direction:  direction,
		Items:      items,
		Reciprocal: rel.Reciprocal,
		Sibling:    sibling,
		AnchorType: rel.ObjectType(direction),
		TargetType: rel.ObjectType(direction.Opposite()),
	}, nil
}

// truthy reads a flag value. Absent, false, 0 and "" are false.
func truthy(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "0", "false", "no":
			return false, nil
		default:
			return true, nil
		}
	case json.Number:
		return b.String() != "0", nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("flag must be a boolean, got %T", v)
	}
}
