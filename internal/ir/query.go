package ir

import (
	"fmt"
	"strings"
)

// Relation combines the clauses of a compound query.
type Relation string

const (
	RelationAnd Relation = "AND"
	RelationOr  Relation = "OR"
)

// ParseRelation parses "AND" or "OR" (case-insensitive).
func ParseRelation(s string) (Relation, error) {
	switch Relation(strings.ToUpper(strings.TrimSpace(s))) {
	case RelationAnd:
		return RelationAnd, nil
	case RelationOr:
		return RelationOr, nil
	default:
		return "", fmt.Errorf("invalid relation %q: must be AND or OR", s)
	}
}

// Clause is one canonical relationship condition.
//
// Direction is the anchor side: Items are the known object ids stored on
// that side, and the query searches the opposite side. A sibling clause
// searches the anchor side instead, for objects sharing a counterpart
// with Items.
type Clause struct {
	ID         string    `json:"id"`
	Direction  Direction `json:"direction"`
	Items      []int64   `json:"items"`
	Reciprocal bool      `json:"reciprocal"`
	Sibling    bool      `json:"sibling,omitempty"`

	// AnchorType and TargetType are the object types stored on the
	// anchor side and the opposite side.
	AnchorType ObjectType `json:"anchor_type"`
	TargetType ObjectType `json:"target_type"`
}

// Source is the edge column holding the anchor ids.
func (c Clause) Source() Direction {
	return c.Direction
}

// Target is the edge column holding the searched ids.
func (c Clause) Target() Direction {
	return c.Direction.Opposite()
}

// ResultType is the object type of the rows this clause selects.
func (c Clause) ResultType() ObjectType {
	if c.Sibling {
		return c.AnchorType
	}
	return c.TargetType
}

// IsEmpty reports whether the clause has no anchor ids and so matches nothing.
func (c Clause) IsEmpty() bool {
	return len(c.Items) == 0
}

// Query is a canonical relationship query: one or more clauses combined
// with Relation. Relation is always set; it is AND unless the caller asked
// for OR.
type Query struct {
	Relation Relation `json:"relation"`
	Clauses  []Clause `json:"clauses"`
}

// IsCompound reports whether more than one clause is present.
func (q Query) IsCompound() bool {
	return len(q.Clauses) > 1
}

// ResultType is the object type of the first clause's results.
func (q Query) ResultType() ObjectType {
	if len(q.Clauses) == 0 {
		return ""
	}
	return q.Clauses[0].ResultType()
}
