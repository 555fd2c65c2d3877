// Package host splices compiled relationship fragments into the clause
// sets of the three host query types: posts, terms and users.
//
// Each host owns a different set of clause slots. Posts expose every slot;
// terms have no GROUP BY slot and own the ORDER BY keyword; users only
// expose their FROM and WHERE.
package host

import (
	"fmt"

	"github.com/roach88/mbrel/internal/clause"
	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/queryir"
	"github.com/roach88/mbrel/internal/querysql"
)

// Clauses is a host query's clause set. Fields, Join, Where and GroupBy
// are appended to; OrderBy is replaced.
type Clauses struct {
	Fields  string `json:"fields,omitempty"`
	Join    string `json:"join,omitempty"`
	Where   string `json:"where,omitempty"`
	GroupBy string `json:"groupby,omitempty"`
	OrderBy string `json:"orderby,omitempty"`
}

// Adapter plugs compiled fragments into one kind of host query.
type Adapter interface {
	// Host is the id column and object type fragments must be built for.
	Host() clause.Host

	// Apply returns base with c spliced in.
	Apply(base Clauses, c querysql.Compiled) Clauses

	// Base is the clause set of an unfiltered host query.
	Base() Clauses

	// Statement assembles a clause set into the statement the host runs.
	Statement(c Clauses) string
}

// DefaultPrefix is the conventional host table prefix.
const DefaultPrefix = "wp_"

// For returns the adapter for hosts selecting objects of type t.
func For(t ir.ObjectType, prefix string) (Adapter, error) {
	switch t {
	case ir.ObjectPost:
		return NewPost(prefix), nil
	case ir.ObjectTerm:
		return NewTerm(prefix), nil
	case ir.ObjectUser:
		return NewUser(prefix), nil
	default:
		return nil, fmt.Errorf("no host adapter for object type %q", t)
	}
}

// Post adapts post queries.
type Post struct {
	table string
}

// NewPost returns the post adapter for the posts table with prefix.
func NewPost(prefix string) Post {
	return Post{table: prefix + "posts"}
}

func (p Post) Host() clause.Host {
	return clause.Host{Column: queryir.Col(p.table, "ID"), Type: ir.ObjectPost}
}

func (p Post) Apply(base Clauses, c querysql.Compiled) Clauses {
	out := base
	out.Fields = appendList(base.Fields, c.Fields)
	out.Join = appendJoin(base.Join, c.Join)
	out.Where = appendWhere(base.Where, c.Where)
	out.GroupBy = appendList(base.GroupBy, c.GroupBy)
	if !c.PassThroughOrder && c.OrderBy != "" {
		out.OrderBy = c.OrderBy
	}
	return out
}

func (p Post) Base() Clauses {
	return Clauses{Fields: p.table + ".*"}
}

func (p Post) Statement(c Clauses) string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s WHERE 1=1%s", c.Fields, p.table, c.Join, c.Where)
	if c.GroupBy != "" {
		sql += " GROUP BY " + c.GroupBy
	}
	if c.OrderBy != "" {
		sql += " ORDER BY " + c.OrderBy
	}
	return sql
}

// Term adapts term queries.
//
// The term query prefixes nothing to its orderby slot and appends its own
// order direction after it, so the slot carries the ORDER BY keyword and
// the final term is left without a direction. It has no GROUP BY slot, so
// the edges are joined as a derived table holding one row per term.
type Term struct {
	prefix string
}

// NewTerm returns the term adapter for the term tables with prefix.
func NewTerm(prefix string) Term {
	return Term{prefix: prefix}
}

func (Term) Host() clause.Host {
	return clause.Host{Column: queryir.Col("t", "term_id"), Type: ir.ObjectTerm, Derived: true}
}

func (Term) Apply(base Clauses, c querysql.Compiled) Clauses {
	out := base
	out.Fields = appendList(base.Fields, c.Fields)
	out.Join = appendJoin(base.Join, c.Join)
	out.Where = appendWhere(base.Where, c.Where)
	if !c.PassThroughOrder {
		if order := c.OrderByOpenEnded(); order != "" {
			out.OrderBy = "ORDER BY " + order
		}
	}
	return out
}

func (t Term) Base() Clauses {
	return Clauses{Fields: "t.*, tt.*", Join: " INNER JOIN " + t.prefix + "term_taxonomy AS tt ON t.term_id = tt.term_id"}
}

// Statement renders the term query with its default ASC direction appended
// to the orderby slot.
func (t Term) Statement(c Clauses) string {
	sql := fmt.Sprintf("SELECT %s FROM %sterms AS t%s WHERE 1=1%s", c.Fields, t.prefix, c.Join, c.Where)
	if c.OrderBy != "" {
		sql += " " + c.OrderBy + " ASC"
	}
	return sql
}

// User adapts user queries. Only the FROM (Join) and WHERE slots are
// available; ordering is left to the host.
type User struct {
	table string
}

// NewUser returns the user adapter for the users table with prefix.
func NewUser(prefix string) User {
	return User{table: prefix + "users"}
}

func (u User) Host() clause.Host {
	return clause.Host{Column: queryir.Col(u.table, "ID"), Type: ir.ObjectUser}
}

func (u User) Apply(base Clauses, c querysql.Compiled) Clauses {
	out := base
	out.Join = appendJoin(base.Join, c.Join)
	out.Where = appendWhere(base.Where, c.Where)
	return out
}

func (u User) Base() Clauses {
	return Clauses{Join: "FROM " + u.table, Where: "WHERE 1=1"}
}

func (u User) Statement(c Clauses) string {
	return fmt.Sprintf("SELECT DISTINCT %s.* %s %s", u.table, c.Join, c.Where)
}

func appendList(base, add string) string {
	switch {
	case add == "":
		return base
	case base == "":
		return add
	default:
		return base + ", " + add
	}
}

func appendJoin(base, add string) string {
	if add == "" {
		return base
	}
	return base + " " + add
}

// appendWhere follows the host convention of WHERE slots holding a series
// of " AND ..." conditions after a constant true.
func appendWhere(base, add string) string {
	if add == "" {
		return base
	}
	return base + " AND (" + add + ")"
}
