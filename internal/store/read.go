package store

import (
	"context"
	"fmt"

	"github.com/roach88/mbrel/internal/clause"
	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/queryir"
	"github.com/roach88/mbrel/internal/querysql"
)

// ObjectsAlias is the alias of the virtual objects table Connected runs
// against.
const ObjectsAlias = "objects"

// ConnectedRow is one object returned by Connected.
type ConnectedRow struct {
	ID     int64 `db:"ID" json:"id"`
	Origin int64 `db:"mb_origin" json:"origin"`
	Order  int64 `db:"mb_order" json:"order,omitempty"`
}

// List returns the ids connected to anchor through typ, where anchor is
// stored on side d. The ids come from the opposite side, in ascending
// order_<d> order.
func (s *Store) List(ctx context.Context, anchor int64, typ string, d ir.Direction) ([]int64, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select(s.col(d.Opposite().Column()))
	sb.From(s.table)
	sb.Where(
		sb.Equal(s.col("type"), typ),
		sb.Equal(s.col(d.Column()), anchor),
	)
	sb.OrderBy(s.col(d.OrderColumn()), s.col("ID")).Asc()
	query, args := sb.Build()

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list %s edges of %d: %w", typ, anchor, err)
	}
	return ids, nil
}

// Edges returns every edge of typ, or of all types when typ is empty,
// ordered by ID.
func (s *Store) Edges(ctx context.Context, typ string) ([]ir.Edge, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select(s.col("ID"), s.col("from"), s.col("to"), s.col("type"), s.col("order_from"), s.col("order_to"))
	sb.From(s.table)
	if typ != "" {
		sb.Where(sb.Equal(s.col("type"), typ))
	}
	sb.OrderBy(s.col("ID")).Asc()
	query, args := sb.Build()

	var edges []ir.Edge
	if err := s.db.SelectContext(ctx, &edges, query, args...); err != nil {
		return nil, fmt.Errorf("read edges: %w", err)
	}
	return edges, nil
}

// Host is the host Connected runs built fragments against: a virtual
// table of every object id present in the edge table.
func (s *Store) Host() clause.Host {
	return clause.Host{Column: queryir.Col(ObjectsAlias, querysql.IDAlias)}
}

func (s *Store) objects() querysql.Source {
	from, to, id := s.col("from"), s.col("to"), s.col(querysql.IDAlias)
	return querysql.Source{
		SQL:      fmt.Sprintf("(SELECT %s AS %s FROM %s UNION SELECT %s FROM %s)", from, id, s.table, to, s.table),
		Alias:    ObjectsAlias,
		IDColumn: querysql.IDAlias,
	}
}

// Connected runs fragments built against Host and returns the matching
// objects in result order. Object id is appended as a final tie-break so
// equal positions are returned deterministically.
func (s *Store) Connected(ctx context.Context, frag queryir.Fragments) ([]ConnectedRow, error) {
	host := s.Host().Column
	if !frag.PassThroughOrder {
		var last queryir.Expr
		if n := len(frag.OrderBy); n > 0 {
			last = frag.OrderBy[n-1].Expr
		}
		if col, ok := last.(queryir.Column); !ok || col != host {
			frag.OrderBy = append(append([]queryir.Order(nil), frag.OrderBy...), queryir.Order{Expr: host, Dir: queryir.Asc})
		}
	}

	query, args, err := querysql.New(s.flavor).Select(s.objects(), frag)
	if err != nil {
		return nil, fmt.Errorf("connected: %w", err)
	}
	s.logger.Debug("connected query", "sql", query, "args", len(args))

	var rows []ConnectedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("connected: %w", err)
	}
	return rows, nil
}
