package store

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/roach88/mbrel/internal/ir"
)

// querier is the read/write surface shared by *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.ExecerContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Has reports whether the edge (from, to, typ) exists.
func (s *Store) Has(ctx context.Context, from, to int64, typ string) (bool, error) {
	return s.has(ctx, s.db, from, to, typ, false)
}

// HasEither reports whether a and b are connected through typ in either
// orientation.
func (s *Store) HasEither(ctx context.Context, a, b int64, typ string) (bool, error) {
	return s.has(ctx, s.db, a, b, typ, true)
}

// pair matches the edge (from, to), and (to, from) too when either is set.
func (s *Store) pair(c *sqlbuilder.Cond, from, to int64, either bool) string {
	direct := c.And(c.Equal(s.col("from"), from), c.Equal(s.col("to"), to))
	if !either {
		return direct
	}
	return c.Or(direct, c.And(c.Equal(s.col("from"), to), c.Equal(s.col("to"), from)))
}

func (s *Store) has(ctx context.Context, q querier, from, to int64, typ string, either bool) (bool, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(s.table)
	sb.Where(
		s.pair(&sb.Cond, from, to, either),
		sb.Equal(s.col("type"), typ),
	)
	query, args := sb.Build()

	var n int
	if err := q.GetContext(ctx, &n, query, args...); err != nil {
		return false, fmt.Errorf("has edge: %w", err)
	}
	return n > 0, nil
}

// Add inserts the edge (from, to, typ) unless it already exists. It
// reports whether a row was inserted.
//
// The new edge is placed last on both of its ends: order_from follows the
// other edges of from, order_to the other edges of to.
func (s *Store) Add(ctx context.Context, from, to int64, typ string) (bool, error) {
	return s.add(ctx, from, to, typ, false)
}

// AddEither is Add for relationships whose ends are interchangeable: no
// row is inserted when (to, from) is already stored.
func (s *Store) AddEither(ctx context.Context, from, to int64, typ string) (bool, error) {
	return s.add(ctx, from, to, typ, true)
}

func (s *Store) add(ctx context.Context, from, to int64, typ string, either bool) (bool, error) {
	if from <= 0 || to <= 0 {
		return false, fmt.Errorf("add edge (%d, %d): %w", from, to, ErrInvalidObject)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("add edge: begin: %w", err)
	}
	defer tx.Rollback()

	exists, err := s.has(ctx, tx, from, to, typ, either)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Debug("edge exists", "relationship", typ, "from", from, "to", to)
		return false, nil
	}

	orderFrom, err := s.nextOrder(ctx, tx, typ, ir.From, from)
	if err != nil {
		return false, err
	}
	orderTo, err := s.nextOrder(ctx, tx, typ, ir.To, to)
	if err != nil {
		return false, err
	}

	if err := s.insert(ctx, tx, ir.Edge{From: from, To: to, Type: typ, OrderFrom: orderFrom, OrderTo: orderTo}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("add edge: commit: %w", err)
	}

	s.logger.Info("edge added", "relationship", typ, "from", from, "to", to)
	return true, nil
}

// nextOrder returns one past the highest position on side d of anchor.
func (s *Store) nextOrder(ctx context.Context, q querier, typ string, d ir.Direction, anchor int64) (int64, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", s.col(d.OrderColumn())))
	sb.From(s.table)
	sb.Where(
		sb.Equal(s.col("type"), typ),
		sb.Equal(s.col(d.Column()), anchor),
	)
	query, args := sb.Build()

	var highest int64
	if err := q.GetContext(ctx, &highest, query, args...); err != nil {
		return 0, fmt.Errorf("next %s: %w", d.OrderColumn(), err)
	}
	return highest + 1, nil
}

func (s *Store) insert(ctx context.Context, q querier, e ir.Edge) error {
	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto(s.table)
	ib.Cols(s.col("from"), s.col("to"), s.col("type"), s.col("order_from"), s.col("order_to"))
	ib.Values(e.From, e.To, e.Type, e.OrderFrom, e.OrderTo)
	query, args := ib.Build()

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// Delete removes the edge (from, to, typ). It reports whether any row was
// removed.
func (s *Store) Delete(ctx context.Context, from, to int64, typ string) (bool, error) {
	return s.delete(ctx, from, to, typ, false)
}

// DeleteEither removes the edges between a and b of typ in both
// orientations.
func (s *Store) DeleteEither(ctx context.Context, a, b int64, typ string) (bool, error) {
	return s.delete(ctx, a, b, typ, true)
}

func (s *Store) delete(ctx context.Context, from, to int64, typ string, either bool) (bool, error) {
	del := s.flavor.NewDeleteBuilder()
	del.DeleteFrom(s.table)
	del.Where(
		s.pair(&del.Cond, from, to, either),
		del.Equal(s.col("type"), typ),
	)
	query, args := del.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete edge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete edge: %w", err)
	}
	if n > 0 {
		s.logger.Info("edge deleted", "relationship", typ, "from", from, "to", to, "rows", n)
	}
	return n > 0, nil
}

// Endpoint is one side of one relationship type.
type Endpoint struct {
	Type string
	Side ir.Direction
}

// DeleteObject removes every edge that has objectID stored on one of ends.
// All ends are cleared in one transaction. It returns the number of rows
// removed.
func (s *Store) DeleteObject(ctx context.Context, objectID int64, ends []Endpoint) (int64, error) {
	if len(ends) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete object: begin: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, end := range ends {
		del := s.flavor.NewDeleteBuilder()
		del.DeleteFrom(s.table)
		del.Where(
			del.Equal(s.col("type"), end.Type),
			del.Equal(s.col(end.Side.Column()), objectID),
		)
		query, args := del.Build()

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("delete object %d from %q %s: %w", objectID, end.Type, end.Side, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete object %d from %q %s: %w", objectID, end.Type, end.Side, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete object: commit: %w", err)
	}

	s.logger.Info("object edges deleted", "object", objectID, "ends", len(ends), "rows", total)
	return total, nil
}

// Replace sets the complete connection list of objectID on side for typ.
//
// Existing edges of objectID on that side are removed and ids are
// inserted in the given order with order_<side> = 1..n. A counterpart that
// was already connected keeps its order_<other> position; new
// counterparts get 0. Zero, negative and repeated ids are skipped.
func (s *Store) Replace(ctx context.Context, objectID int64, typ string, side ir.Direction, ids []int64) error {
	if objectID <= 0 {
		return fmt.Errorf("replace edges of %d: %w", objectID, ErrInvalidObject)
	}
	other := side.Opposite()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace edges: begin: %w", err)
	}
	defer tx.Rollback()

	sb := s.flavor.NewSelectBuilder()
	sb.Select(
		fmt.Sprintf("%s AS counterpart", s.col(other.Column())),
		fmt.Sprintf("%s AS position", s.col(other.OrderColumn())),
	)
	sb.From(s.table)
	sb.Where(
		sb.Equal(s.col("type"), typ),
		sb.Equal(s.col(side.Column()), objectID),
	)
	query, args := sb.Build()

	var existing []struct {
		Counterpart int64 `db:"counterpart"`
		Position    int64 `db:"position"`
	}
	if err := tx.SelectContext(ctx, &existing, query, args...); err != nil {
		return fmt.Errorf("replace edges: read existing: %w", err)
	}
	kept := make(map[int64]int64, len(existing))
	for _, e := range existing {
		kept[e.Counterpart] = e.Position
	}

	del := s.flavor.NewDeleteBuilder()
	del.DeleteFrom(s.table)
	del.Where(
		del.Equal(s.col("type"), typ),
		del.Equal(s.col(side.Column()), objectID),
	)
	query, args = del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("replace edges: clear: %w", err)
	}

	seen := make(map[int64]struct{}, len(ids))
	var position int64
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		position++

		e := ir.Edge{Type: typ}
		e.SetEnd(side, objectID)
		e.SetEnd(other, id)
		e.SetOrder(side, position)
		e.SetOrder(other, kept[id])
		if err := s.insert(ctx, tx, e); err != nil {
			return fmt.Errorf("replace edges: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace edges: commit: %w", err)
	}

	s.logger.Info("edges replaced", "relationship", typ, "object", objectID, "side", side.String(), "count", position)
	return nil
}
