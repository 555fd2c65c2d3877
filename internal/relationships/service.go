// Package relationships is the public face of mbrel. A Service ties a
// relationship Registry to an edge Store and answers the questions host
// code asks about connected objects: is A connected to B, what is
// connected to these objects, and which clauses restrict a host query to
// them.
//
// Storage failures on the edge operations (HasEdge, AddEdge, DeleteEdge)
// are reported as a plain false; the cause is kept and returned by
// LastError. Every other operation returns its error.
package relationships

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/huandu/go-sqlbuilder"

	"github.com/roach88/mbrel/internal/clause"
	"github.com/roach88/mbrel/internal/host"
	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/normalizer"
	"github.com/roach88/mbrel/internal/querysql"
	"github.com/roach88/mbrel/internal/registry"
	"github.com/roach88/mbrel/internal/store"
)

// Service answers relationship operations for one registry and store.
// It is safe for concurrent use.
type Service struct {
	registry   *registry.Registry
	normalizer *normalizer.Normalizer
	store      *store.Store
	builder    *clause.Builder
	flavor     sqlbuilder.Flavor
	logger     *slog.Logger

	mu      sync.Mutex
	lastErr error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service and its builder.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHostFlavor sets the SQL flavor BuildClauses renders host fragments
// in. The default is MySQL.
func WithHostFlavor(flavor sqlbuilder.Flavor) Option {
	return func(s *Service) {
		s.flavor = flavor
	}
}

// New creates a Service over reg and st. The builder joins st's edge
// table and pre-resolves AND clauses through the service itself.
func New(reg *registry.Registry, st *store.Store, opts ...Option) *Service {
	s := &Service{
		registry:   reg,
		normalizer: normalizer.New(reg),
		store:      st,
		flavor:     sqlbuilder.MySQL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = clause.New(
		clause.WithTable(st.Table()),
		clause.WithResolver(s),
		clause.WithLogger(s.logger),
	)
	return s
}

// Registry returns the registry the service resolves ids against.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Register adds def to the registry. A later definition with the same id
// replaces the earlier one.
func (s *Service) Register(def registry.Definition) (ir.Relationship, error) {
	return s.registry.Register(def)
}

// LastError returns the cause of the most recent edge operation that
// reported false because of a failure, or nil.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// edgeFunc is one store edge operation.
type edgeFunc func(ctx context.Context, from, to int64, typ string) (bool, error)

// edgeOp runs one edge operation for a registered relationship, turning
// failures into false. Reciprocal relationships run either, which matches
// the pair in both orientations.
func (s *Service) edgeOp(ctx context.Context, op string, from, to int64, typ string, exact, either edgeFunc) bool {
	rel, err := s.registry.Lookup(typ)
	if err != nil {
		s.setLastError(err)
		s.logger.Warn("edge operation on unknown relationship", "op", op, "relationship", typ)
		return false
	}

	fn := exact
	if rel.Reciprocal {
		fn = either
	}
	ok, err := fn(ctx, from, to, rel.ID)
	if err != nil {
		s.setLastError(fmt.Errorf("%s edge %d->%d %q: %w", op, from, to, rel.ID, err))
		s.logger.Warn("edge operation failed",
			"op", op,
			"relationship", rel.ID,
			"from", from,
			"to", to,
			"error", err)
		return false
	}
	s.setLastError(nil)
	return ok
}

// HasEdge reports whether from is connected to to through typ. For
// reciprocal relationships the order of from and to does not matter.
func (s *Service) HasEdge(ctx context.Context, from, to int64, typ string) bool {
	return s.edgeOp(ctx, "has", from, to, typ, s.store.Has, s.store.HasEither)
}

// AddEdge connects from to to through typ. It returns false when the edge
// already exists, in either orientation for reciprocal relationships, or
// cannot be stored.
func (s *Service) AddEdge(ctx context.Context, from, to int64, typ string) bool {
	return s.edgeOp(ctx, "add", from, to, typ, s.store.Add, s.store.AddEither)
}

// DeleteEdge removes the edge from to through typ, in both orientations
// for reciprocal relationships. It returns false when there was no such
// edge or it cannot be removed.
func (s *Service) DeleteEdge(ctx context.Context, from, to int64, typ string) bool {
	return s.edgeOp(ctx, "delete", from, to, typ, s.store.Delete, s.store.DeleteEither)
}

// List returns the ids stored opposite objectID on edges of typ that hold
// objectID on side, in that side's stored order. Reciprocal edges stored
// the other way round are not listed; GetConnected covers both.
func (s *Service) List(ctx context.Context, objectID int64, typ string, side ir.Direction) ([]int64, error) {
	rel, err := s.registry.Lookup(typ)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, objectID, rel.ID, side)
}

// Resolve returns the ids of the objects c selects, in id order. The
// builder calls it for the clauses of an AND query it cannot join.
func (s *Service) Resolve(ctx context.Context, c ir.Clause) ([]int64, error) {
	q := ir.Query{Relation: ir.RelationAnd, Clauses: []ir.Clause{c}}
	rows, err := s.connected(ctx, q, clause.Options{PassThroughOrder: true})
	if err != nil {
		return nil, err
	}
	return rowIDs(rows), nil
}

// GetConnected returns the ids of the objects connected as spec
// describes, in connection order. An empty anchor list yields no ids.
func (s *Service) GetConnected(ctx context.Context, spec map[string]any) ([]int64, error) {
	q, err := s.normalizer.Normalize(spec)
	if err != nil {
		return nil, err
	}
	rows, err := s.connected(ctx, q, clause.Options{})
	if err != nil {
		return nil, err
	}
	return rowIDs(rows), nil
}

// EachConnected runs a single-clause spec and returns, for every anchor
// in it, the ids connected to that anchor in connection order.
func (s *Service) EachConnected(ctx context.Context, spec map[string]any) (map[int64][]int64, error) {
	q, err := s.normalizer.Normalize(spec)
	if err != nil {
		return nil, err
	}
	if q.IsCompound() || q.Clauses[0].Sibling {
		return nil, &normalizer.SpecError{
			Code:    normalizer.CodeMixedShape,
			Message: "each connected takes one non-sibling clause",
		}
	}

	rows, err := s.connected(ctx, q, clause.Options{KeepOrigins: true})
	if err != nil {
		return nil, err
	}

	byAnchor := clause.Distribute(q.Clauses[0].Items, rows, func(r store.ConnectedRow) (int64, bool) {
		return r.Origin, true
	})
	out := make(map[int64][]int64, len(byAnchor))
	for anchor, list := range byAnchor {
		out[anchor] = rowIDs(list)
	}
	return out, nil
}

func (s *Service) connected(ctx context.Context, q ir.Query, opts clause.Options) ([]store.ConnectedRow, error) {
	frag, err := s.builder.Build(ctx, q, s.store.Host(), opts)
	if err != nil {
		return nil, err
	}
	return s.store.Connected(ctx, frag)
}

// BuildClauses returns the clauses that restrict a host query of the
// adapter's kind to the objects spec selects, spliced into base. When
// passThrough is set the host keeps its own ordering.
func (s *Service) BuildClauses(ctx context.Context, spec map[string]any, a host.Adapter, base host.Clauses, passThrough bool) (host.Clauses, error) {
	q, err := s.normalizer.Normalize(spec)
	if err != nil {
		return host.Clauses{}, err
	}

	frag, err := s.builder.Build(ctx, q, a.Host(), clause.Options{PassThroughOrder: passThrough})
	if err != nil {
		return host.Clauses{}, err
	}

	compiled, err := querysql.New(s.flavor, querysql.WithInterpolation()).Compile(frag)
	if err != nil {
		return host.Clauses{}, fmt.Errorf("compile clauses: %w", err)
	}
	s.logger.Debug("clauses built",
		"host", a.Host().Type,
		"clauses", len(q.Clauses),
		"relation", q.Relation)

	return a.Apply(base, compiled), nil
}

// Distribute partitions host rows carrying the origin marker onto the
// anchors they were connected through.
func (s *Service) Distribute(anchors []int64, rows []map[string]any) map[int64][]map[string]any {
	return clause.DistributeMaps(anchors, rows, clause.OriginField)
}

// DeleteObject removes every edge that has objectID on a side of
// objectType. Hosts call it when the object is deleted, before its id can
// be reused.
func (s *Service) DeleteObject(ctx context.Context, objectID int64, objectType ir.ObjectType) (int64, error) {
	var ends []store.Endpoint
	for _, rel := range s.registry.FilterBy(objectType) {
		for _, side := range []ir.Direction{ir.From, ir.To} {
			if rel.ObjectType(side) == objectType {
				ends = append(ends, store.Endpoint{Type: rel.ID, Side: side})
			}
		}
	}
	return s.store.DeleteObject(ctx, objectID, ends)
}

// Replace sets the full, ordered list of objects connected to objectID
// on side of typ.
func (s *Service) Replace(ctx context.Context, objectID int64, typ string, side ir.Direction, ids []int64) error {
	rel, err := s.registry.Lookup(typ)
	if err != nil {
		return err
	}
	return s.store.Replace(ctx, objectID, rel.ID, side, ids)
}

func rowIDs(rows []store.ConnectedRow) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
