package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/mbrel/internal/host"
	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/registry"
	"github.com/roach88/mbrel/internal/relationships"
	"github.com/roach88/mbrel/internal/store"
	"github.com/roach88/mbrel/internal/testutil"
)

// Harness executes one scenario against a fresh service.
type Harness struct {
	store   *store.Store
	service *relationships.Service
	seq     *testutil.Sequence
	logger  *slog.Logger
}

// Table is the edge table scenarios run against.
const Table = host.DefaultPrefix + store.DefaultTable

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. An error is returned
// only when the scenario cannot be set up; failed expectations are
// reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:", store.WithTable(Table), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	reg := registry.New(registry.WithLogger(logger))
	if scenario.RelationshipsFile != "" {
		if _, err := reg.LoadFile(scenario.RelationshipsFile); err != nil {
			return nil, fmt.Errorf("failed to load relationships: %w", err)
		}
	}
	for _, def := range scenario.Relationships {
		if _, err := reg.Register(def); err != nil {
			return nil, fmt.Errorf("failed to register %q: %w", def.ID, err)
		}
	}

	h := &Harness{
		store:   st,
		service: relationships.New(reg, st, relationships.WithLogger(logger)),
		seq:     testutil.NewSequence(),
		logger:  logger,
	}

	ctx := context.Background()
	for i, e := range scenario.Setup {
		if !h.service.AddEdge(ctx, e.From, e.To, e.ID) {
			return nil, fmt.Errorf("setup[%d]: connect %s %d->%d: %v", i, e.ID, e.From, e.To, h.service.LastError())
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		out := h.execute(ctx, step)
		ev := TraceEvent{Seq: h.seq.Next(), Op: step.Op, Args: out.args, Result: out.String()}
		ev.Failed = out.err != nil
		result.AddTrace(ev)

		for _, msg := range checkExpect(step, out) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
		}
		h.logger.Debug("step completed", "seq", ev.Seq, "op", step.Op, "failed", ev.Failed)
	}

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// outcome is what one step produced.
type outcome struct {
	args      string
	ok        *bool
	ids       []int64
	each      map[int64][]int64
	count     *int64
	statement string
	err       error
}

// String renders the outcome for the trace.
func (o outcome) String() string {
	switch {
	case o.err != nil:
		return "error: " + o.err.Error()
	case o.ok != nil:
		return fmt.Sprint(*o.ok)
	case o.each != nil:
		return formatEach(o.each)
	case o.count != nil:
		return fmt.Sprint(*o.count)
	case o.statement != "":
		return o.statement
	case o.ids != nil:
		return fmt.Sprint(o.ids)
	default:
		return "ok"
	}
}

func (h *Harness) execute(ctx context.Context, step Step) outcome {
	svc := h.service
	switch step.Op {
	case OpConnect, OpDisconnect, OpHas:
		e := step.Edge
		out := outcome{args: fmt.Sprintf("%s %d->%d", e.ID, e.From, e.To)}
		var ok bool
		switch step.Op {
		case OpConnect:
			ok = svc.AddEdge(ctx, e.From, e.To, e.ID)
		case OpDisconnect:
			ok = svc.DeleteEdge(ctx, e.From, e.To, e.ID)
		default:
			ok = svc.HasEdge(ctx, e.From, e.To, e.ID)
		}
		if err := svc.LastError(); err != nil {
			out.err = err
			return out
		}
		out.ok = &ok
		return out

	case OpConnected:
		out := outcome{args: formatSpec(step.Spec)}
		ids, err := svc.GetConnected(ctx, step.Spec)
		if ids == nil {
			ids = []int64{}
		}
		out.ids, out.err = ids, err
		return out

	case OpEachConnected:
		out := outcome{args: formatSpec(step.Spec)}
		out.each, out.err = svc.EachConnected(ctx, step.Spec)
		return out

	case OpClauses:
		out := outcome{args: step.Host + " " + formatSpec(step.Spec)}
		if step.PassThrough {
			out.args += " pass_through"
		}
		a, err := host.For(ir.ObjectType(step.Host), host.DefaultPrefix)
		if err != nil {
			out.err = err
			return out
		}
		clauses, err := svc.BuildClauses(ctx, step.Spec, a, a.Base(), step.PassThrough)
		if err != nil {
			out.err = err
			return out
		}
		out.statement = a.Statement(clauses)
		return out

	case OpDeleteObject:
		out := outcome{args: fmt.Sprintf("%s %d", step.ObjectType, step.Object)}
		n, err := svc.DeleteObject(ctx, step.Object, ir.ObjectType(step.ObjectType))
		out.count, out.err = &n, err
		return out

	case OpReplace:
		out := outcome{args: fmt.Sprintf("%s %d %s %v", step.Relationship, step.Object, step.Side, step.IDs)}
		side, err := ir.ParseDirection(step.Side)
		if err != nil {
			out.err = err
			return out
		}
		out.err = svc.Replace(ctx, step.Object, step.Relationship, side, step.IDs)
		return out

	default:
		return outcome{err: fmt.Errorf("unknown op %q", step.Op)}
	}
}

// formatSpec renders a spec as compact JSON with sorted keys.
func formatSpec(spec map[string]any) string {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Sprint(spec)
	}
	return string(data)
}

// formatEach renders anchors in ascending order: "1:[10 11] 2:[]".
func formatEach(each map[int64][]int64) string {
	anchors := make([]int64, 0, len(each))
	for a := range each {
		anchors = append(anchors, a)
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i] < anchors[j] })

	parts := make([]string, len(anchors))
	for i, a := range anchors {
		parts[i] = fmt.Sprintf("%d:%v", a, each[a])
	}
	return strings.Join(parts, " ")
}
