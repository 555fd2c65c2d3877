package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/mbrel/internal/store"
)

// AssertionError is returned when an assertion fails. It carries the
// trace so the failure can be read against the steps that led to it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s => %s\n", ev.Seq, ev.Op, ev.Args, ev.Result)
		}
	}
	return buf.String()
}

// checkExpect compares a step outcome to its expect block and returns one
// message per mismatch.
func checkExpect(step Step, out outcome) []string {
	exp := step.Expect
	if exp == nil {
		if out.err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", out.err)}
		}
		return nil
	}

	if exp.Error != "" {
		switch {
		case out.err == nil:
			return []string{fmt.Sprintf("expected error containing %q, got %s", exp.Error, out)}
		case !strings.Contains(out.err.Error(), exp.Error):
			return []string{fmt.Sprintf("expected error containing %q, got %q", exp.Error, out.err)}
		}
		return nil
	}
	if out.err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", out.err)}
	}

	var msgs []string
	if exp.OK != nil && (out.ok == nil || *out.ok != *exp.OK) {
		msgs = append(msgs, fmt.Sprintf("expected %v, got %s", *exp.OK, out))
	}
	if exp.IDs != nil && !reflect.DeepEqual(exp.IDs, out.ids) {
		msgs = append(msgs, fmt.Sprintf("expected ids %v, got %v", exp.IDs, out.ids))
	}
	if exp.Set != nil && !sameSet(exp.Set, out.ids) {
		msgs = append(msgs, fmt.Sprintf("expected ids %v in any order, got %v", exp.Set, out.ids))
	}
	if exp.Empty && len(out.ids) > 0 {
		msgs = append(msgs, fmt.Sprintf("expected no ids, got %v", out.ids))
	}
	if exp.Each != nil && !sameEach(exp.Each, out.each) {
		msgs = append(msgs, fmt.Sprintf("expected %s, got %s", formatEach(exp.Each), formatEach(out.each)))
	}
	if exp.Count != nil && (out.count == nil || *out.count != *exp.Count) {
		msgs = append(msgs, fmt.Sprintf("expected count %d, got %s", *exp.Count, out))
	}
	for _, sub := range exp.Contains {
		if !strings.Contains(out.statement, sub) {
			msgs = append(msgs, fmt.Sprintf("expected statement to contain %q, got %q", sub, out.statement))
		}
	}
	return msgs
}

func sameSet(want, got []int64) bool {
	if len(want) != len(got) {
		return false
	}
	a := append([]int64(nil), want...)
	b := append([]int64(nil), got...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return reflect.DeepEqual(a, b)
}

func sameEach(want, got map[int64][]int64) bool {
	if len(want) != len(got) {
		return false
	}
	for anchor, ids := range want {
		actual, ok := got[anchor]
		if !ok || len(ids) != len(actual) {
			return false
		}
		for i := range ids {
			if ids[i] != actual[i] {
				return false
			}
		}
	}
	return true
}

// EvaluateAssertions checks every assertion against the stored edges and
// returns one message per failure.
func EvaluateAssertions(ctx context.Context, st *store.Store, result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEdgeExists, AssertEdgeMissing:
			err = assertEdge(ctx, st, a, result.Trace)
		case AssertEdgeCount:
			err = assertEdgeCount(ctx, st, a, result.Trace)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertEdge(ctx context.Context, st *store.Store, a Assertion, trace []TraceEvent) error {
	e := a.Edge
	has, err := st.Has(ctx, e.From, e.To, e.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}

	want := a.Type == AssertEdgeExists
	if has != want {
		state := map[bool]string{true: "stored", false: "not stored"}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("edge %s %d->%d %s", e.ID, e.From, e.To, state[want]),
			Actual:   state[has],
			Trace:    trace,
		}
	}
	return nil
}

func assertEdgeCount(ctx context.Context, st *store.Store, a Assertion, trace []TraceEvent) error {
	edges, err := st.Edges(ctx, a.Relationship)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}

	n := 0
	for _, e := range edges {
		if a.Object == 0 || e.From == a.Object || e.To == a.Object {
			n++
		}
	}
	if n != a.Count {
		scope := "edges"
		if a.Relationship != "" {
			scope += " of " + a.Relationship
		}
		if a.Object != 0 {
			scope += fmt.Sprintf(" touching %d", a.Object)
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s", a.Count, scope),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    trace,
		}
	}
	return nil
}
