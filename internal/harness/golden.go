package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a trace as the text stored in golden files:
//
//	scenario: posts_to_pages
//	[1] connected {"from":10,"id":"posts_to_pages"}
//	    [20]
func Snapshot(name string, trace []TraceEvent) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	for _, ev := range trace {
		fmt.Fprintf(&buf, "[%d] %s %s\n", ev.Seq, ev.Op, ev.Args)
		fmt.Fprintf(&buf, "    %s\n", ev.Result)
	}
	return []byte(buf.String())
}

// RunWithGolden runs a scenario, fails the test on any failed expectation
// and compares its trace with testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares an existing result's trace with the golden file
// named name.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result.Trace))
}
