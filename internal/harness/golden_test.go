package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"posts_to_pages", "host_clauses"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	got := Snapshot("demo", []TraceEvent{
		{Seq: 1, Op: OpHas, Args: "a 1->2", Result: "true"},
		{Seq: 2, Op: OpConnected, Args: `{"from":1,"id":"a"}`, Result: "[]"},
	})

	assert.Equal(t, "scenario: demo\n"+
		"[1] has a 1->2\n"+
		"    true\n"+
		"[2] connected {\"from\":1,\"id\":\"a\"}\n"+
		"    []\n", string(got))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/queries.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, Snapshot(scenario.Name, first.Trace), Snapshot(scenario.Name, second.Trace))
}
