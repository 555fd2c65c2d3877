package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mbrel/internal/harness"
)

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run relationship scenarios",
		Long: `Run scenario files against a fresh in-memory database.

A scenario registers relationships, stores setup edges, runs steps with
expected outcomes and checks the stored edges at the end. <scenarios> is
a scenario file or a directory of them.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  mbrel test ./scenarios
  mbrel test ./scenarios/posts_to_pages.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(rootOpts, args[0], cmd)
		},
	}
}

func runTests(opts *RootOptions, path string, cmd *cobra.Command) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios path not found: %s", path))
	}

	out := newFormatter(opts, cmd)
	result, err := harness.RunSuite(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	if opts.Format == "json" {
		return outputTestJSON(out, result)
	}
	return outputTestText(out, result)
}

// outputTestJSON outputs the suite result as JSON.
func outputTestJSON(out *OutputFormatter, result *harness.SuiteResult) error {
	response := CLIResponse{
		Status:  "ok",
		Data:    result,
		TraceID: out.TraceID,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(out.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the suite result as text.
func outputTestText(out *OutputFormatter, result *harness.SuiteResult) error {
	w := out.Writer

	for _, f := range result.Failures {
		fmt.Fprintf(w, "✗ %s\n", f.ScenarioPath)
		fmt.Fprintf(w, "  %s\n", f.Error)
		for _, d := range f.Details {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.TotalScenarios)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
