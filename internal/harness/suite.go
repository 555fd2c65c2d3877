package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that could not be loaded, could not run
// or did not pass.
type ScenarioFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Error        string   `json:"error"`
	Details      []string `json:"details,omitempty"`
}

// FindScenarios returns the .yaml and .yml files directly under dir, in
// name order.
func FindScenarios(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario directory: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario at path, a scenario file or a
// directory of them.
//
// For each scenario:
// 1. Load and validate the file
// 2. Run it in a fresh store
// 3. Record whether every expectation held
func RunSuite(path string) (*SuiteResult, error) {
	paths, err := FindScenarios(path)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, p := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(p)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				ScenarioPath: p,
				Error:        fmt.Sprintf("failed to load scenario: %v", err),
			})
			continue
		}

		run, err := Run(scenario)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				ScenarioPath: p,
				Error:        fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}

		if !run.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				ScenarioPath: p,
				Error:        fmt.Sprintf("%d expectations failed", len(run.Errors)),
				Details:      run.Errors,
			})
			continue
		}

		result.Passed++
	}
	return result, nil
}
