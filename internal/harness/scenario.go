package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mbrel/internal/registry"
)

// Scenario is one end-to-end relationship test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Relationships are registered before setup, after any read from
	// RelationshipsFile.
	Relationships []registry.Definition `yaml:"relationships,omitempty"`

	// RelationshipsFile is a YAML or CUE definitions file, resolved
	// relative to the scenario file by LoadScenario.
	RelationshipsFile string `yaml:"relationships_file,omitempty"`

	// Setup edges are added before the steps run and must all be new.
	Setup []Edge `yaml:"setup,omitempty"`

	// Steps run in order against the service.
	Steps []Step `yaml:"steps"`

	// Assertions check the stored edges after every step has run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Edge names one edge of a relationship.
type Edge struct {
	ID   string `yaml:"id"`
	From int64  `yaml:"from"`
	To   int64  `yaml:"to"`
}

// Step is one operation with its expected outcome.
type Step struct {
	Op string `yaml:"op"`

	// Edge is the edge of connect, disconnect and has.
	Edge *Edge `yaml:"edge,omitempty"`

	// Spec is the query of connected, each_connected and clauses.
	Spec map[string]any `yaml:"spec,omitempty"`

	// Host and PassThrough configure clauses.
	Host        string `yaml:"host,omitempty"`
	PassThrough bool   `yaml:"pass_through,omitempty"`

	// Object is the object of delete_object and replace.
	Object     int64  `yaml:"object,omitempty"`
	ObjectType string `yaml:"object_type,omitempty"`

	// Relationship, Side and IDs configure replace.
	Relationship string  `yaml:"relationship,omitempty"`
	Side         string  `yaml:"side,omitempty"`
	IDs          []int64 `yaml:"ids,omitempty"`

	// Expect is checked against the outcome. A nil Expect only requires
	// the step not to fail.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step. Only the fields that are set
// are checked.
type Expect struct {
	// OK is the boolean of connect, disconnect and has.
	OK *bool `yaml:"ok,omitempty"`

	// IDs are the connected ids, in order.
	IDs []int64 `yaml:"ids,omitempty"`

	// Set are the connected ids, in any order.
	Set []int64 `yaml:"set,omitempty"`

	// Empty requires no connected ids.
	Empty bool `yaml:"empty,omitempty"`

	// Each maps every anchor of each_connected to its ids.
	Each map[int64][]int64 `yaml:"each,omitempty"`

	// Count is the number of edges delete_object removed.
	Count *int64 `yaml:"count,omitempty"`

	// Contains are substrings of the clauses statement.
	Contains []string `yaml:"contains,omitempty"`

	// Error is a substring of the error the step must fail with.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks the stored edges after a run.
type Assertion struct {
	Type string `yaml:"type"`

	// Edge is the edge of edge_exists and edge_missing.
	Edge *Edge `yaml:"edge,omitempty"`

	// Relationship and Object narrow edge_count. Zero values match all.
	Relationship string `yaml:"relationship,omitempty"`
	Object       int64  `yaml:"object,omitempty"`

	// Count is the expected number of edges.
	Count int `yaml:"count"`
}

// Step operations.
const (
	OpConnect       = "connect"
	OpDisconnect    = "disconnect"
	OpHas           = "has"
	OpConnected     = "connected"
	OpEachConnected = "each_connected"
	OpClauses       = "clauses"
	OpDeleteObject  = "delete_object"
	OpReplace       = "replace"
)

// Assertion types.
const (
	AssertEdgeExists  = "edge_exists"
	AssertEdgeMissing = "edge_missing"
	AssertEdgeCount   = "edge_count"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected. RelationshipsFile is resolved against the scenario's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if f := scenario.RelationshipsFile; f != "" && !filepath.IsAbs(f) {
		scenario.RelationshipsFile = filepath.Join(filepath.Dir(path), f)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and every
// step carries the inputs its operation needs.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Relationships) == 0 && s.RelationshipsFile == "" {
		return fmt.Errorf("relationships or relationships_file is required")
	}
	if s.RelationshipsFile != "" {
		if _, err := os.Stat(s.RelationshipsFile); os.IsNotExist(err) {
			return fmt.Errorf("relationships file not found: %s", s.RelationshipsFile)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, e := range s.Setup {
		if e.ID == "" {
			return fmt.Errorf("setup[%d]: id is required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpConnect, OpDisconnect, OpHas:
		if step.Edge == nil || step.Edge.ID == "" {
			return fmt.Errorf("edge with id is required for %s", step.Op)
		}
	case OpConnected, OpEachConnected:
		if step.Spec == nil {
			return fmt.Errorf("spec is required for %s", step.Op)
		}
	case OpClauses:
		if step.Spec == nil {
			return fmt.Errorf("spec is required for %s", step.Op)
		}
		if step.Host == "" {
			return fmt.Errorf("host is required for %s", step.Op)
		}
	case OpDeleteObject:
		if step.Object == 0 || step.ObjectType == "" {
			return fmt.Errorf("object and object_type are required for %s", step.Op)
		}
	case OpReplace:
		if step.Object == 0 || step.Relationship == "" || step.Side == "" {
			return fmt.Errorf("object, relationship and side are required for %s", step.Op)
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertEdgeExists, AssertEdgeMissing:
		if a.Edge == nil || a.Edge.ID == "" {
			return fmt.Errorf("edge with id is required for %s", a.Type)
		}
	case AssertEdgeCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for %s", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
