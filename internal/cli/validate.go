package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mbrel/internal/ir"
	"github.com/roach88/mbrel/internal/registry"
)

// RelationshipSummary is one valid relationship as registered.
type RelationshipSummary struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reciprocal bool   `json:"reciprocal,omitempty"`
}

// DefinitionFailure is one invalid field of one definition.
type DefinitionFailure struct {
	Relationship string `json:"relationship"`
	registry.ValidationError
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid         bool                  `json:"valid"`
	Relationships []RelationshipSummary `json:"relationships"`
	Errors        []DefinitionFailure   `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	var buf strings.Builder
	for _, rel := range r.Relationships {
		arrow := "->"
		if rel.Reciprocal {
			arrow = "<->"
		}
		fmt.Fprintf(&buf, "✓ %s: %s %s %s\n", rel.ID, rel.From, arrow, rel.To)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&buf, "✗ %s: %s\n", e.Relationship, e.ValidationError)
	}
	if r.Valid {
		fmt.Fprintf(&buf, "%d relationship(s) valid", len(r.Relationships))
	} else {
		fmt.Fprintf(&buf, "%d error(s)", len(r.Errors))
	}
	return buf.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [definitions-file]",
		Short: "Validate relationship definitions",
		Long: `Parse a YAML or CUE definitions file and validate every relationship
in it, reporting all invalid fields rather than stopping at the first.

The file defaults to the --relationships flag.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Relationships
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)
	reg := registry.New(registry.WithLogger(newLogger(opts, out)))

	defs, err := registry.ReadFile(path)
	if err != nil {
		return loadFailure(out, err)
	}
	out.VerboseLog("Found %d definition(s) in %s", len(defs), path)

	result := ValidationResult{Valid: true, Relationships: []RelationshipSummary{}}
	for _, def := range defs {
		rel, err := reg.Register(def)
		if err != nil {
			var defErr *registry.DefinitionError
			if !errors.As(err, &defErr) {
				return out.Fail(ExitCommandError, registry.ErrCodeGeneric, err)
			}
			result.Valid = false
			for _, ve := range defErr.Errors {
				result.Errors = append(result.Errors, DefinitionFailure{Relationship: defErr.ID, ValidationError: ve})
			}
			continue
		}
		result.Relationships = append(result.Relationships, RelationshipSummary{
			ID:         rel.ID,
			From:       describeSide(rel.From),
			To:         describeSide(rel.To),
			Reciprocal: rel.Reciprocal,
		})
	}

	if !result.Valid {
		if err := out.Error(registry.ErrCodeInvalidDef, fmt.Sprintf("%d invalid field(s) in %s", len(result.Errors), path), result.Errors); err != nil {
			return err
		}
		if out.Format != "json" {
			fmt.Fprintln(out.Writer, result)
		}
		return NewExitError(ExitFailure, "validation failed")
	}
	return out.Success(result)
}

// describeSide renders a side as "post:page", "term:post_tag" or "user".
func describeSide(s ir.Side) string {
	if sel := s.Selector(); sel != "" {
		return string(s.ObjectType) + ":" + sel
	}
	return string(s.ObjectType)
}
