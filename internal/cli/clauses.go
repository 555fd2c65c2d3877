package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/mbrel/internal/host"
	"github.com/roach88/mbrel/internal/ir"
)

// ClausesOptions holds flags for the clauses command.
type ClausesOptions struct {
	*RootOptions
	PassThrough bool
}

// ClausesResult is a host query rewritten by a relationship spec.
type ClausesResult struct {
	Host      string       `json:"host"`
	Clauses   host.Clauses `json:"clauses"`
	Statement string       `json:"statement"`
}

func (r ClausesResult) String() string {
	return r.Statement
}

// NewClausesCommand creates the clauses command.
func NewClausesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClausesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clauses <post|term|user> <spec-json>",
		Short: "Show a host query rewritten by a relationship spec",
		Long: `Build the clauses a relationship spec adds to a host query and print
the resulting statement. The JSON output also carries each clause slot.

With --pass-through the host query keeps its own ordering.

Example:
  mbrel clauses post '{"id":"posts_to_pages","to":20}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClauses(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.PassThrough, "pass-through", false, "keep the host query's ordering")

	return cmd
}

func runClauses(opts *ClausesOptions, hostType, rawSpec string, cmd *cobra.Command) error {
	adapter, err := host.For(ir.ObjectType(hostType), opts.Prefix)
	if err != nil {
		return argFailure(opts.RootOptions, cmd, NewExitError(ExitCommandError, err.Error()))
	}
	spec, err := decodeSpec(rawSpec)
	if err != nil {
		return argFailure(opts.RootOptions, cmd, err)
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	clauses, err := s.service.BuildClauses(cmd.Context(), spec, adapter, adapter.Base(), opts.PassThrough)
	if err != nil {
		return s.fail(err)
	}
	s.out.VerboseLog("join: %s", clauses.Join)
	s.out.VerboseLog("where: %s", clauses.Where)

	return s.out.Success(ClausesResult{
		Host:      hostType,
		Clauses:   clauses,
		Statement: adapter.Statement(clauses),
	})
}
