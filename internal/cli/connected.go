package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// ConnectedOptions holds flags for the connected command.
type ConnectedOptions struct {
	*RootOptions
	Each bool
}

// ConnectedResult lists the objects connected to a query spec, in
// relationship order.
type ConnectedResult struct {
	IDs []int64 `json:"ids"`
}

func (r ConnectedResult) String() string {
	if len(r.IDs) == 0 {
		return "(none)"
	}
	return joinIDs(r.IDs)
}

// EachResult maps every queried object to the objects connected to it.
type EachResult struct {
	Each map[int64][]int64 `json:"each"`
}

func (r EachResult) String() string {
	anchors := make([]int64, 0, len(r.Each))
	for a := range r.Each {
		anchors = append(anchors, a)
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i] < anchors[j] })

	lines := make([]string, len(anchors))
	for i, a := range anchors {
		lines[i] = strings.TrimSpace(fmt.Sprintf("%d: %s", a, joinIDs(r.Each[a])))
	}
	return strings.Join(lines, "\n")
}

// NewConnectedCommand creates the connected command.
func NewConnectedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConnectedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "connected <spec-json>",
		Short: "List objects connected to a query spec",
		Long: `Resolve a relationship query spec to the ids of the connected objects.

The spec is the JSON form of a relationship query: a single clause, or a
compound spec with a relation and numbered clauses.

With --each, every object of a single clause is listed with its own
connected ids.

Examples:
  mbrel connected '{"id":"posts_to_pages","from":10}'
  mbrel connected '{"id":"posts_to_pages","from":[10,11]}' --each
  mbrel connected '{"relation":"AND","0":{"id":"a","from":1},"1":{"id":"b","to":2}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnected(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Each, "each", false, "group connected ids by queried object")

	return cmd
}

func runConnected(opts *ConnectedOptions, rawSpec string, cmd *cobra.Command) error {
	spec, err := decodeSpec(rawSpec)
	if err != nil {
		return argFailure(opts.RootOptions, cmd, err)
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Each {
		each, err := s.service.EachConnected(cmd.Context(), spec)
		if err != nil {
			return s.fail(err)
		}
		return s.out.Success(EachResult{Each: each})
	}

	ids, err := s.service.GetConnected(cmd.Context(), spec)
	if err != nil {
		return s.fail(err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return s.out.Success(ConnectedResult{IDs: ids})
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, " ")
}
