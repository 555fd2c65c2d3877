package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mbrel/internal/relationships"
)

// EdgeResult is the outcome of connect, disconnect and has.
type EdgeResult struct {
	Op           string `json:"op"`
	Relationship string `json:"relationship"`
	From         int64  `json:"from"`
	To           int64  `json:"to"`
	OK           bool   `json:"ok"`
}

func (r EdgeResult) String() string {
	var state string
	switch {
	case r.Op == "has" && r.OK:
		state = "connected"
	case r.Op == "has":
		state = "not connected"
	case r.Op == "connect" && r.OK:
		state = "connected"
	case r.Op == "connect":
		state = "already connected"
	case r.OK:
		state = "disconnected"
	default:
		state = "not connected"
	}
	return fmt.Sprintf("%s %d->%d: %s", r.Relationship, r.From, r.To, state)
}

type edgeFunc func(svc *relationships.Service, ctx context.Context, from, to int64, typ string) bool

// NewConnectCommand creates the connect command.
func NewConnectCommand(rootOpts *RootOptions) *cobra.Command {
	return newEdgeCommand(rootOpts, "connect", "Connect two objects",
		`Store an edge of a relationship. Connecting an existing edge is a
no-op and reports "already connected".

Example:
  mbrel connect posts_to_pages 10 20`,
		(*relationships.Service).AddEdge)
}

// NewDisconnectCommand creates the disconnect command.
func NewDisconnectCommand(rootOpts *RootOptions) *cobra.Command {
	return newEdgeCommand(rootOpts, "disconnect", "Disconnect two objects",
		`Remove an edge of a relationship.

Example:
  mbrel disconnect posts_to_pages 10 20`,
		(*relationships.Service).DeleteEdge)
}

// NewHasCommand creates the has command.
func NewHasCommand(rootOpts *RootOptions) *cobra.Command {
	return newEdgeCommand(rootOpts, "has", "Check whether two objects are connected",
		`Report whether an edge of a relationship is stored.

Example:
  mbrel has posts_to_pages 10 20`,
		(*relationships.Service).HasEdge)
}

func newEdgeCommand(rootOpts *RootOptions, op, short, long string, fn edgeFunc) *cobra.Command {
	return &cobra.Command{
		Use:           op + " <relationship> <from> <to>",
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdge(rootOpts, cmd, op, args, fn)
		},
	}
}

func runEdge(opts *RootOptions, cmd *cobra.Command, op string, args []string, fn edgeFunc) error {
	from, err := parseID("from", args[1])
	if err != nil {
		return argFailure(opts, cmd, err)
	}
	to, err := parseID("to", args[2])
	if err != nil {
		return argFailure(opts, cmd, err)
	}

	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ok := fn(s.service, cmd.Context(), from, to, args[0])
	if err := s.service.LastError(); err != nil {
		return s.fail(err)
	}
	return s.out.Success(EdgeResult{Op: op, Relationship: args[0], From: from, To: to, OK: ok})
}
