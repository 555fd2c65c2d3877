package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mbrel/internal/ir"
)

// DeleteObjectResult reports the edges removed for a deleted object.
type DeleteObjectResult struct {
	ObjectType string `json:"object_type"`
	Object     int64  `json:"object"`
	Deleted    int64  `json:"deleted"`
}

func (r DeleteObjectResult) String() string {
	return fmt.Sprintf("%s %d: %d edge(s) deleted", r.ObjectType, r.Object, r.Deleted)
}

// ReplaceResult reports the new connections of an object.
type ReplaceResult struct {
	Relationship string  `json:"relationship"`
	Object       int64   `json:"object"`
	Side         string  `json:"side"`
	IDs          []int64 `json:"ids"`
}

func (r ReplaceResult) String() string {
	return fmt.Sprintf("%s %d (%s): %s", r.Relationship, r.Object, r.Side, ConnectedResult{IDs: r.IDs})
}

// NewDeleteObjectCommand creates the delete-object command.
func NewDeleteObjectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-object <post|term|user> <id>",
		Short: "Delete every edge of a removed object",
		Long: `Delete the edges of every registered relationship whose side stores
objects of the given type and holds the given id. Run this when the host
deletes the object itself.

Example:
  mbrel delete-object post 10`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteObject(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runDeleteObject(opts *RootOptions, rawType, rawID string, cmd *cobra.Command) error {
	objectType := ir.ObjectType(rawType)
	if !objectType.Valid() {
		return argFailure(opts, cmd, NewExitError(ExitCommandError,
			fmt.Sprintf("invalid object type %q: must be one of %v", rawType, ir.ObjectTypes)))
	}
	id, err := parseID("object id", rawID)
	if err != nil {
		return argFailure(opts, cmd, err)
	}

	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.service.DeleteObject(cmd.Context(), id, objectType)
	if err != nil {
		return s.fail(err)
	}
	return s.out.Success(DeleteObjectResult{ObjectType: rawType, Object: id, Deleted: n})
}

// NewReplaceCommand creates the replace command.
func NewReplaceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replace <relationship> <object> <from|to> [ids...]",
		Short: "Replace an object's connections",
		Long: `Replace every connection of an object on one side of a relationship
with the given ids, in the given order. With no ids the object is left
unconnected.

Example:
  mbrel replace posts_to_pages 10 from 22 20 21`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplace(rootOpts, args, cmd)
		},
	}
}

func runReplace(opts *RootOptions, args []string, cmd *cobra.Command) error {
	object, err := parseID("object", args[1])
	if err != nil {
		return argFailure(opts, cmd, err)
	}
	side, err := ir.ParseDirection(args[2])
	if err != nil {
		return argFailure(opts, cmd, NewExitError(ExitCommandError, err.Error()))
	}
	ids := make([]int64, 0, len(args)-3)
	for _, raw := range args[3:] {
		id, err := parseID("id", raw)
		if err != nil {
			return argFailure(opts, cmd, err)
		}
		ids = append(ids, id)
	}

	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.service.Replace(cmd.Context(), object, args[0], side, ids); err != nil {
		return s.fail(err)
	}
	return s.out.Success(ReplaceResult{Relationship: args[0], Object: object, Side: side.String(), IDs: ids})
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <relationship> <object> <from|to>",
		Short: "List an object's stored connections",
		Long: `List the ids stored opposite an object on one side of a relationship,
in the order kept for that side.

Example:
  mbrel list posts_to_pages 10 from`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, args, cmd)
		},
	}
}

func runList(opts *RootOptions, args []string, cmd *cobra.Command) error {
	object, err := parseID("object", args[1])
	if err != nil {
		return argFailure(opts, cmd, err)
	}
	side, err := ir.ParseDirection(args[2])
	if err != nil {
		return argFailure(opts, cmd, NewExitError(ExitCommandError, err.Error()))
	}

	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ids, err := s.service.List(cmd.Context(), object, args[0], side)
	if err != nil {
		return s.fail(err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return s.out.Success(ConnectedResult{IDs: ids})
}
