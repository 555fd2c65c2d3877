package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "json" | "text"
	Database      string
	Relationships string
	Prefix        string

	// TraceIDs overrides the trace id generator (for testing). If nil,
	// UUIDv7Generator is used.
	TraceIDs TraceIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mbrel CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mbrel",
		Short: "mbrel - MB Relationships query engine",
		Long: `Store relationships between posts, terms and users, and rewrite host
object queries so they return only connected objects.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "mbrel.db", "path to SQLite database")
	cmd.PersistentFlags().StringVarP(&opts.Relationships, "relationships", "r", "relationships.yaml", "relationship definitions file (.yaml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "wp_", "host table prefix")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewConnectCommand(opts))
	cmd.AddCommand(NewDisconnectCommand(opts))
	cmd.AddCommand(NewHasCommand(opts))
	cmd.AddCommand(NewConnectedCommand(opts))
	cmd.AddCommand(NewClausesCommand(opts))
	cmd.AddCommand(NewDeleteObjectCommand(opts))
	cmd.AddCommand(NewReplaceCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
