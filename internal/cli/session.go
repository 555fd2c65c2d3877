package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/mbrel/internal/clause"
	"github.com/roach88/mbrel/internal/normalizer"
	"github.com/roach88/mbrel/internal/registry"
	"github.com/roach88/mbrel/internal/relationships"
	"github.com/roach88/mbrel/internal/store"
)

// session is one command's service, opened from the global flags.
type session struct {
	service *relationships.Service
	store   *store.Store
	out     *OutputFormatter
	logger  *slog.Logger
}

// newFormatter builds the formatter for cmd and assigns the command its
// trace id.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	gen := opts.TraceIDs
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
		TraceID:   gen.Generate(),
	}
}

// newLogger logs to the diagnostic writer, at debug level with --verbose
// and warnings only otherwise.
func newLogger(opts *RootOptions, out *OutputFormatter) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(out.GetErrWriter(), &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("trace_id", out.TraceID)
}

// openSession loads the relationship definitions and opens the database.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)
	logger := newLogger(opts, out)

	reg := registry.New(registry.WithLogger(logger))
	n, err := reg.LoadFile(opts.Relationships)
	if err != nil {
		return nil, loadFailure(out, err)
	}
	out.VerboseLog("Loaded %d relationship(s) from %s", n, opts.Relationships)

	st, err := store.Open(opts.Database,
		store.WithTable(opts.Prefix+store.DefaultTable),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeStore, err)
	}

	return &session{
		service: relationships.New(reg, st, relationships.WithLogger(logger)),
		store:   st,
		out:     out,
		logger:  logger,
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// fail reports a service error with the code matching its kind.
func (s *session) fail(err error) error {
	var mismatch *clause.HostMismatchError
	switch {
	case registry.IsNotRegistered(err):
		return s.out.Fail(ExitFailure, ErrCodeNotRegistered, err)
	case normalizer.IsSpecError(err), errors.As(err, &mismatch):
		return s.out.Fail(ExitCommandError, ErrCodeQuery, err)
	default:
		return s.out.Fail(ExitFailure, ErrCodeStore, err)
	}
}

// loadFailure reports a definitions file that could not be loaded.
func loadFailure(out *OutputFormatter, err error) error {
	var loadErr *registry.LoadError
	if !errors.As(err, &loadErr) {
		return out.Fail(ExitCommandError, registry.ErrCodeGeneric, err)
	}
	var details any
	if loadErr.Pos.IsValid() {
		details = map[string]any{
			"file":   loadErr.Pos.Filename(),
			"line":   loadErr.Pos.Line(),
			"column": loadErr.Pos.Column(),
		}
	}
	if outErr := out.Error(loadErr.Code, loadErr.Message, details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, "failed to load relationships", err)
}

// parseID parses an object id argument.
func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q: must be a positive integer", name, s))
	}
	return id, nil
}

// decodeSpec parses a JSON query spec argument.
func decodeSpec(s string) (map[string]any, error) {
	spec, err := normalizer.DecodeJSON([]byte(s))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid query spec JSON", err)
	}
	return spec, nil
}

// argFailure reports a malformed argument before any session is opened.
func argFailure(opts *RootOptions, cmd *cobra.Command, err error) error {
	out := newFormatter(opts, cmd)
	if outErr := out.Error(ErrCodeInvalidArgs, err.Error(), nil); outErr != nil {
		return outErr
	}
	return err
}
