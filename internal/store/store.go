package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema ("from", "to", "type" only)
// 1 - Added order_from/order_to and the (type, from) / (type, to) indexes
const currentSchemaVersion = 1

// DefaultTable is the edge table name used when none is configured.
const DefaultTable = "mb_relationships"

// ErrInvalidObject is returned for edge endpoints that are not positive ids.
var ErrInvalidObject = errors.New("object id must be positive")

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is the edge table.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db     *sqlx.DB
	table  string
	flavor sqlbuilder.Flavor
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the edge table name.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// New wraps an open database. The schema is not touched; call Migrate to
// create it.
func New(db *sqlx.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:     db,
		table:  DefaultTable,
		flavor: sqlbuilder.SQLite,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validTable.MatchString(s.table) {
		return nil, fmt.Errorf("invalid table name %q", s.table)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Table returns the edge table name.
func (s *Store) Table() string {
	return s.table
}

// Flavor returns the SQL flavor statements are built for.
func (s *Store) Flavor() sqlbuilder.Flavor {
	return s.flavor
}

// col quotes an edge table column.
func (s *Store) col(name string) string {
	return s.flavor.Quote(name)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Migrate creates the edge table if it doesn't exist and runs migrations.
// This function is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, strings.ReplaceAll(schemaSQL, "{table}", s.table)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(ctx); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the order columns to tables created before they existed,
// and the composite indexes every lookup filters on.
func (s *Store) migrateToV1(ctx context.Context) error {
	var columns []struct {
		CID        int     `db:"cid"`
		Name       string  `db:"name"`
		Type       string  `db:"type"`
		NotNull    int     `db:"notnull"`
		Default    *string `db:"dflt_value"`
		PrimaryKey int     `db:"pk"`
	}
	if err := s.db.SelectContext(ctx, &columns, fmt.Sprintf("PRAGMA table_info(%s)", s.table)); err != nil {
		return fmt.Errorf("migrate to v1: read columns: %w", err)
	}
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c.Name] = true
	}

	var stmts []string
	for _, name := range []string{"order_from", "order_to"} {
		if !have[name] {
			stmts = append(stmts, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s INTEGER NOT NULL DEFAULT 0`, s.table, s.col(name)))
		}
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_type_from ON %[1]s (%[2]s, %[3]s)`, s.table, s.col("type"), s.col("from")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_type_to ON %[1]s (%[2]s, %[3]s)`, s.table, s.col("type"), s.col("to")),
	)

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	s.logger.Info("edge table migrated", "table", s.table, "version", 1)
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
