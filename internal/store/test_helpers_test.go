package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore opens a fresh store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, append([]Option{WithLogger(discardLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// connect adds edges of typ from each pair, failing the test on error.
func connect(t *testing.T, s *Store, typ string, pairs ...[2]int64) {
	t.Helper()
	for _, p := range pairs {
		if _, err := s.Add(context.Background(), p[0], p[1], typ); err != nil {
			t.Fatalf("Add(%d, %d, %q) failed: %v", p[0], p[1], typ, err)
		}
	}
}
