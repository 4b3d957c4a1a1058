// Package testutil provides shared test helpers for setting up vaults and indexes.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/zest/internal/index"
	"github.com/starford/zest/internal/vault"
)

// TestStore opens an index in a temporary directory that is cleaned up with the test.
func TestStore(t *testing.T) *index.Store {
	t.Helper()
	s, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestVault creates a temporary, symlink-free vault directory.
func TestVault(t *testing.T) string {
	t.Helper()
	dir, err := vault.Canonical(t.TempDir())
	require.NoError(t, err)
	return dir
}

// WriteNote writes content to rel inside dir and returns the absolute path.
func WriteNote(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// Touch sets the mtime of path to base plus offset seconds, so tests never
// depend on the file system's timestamp granularity.
func Touch(t *testing.T, path string, offset int) {
	t.Helper()
	ts := time.Unix(1700000000+int64(offset), 0)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
