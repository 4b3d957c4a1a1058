package vault

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/zest/internal/apperr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// canonicalTemp returns a symlink-free temp dir.
func canonicalTemp(t *testing.T) string {
	t.Helper()
	dir, err := Canonical(t.TempDir())
	require.NoError(t, err)
	return dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fileIDs(l *Listing) []string {
	out := make([]string, len(l.Files))
	for i, f := range l.Files {
		out[i] = f.ID
	}
	return out
}

func TestWalkFindsNotes(t *testing.T) {
	root := canonicalTemp(t)
	write(t, filepath.Join(root, "a.md"), "a")
	write(t, filepath.Join(root, "sub", "b.MD"), "b")
	write(t, filepath.Join(root, "sub", "deep", "c.md"), "c")
	write(t, filepath.Join(root, "notes.txt"), "x")
	write(t, filepath.Join(root, ".hidden.md"), "x")
	write(t, filepath.Join(root, ".git", "d.md"), "x")

	l, err := NewWalker(quietLogger()).Walk(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "sub", "b.MD"),
		filepath.Join(root, "sub", "deep", "c.md"),
	}, fileIDs(l))
	assert.Empty(t, l.Failures)
}

func TestWalkRecordsMtime(t *testing.T) {
	root := canonicalTemp(t)
	p := filepath.Join(root, "a.md")
	write(t, p, "a")
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(p, mtime, mtime))

	l, err := NewWalker(quietLogger()).Walk(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, l.Files, 1)
	assert.True(t, l.Files[0].Mtime.Equal(mtime))
}

func TestWalkCustomExtensions(t *testing.T) {
	root := canonicalTemp(t)
	write(t, filepath.Join(root, "a.md"), "a")
	write(t, filepath.Join(root, "b.markdown"), "b")

	l, err := NewWalker(quietLogger(), "markdown").Walk(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b.markdown")}, fileIDs(l))
}

func TestWalkSymlinkCycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := canonicalTemp(t)
	write(t, filepath.Join(root, "sub", "a.md"), "a")
	require.NoError(t, os.Symlink(root, filepath.Join(root, "sub", "loop")))

	l, err := NewWalker(quietLogger()).Walk(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub", "a.md")}, fileIDs(l))
}

func TestWalkFollowsSymlinkedDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	base := canonicalTemp(t)
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")
	write(t, filepath.Join(outside, "x.md"), "x")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linked")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "x.md"), filepath.Join(root, "alias.md")))

	l, err := NewWalker(quietLogger()).Walk(context.Background(), []string{root})
	require.NoError(t, err)
	// one real file, reached twice
	assert.Equal(t, []string{filepath.Join(outside, "x.md")}, fileIDs(l))
}

func TestWalkOverlappingRoots(t *testing.T) {
	root := canonicalTemp(t)
	write(t, filepath.Join(root, "sub", "a.md"), "a")

	l, err := NewWalker(quietLogger()).Walk(context.Background(), []string{root, filepath.Join(root, "sub")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub", "a.md")}, fileIDs(l))
}

func TestWalkMissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, err := NewWalker(quietLogger()).Walk(context.Background(), []string{missing})
	var we *DirectoryWalkError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, missing, we.Root)
}

func TestWalkRootIsFile(t *testing.T) {
	root := canonicalTemp(t)
	p := filepath.Join(root, "a.md")
	write(t, p, "a")
	_, err := NewWalker(quietLogger()).Walk(context.Background(), []string{p})
	var we *DirectoryWalkError
	require.ErrorAs(t, err, &we)
}

func TestWalkUnreadableSubdirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := canonicalTemp(t)
	write(t, filepath.Join(root, "a.md"), "a")
	locked := filepath.Join(root, "locked")
	write(t, filepath.Join(locked, "b.md"), "b")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	l, err := NewWalker(quietLogger()).Walk(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.md")}, fileIDs(l))
	require.Len(t, l.Failures, 1)
	assert.Equal(t, locked, l.Failures[0].Path)
	assert.True(t, l.IsProtected(filepath.Join(locked, "b.md")))
	assert.False(t, l.IsProtected(filepath.Join(root, "a.md")))
	assert.False(t, l.IsProtected(locked+"ed/c.md"))
}

func TestWalkCancelled(t *testing.T) {
	root := canonicalTemp(t)
	write(t, filepath.Join(root, "a.md"), "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWalker(quietLogger()).Walk(ctx, []string{root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreate(t *testing.T) {
	dir := canonicalTemp(t)
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	p, err := Create(dir, now, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024_05_06_07_08_09.md"), p)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = Create(dir, now, "")
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists))

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadWithinRoots(t *testing.T) {
	base := canonicalTemp(t)
	root := filepath.Join(base, "root")
	write(t, filepath.Join(root, "a.md"), "hello")
	write(t, filepath.Join(base, "secret.md"), "no")

	data, err := Read([]string{root}, filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = Read([]string{root}, filepath.Join(root, "..", "secret.md"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = Read([]string{root}, filepath.Join(root, "missing.md"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	dir := canonicalTemp(t)
	p := filepath.Join(dir, "a.md")
	write(t, p, "a")
	require.NoError(t, Delete(p, filepath.Join(dir, "missing.md")))
	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestCanonicalRoots(t *testing.T) {
	real := canonicalTemp(t)
	require.NoError(t, os.Mkdir(filepath.Join(real, "notes"), 0o755))

	roots, err := CanonicalRoots([]string{
		filepath.Join(real, "notes"),
		filepath.Join(real, "notes", "..", "notes"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(real, "notes")}, roots)

	missing := filepath.Join(real, "missing")
	roots, err = CanonicalRoots([]string{missing, filepath.Join(real, "notes")})
	var dwe *DirectoryWalkError
	require.ErrorAs(t, err, &dwe)
	assert.Equal(t, missing, dwe.Root)
	assert.Equal(t, []string{filepath.Join(real, "notes")}, roots)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/notes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "notes"), got)

	got, err = ExpandHome("/abs/~x")
	require.NoError(t, err)
	assert.Equal(t, "/abs/~x", got)
}
