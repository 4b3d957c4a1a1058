// Package vault enumerates note files under one or more root directories and
// performs the few file operations the tools need on them.
package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/zest/internal/models"
)

// DefaultExtensions are the note file extensions used when none are configured.
var DefaultExtensions = []string{".md"}

// DirectoryWalkError means a root could not be enumerated at all. A pass that
// sees one must not write anything.
type DirectoryWalkError struct {
	Root string
	Err  error
}

func (e *DirectoryWalkError) Error() string {
	return fmt.Sprintf("vault: walk %s: %v", e.Root, e.Err)
}

func (e *DirectoryWalkError) Unwrap() error { return e.Err }

// Listing is the result of walking the roots.
type Listing struct {
	// Files holds one entry per distinct real file, sorted by id.
	Files []models.NoteFile
	// Failures are sub-directories that could not be read.
	Failures []models.FileError
	// Protected are real directory paths whose contents are unknown this pass.
	Protected []string
}

// IsProtected reports whether id lies below a directory that could not be read.
func (l *Listing) IsProtected(id string) bool {
	for _, dir := range l.Protected {
		if strings.HasPrefix(id, dir+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// Walker enumerates note files.
type Walker struct {
	exts   []string
	logger *slog.Logger
}

// NewWalker creates a walker matching the given extensions (case-insensitive,
// with leading dot). No extensions means DefaultExtensions.
func NewWalker(logger *slog.Logger, exts ...string) *Walker {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		norm = append(norm, e)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{exts: norm, logger: logger}
}

// Match reports whether name has a note extension.
func (w *Walker) Match(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.exts {
		if ext == e {
			return true
		}
	}
	return false
}

// walk is the state of one Walk call.
type walk struct {
	*Walker
	ctx     context.Context
	visited map[string]bool
	files   map[string]models.NoteFile
	out     *Listing
}

// Walk enumerates every note file below roots. Dot-files and dot-directories
// are skipped and symlinked directories are followed; a directory reached a
// second time (a cycle or an overlapping root) is skipped.
//
// An unusable root fails the whole walk with *DirectoryWalkError.
func (w *Walker) Walk(ctx context.Context, roots []string) (*Listing, error) {
	st := &walk{
		Walker:  w,
		ctx:     ctx,
		visited: make(map[string]bool),
		files:   make(map[string]models.NoteFile),
		out:     &Listing{},
	}

	for _, root := range roots {
		real, err := Canonical(root)
		if err != nil {
			return nil, &DirectoryWalkError{Root: root, Err: err}
		}
		info, err := os.Stat(real)
		if err != nil {
			return nil, &DirectoryWalkError{Root: root, Err: err}
		}
		if !info.IsDir() {
			return nil, &DirectoryWalkError{Root: root, Err: fmt.Errorf("not a directory")}
		}
		entries, err := os.ReadDir(real)
		if err != nil {
			return nil, &DirectoryWalkError{Root: root, Err: err}
		}
		if st.visited[real] {
			w.logger.Warn("vault: root already walked", slog.String("root", root), slog.String("real", real))
			continue
		}
		st.visited[real] = true
		if err := st.entries(real, entries); err != nil {
			return nil, err
		}
	}

	files := make([]models.NoteFile, 0, len(st.files))
	for _, f := range st.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	st.out.Files = files
	return st.out, nil
}

// dir walks the directory at path, whose symlink-free location is real.
func (st *walk) dir(path, real string) error {
	if st.visited[real] {
		st.logger.Warn("vault: directory already visited, skipping", slog.String("path", path), slog.String("real", real))
		return nil
	}
	st.visited[real] = true

	entries, err := os.ReadDir(real)
	if err != nil {
		st.logger.Warn("vault: unreadable directory", slog.String("path", path), slog.Any("error", err))
		st.out.Failures = append(st.out.Failures, models.FileError{Path: path, Err: err})
		st.out.Protected = append(st.out.Protected, real)
		return nil
	}
	return st.entries(real, entries)
}

func (st *walk) entries(real string, entries []fs.DirEntry) error {
	if err := st.ctx.Err(); err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(real, name)

		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				st.logger.Warn("vault: broken symlink", slog.String("path", path), slog.Any("error", err))
				continue
			}
			info, err := os.Stat(target)
			if err != nil {
				st.logger.Warn("vault: broken symlink", slog.String("path", path), slog.Any("error", err))
				continue
			}
			if info.IsDir() {
				if err := st.dir(path, target); err != nil {
					return err
				}
				continue
			}
			if info.Mode().IsRegular() && st.Match(name) {
				st.add(target, info)
			}
			continue
		}

		if isDir {
			if err := st.dir(path, path); err != nil {
				return err
			}
			continue
		}
		if !e.Type().IsRegular() || !st.Match(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// vanished between ReadDir and Info
			st.logger.Warn("vault: stat failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		st.add(path, info)
	}
	return nil
}

func (st *walk) add(id string, info fs.FileInfo) {
	if _, ok := st.files[id]; ok {
		return
	}
	st.files[id] = models.NoteFile{ID: id, Mtime: info.ModTime()}
}

// Canonical returns the absolute, symlink-free form of path with a leading
// "~" expanded to the home directory.
func Canonical(path string) (string, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("vault: resolve %s: %w", path, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("vault: resolve %s: %w", path, err)
	}
	return real, nil
}

// CanonicalRoots canonicalises every path and drops duplicates. Paths that
// cannot be resolved are left out; the first such failure is returned as a
// *DirectoryWalkError alongside the roots that did resolve.
func CanonicalRoots(paths []string) ([]string, error) {
	var firstErr error
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		real, err := Canonical(p)
		if err != nil {
			if firstErr == nil {
				firstErr = &DirectoryWalkError{Root: p, Err: err}
			}
			continue
		}
		if !seen[real] {
			seen[real] = true
			out = append(out, real)
		}
	}
	return out, firstErr
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("vault: home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
