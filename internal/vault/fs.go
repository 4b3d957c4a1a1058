package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/zest/internal/apperr"
)

// NoteNameLayout is the time layout of names given to new notes.
const NoteNameLayout = "2006_01_02_15_04_05"

// Within reports whether path lies inside one of roots. Both sides are
// compared in canonical form, so symlinks cannot escape a root.
func Within(roots []string, path string) (string, bool) {
	real, err := Canonical(path)
	if err != nil {
		return "", false
	}
	for _, root := range roots {
		r, err := Canonical(root)
		if err != nil {
			continue
		}
		if real == r || strings.HasPrefix(real, r+string(os.PathSeparator)) {
			return real, true
		}
	}
	return "", false
}

// Read returns the raw bytes of a note inside roots.
func Read(roots []string, path string) ([]byte, error) {
	real, ok := Within(roots, path)
	if !ok {
		return nil, fmt.Errorf("vault: %s: %w", path, apperr.ErrNotFound)
	}
	data, err := os.ReadFile(real)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("vault: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("vault: read %s: %w", path, err)
	}
	return data, nil
}

// Create writes an empty note named after now into dir and returns its path.
// An existing file of that name is never overwritten.
func Create(dir string, now time.Time, ext string) (string, error) {
	if ext == "" {
		ext = DefaultExtensions[0]
	}
	path := filepath.Join(dir, now.Format(NoteNameLayout)+ext)
	if _, err := os.Lstat(path); err == nil {
		return "", fmt.Errorf("vault: create %s: %w", path, apperr.ErrAlreadyExists)
	}
	if err := WriteFile(path, nil); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile atomically writes content: tmp file, fsync, rename.
func WriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}

	// dot prefix keeps the temp file out of concurrent walks
	tmp, err := os.CreateTemp(dir, ".zest-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("vault: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the note files at paths. Missing files are not an error.
func Delete(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("vault: delete %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
