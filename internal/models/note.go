// Package models defines the domain types shared by the parser, index and pipeline.
package models

import "time"

// Note is one parsed and link-resolved note, ready to be indexed.
// Notes are per-pass values; the index owns the postings derived from them.
type Note struct {
	ID      string    `json:"id"`
	Tags    []string  `json:"tags"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Refs    []string  `json:"refs"`
	Mtime   time.Time `json:"mtime"`
}

// Draft is the parser output before link resolution.
type Draft struct {
	Path    string
	Tags    []string
	Title   string
	Content string
	// Links holds raw link destinations in document order.
	Links []string
}

// NoteFile is a note discovered on disk.
type NoteFile struct {
	ID    string    `json:"id"`
	Mtime time.Time `json:"mtime"`
}

// Hit is one ranked search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// FileError records a per-file failure during a pass.
type FileError struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Error implements error.
func (e FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

// Summary reports the outcome of one reindex pass.
type Summary struct {
	Indexed   int         `json:"indexed"`
	Updated   int         `json:"updated"`
	Removed   int         `json:"removed"`
	Unchanged int         `json:"unchanged"`
	Failures  []FileError `json:"failures,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// OK reports whether the pass had no per-file failures.
func (s *Summary) OK() bool {
	return len(s.Failures) == 0
}
