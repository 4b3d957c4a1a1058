// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrIndexCorrupt  = errors.New("index corrupt")
	ErrIndexLocked   = errors.New("index locked by another writer")
	ErrQuerySyntax   = errors.New("query syntax error")
)
