package store

import "errors"

var (
	// ErrConflict reports a write rejected because a concurrent commit got there first
	// (exclusion constraint, serialization failure or deadlock). Callers may retry.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)
