// Package apperr holds the shared sentinel errors of the sync stack.
package apperr

import "errors"

var (
	// ErrNotFound marks a lookup of an entity that does not exist (or is
	// soft-deleted and the read did not ask for deleted rows).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists marks a create colliding with an existing id.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotConnected marks a realtime send attempted while the message
	// channel is not in the connected state.
	ErrNotConnected = errors.New("not connected")
)
