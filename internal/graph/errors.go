package graph

import "errors"

// Sentinel errors returned by graph operations. Use errors.Is to check them.
var (
	// ErrNotFound indicates an id that was never allocated in this graph.
	ErrNotFound = errors.New("element not found")

	// ErrDuplicateKey indicates two elements share a key.
	ErrDuplicateKey = errors.New("duplicate element key")

	// ErrSelfLink indicates an attempt to link a connector to itself.
	ErrSelfLink = errors.New("connector cannot link to itself")

	// ErrLocked indicates a connector whose links the host refuses to change.
	ErrLocked = errors.New("connector is locked")

	// ErrPinned indicates a subsystem that cannot be deleted.
	ErrPinned = errors.New("subsystem is pinned")
)
