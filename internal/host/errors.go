// Package host opens, saves, exports and closes model documents on disk.
package host

import "errors"

// Sentinel errors for host operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrHostBusy indicates a document is already open. The host holds one
	// document at a time.
	ErrHostBusy = errors.New("another document is open")

	// ErrNotOpen indicates an operation on a closed document.
	ErrNotOpen = errors.New("document is not open")

	// ErrLocked indicates the document's lock sidecar already exists,
	// usually because another session has it open.
	ErrLocked = errors.New("document is locked")
)
