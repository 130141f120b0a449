package client

import "errors"

var (
	// ErrClosed is returned by operations on a controller after Close.
	ErrClosed = errors.New("controller is closed")

	// ErrNoSaveHandler is returned by SyncWithDatabase when no save handler
	// has been injected.
	ErrNoSaveHandler = errors.New("no save handler registered")

	// ErrSnapshotTooSmall is returned when the encoded state is below the
	// minimum plausible size and is not worth persisting.
	ErrSnapshotTooSmall = errors.New("encoded state too small to persist")
)
