package synchub

import "errors"

var (
	// ErrHubClosed is returned when subscribing to or publishing on a
	// closed hub.
	ErrHubClosed = errors.New("sync hub closed")
	// ErrSnapshotFailed is returned when the subscribe handshake cannot
	// read current state from the store.
	ErrSnapshotFailed = errors.New("failed to load sync snapshot")
)
