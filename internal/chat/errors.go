package chat

import "errors"

// Failure taxonomy for lifecycle operations. Every failure is scoped to the
// requesting caller; nothing here is broadcast or fatal to the process.
var (
	// ErrAuthRejected terminates a connection attempt at handshake time.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrInvalidInput covers empty or oversized text, short search queries
	// and disallowed uploads.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when a non-sender edits or deletes.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is used on paths that do not treat a missing target
	// leniently.
	ErrNotFound = errors.New("not found")

	// ErrStoreFailure wraps persistence and blob I/O failures. The
	// coordinator never retries; the caller must resend.
	ErrStoreFailure = errors.New("store failure")
)
