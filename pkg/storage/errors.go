package storage

import "errors"

var (
	// ErrNotFound is returned when a session does not exist or has expired.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned when a write loses against a concurrent one.
	ErrConflict = errors.New("session was modified concurrently")
)
