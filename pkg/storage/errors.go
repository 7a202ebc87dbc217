package storage

import "errors"

// Sentinel errors for session store operations.
var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned when a session with the given ID already exists.
	ErrConflict = errors.New("session already exists")

	// ErrTerminal is returned when appending a turn or changing status on
	// a session that has already reached a terminal status.
	ErrTerminal = errors.New("session is terminal")
)
