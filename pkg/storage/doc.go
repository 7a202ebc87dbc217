// Package storage defines the session store contract shared by its
// adapter implementations, along with sentinel errors and tenant context
// helpers.
//
// A session's history is append-only: turns receive strictly increasing,
// contiguous sequence numbers starting at 1, and nothing is ever updated
// or removed. Status moves forward only, from active to exactly one
// terminal status.
package storage
