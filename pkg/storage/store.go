package storage

import (
	"context"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

// ListOptions controls pagination, filtering, and ordering for session
// list operations.
type ListOptions struct {
	After  string            // Cursor: return sessions after this ID.
	Limit  int               // Maximum number of sessions (default 20, max 100).
	Status api.SessionStatus // Filter by status; empty means all.
	Order  string            // Sort order by creation time: "asc" or "desc" (default "desc").
}

// SessionList holds a paginated list of sessions. Entries carry session
// metadata without turns; use GetSession for the full history.
type SessionList struct {
	Object  string         `json:"object"`
	Data    []*api.Session `json:"data"`
	HasMore bool           `json:"has_more"`
	FirstID string         `json:"first_id"`
	LastID  string         `json:"last_id"`
}

// SessionStore persists sessions and their append-only turn history.
// Implementations serialize appends per session so concurrent writers
// observe contiguous sequence numbers.
type SessionStore interface {
	// CreateSession persists a new session. The session must carry an ID
	// and the active status. Returns ErrConflict when the ID is taken.
	CreateSession(ctx context.Context, session *api.Session) error

	// GetSession retrieves a session with its full turn history.
	// Returns ErrNotFound for unknown IDs.
	GetSession(ctx context.Context, id string) (*api.Session, error)

	// AppendTurn appends a turn to an active session and returns it with
	// its assigned sequence number. Returns ErrNotFound for unknown
	// sessions and ErrTerminal once the session left the active status.
	AppendTurn(ctx context.Context, sessionID string, turn api.Turn) (api.Turn, error)

	// History returns the session's turns in sequence order.
	History(ctx context.Context, sessionID string) ([]api.Turn, error)

	// SetStatus moves a session to a terminal status with a reason.
	// Only forward transitions are accepted; a second transition returns
	// ErrTerminal.
	SetStatus(ctx context.Context, sessionID string, status api.SessionStatus, reason string) error

	// ListSessions returns a paginated list of sessions, scoped by
	// tenant when present in the context.
	ListSessions(ctx context.Context, opts ListOptions) (*SessionList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases connections and resources.
	Close() error
}
