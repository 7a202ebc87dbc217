package transport

import (
	"context"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

// SessionStarter handles the core start-session operation. It is the
// primary handler contract and the target of the middleware chain.
type SessionStarter interface {
	StartSession(ctx context.Context, goal string) (string, error)
}

// SessionStarterFunc is an adapter that allows using an ordinary
// function as a SessionStarter.
type SessionStarterFunc func(ctx context.Context, goal string) (string, error)

// StartSession calls f(ctx, goal).
func (f SessionStarterFunc) StartSession(ctx context.Context, goal string) (string, error) {
	return f(ctx, goal)
}

// SessionController is the full session control surface consumed by the
// HTTP adapter and any other external driver.
type SessionController interface {
	SessionStarter

	// GetSession returns a session with its full turn history.
	GetSession(ctx context.Context, id string) (*api.Session, error)

	// ListSessions returns a paginated session list without histories.
	ListSessions(ctx context.Context, opts storage.ListOptions) (*storage.SessionList, error)

	// CancelSession requests cooperative cancellation.
	CancelSession(ctx context.Context, id string) error

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// Middleware wraps a SessionStarter with a cross-cutting concern.
type Middleware func(SessionStarter) SessionStarter

// Chain composes middlewares so the first one listed is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next SessionStarter) SessionStarter {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
