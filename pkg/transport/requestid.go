package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// requestIDKey is a private type for the request ID context key.
type requestIDKey struct{}

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext retrieves the request ID, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// RequestID returns middleware that assigns a unique request ID to each
// start-session call. If the incoming context already carries a request
// ID (set by the HTTP adapter from the X-Request-ID header), that value
// is used. Otherwise, a new unique ID is generated.
func RequestID() Middleware {
	return func(next SessionStarter) SessionStarter {
		return SessionStarterFunc(func(ctx context.Context, goal string) (string, error) {
			id := RequestIDFromContext(ctx)
			if id == "" {
				id = generateRequestID()
				ctx = ContextWithRequestID(ctx, id)
			}
			return next.StartSession(ctx, goal)
		})
	}
}

// generateRequestID creates a new unique request ID as a hex string.
func generateRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
