package transport

import (
	"context"
	"fmt"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to internal errors. The server continues to accept new
// requests after a panic is recovered.
func Recovery() Middleware {
	return func(next SessionStarter) SessionStarter {
		return SessionStarterFunc(func(ctx context.Context, goal string) (id string, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					retErr = api.NewInternalError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.StartSession(ctx, goal)
		})
	}
}
