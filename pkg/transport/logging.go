package transport

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that emits structured log entries for each
// start-session call. The entry includes the session ID, duration,
// request ID (from context), and whether the call succeeded.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next SessionStarter) SessionStarter {
		return SessionStarterFunc(func(ctx context.Context, goal string) (string, error) {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			id, err := next.StartSession(ctx, goal)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("session", id),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "session start failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "session started", attrs...)
			}

			return id, err
		})
	}
}
