package transport

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next SessionStarter) SessionStarter {
			return SessionStarterFunc(func(ctx context.Context, goal string) (string, error) {
				order = append(order, name)
				return next.StartSession(ctx, goal)
			})
		}
	}

	starter := Chain(tag("outer"), tag("inner"))(SessionStarterFunc(func(context.Context, string) (string, error) {
		order = append(order, "handler")
		return "sess_1", nil
	}))

	if _, err := starter.StartSession(context.Background(), "goal"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	want := []string{"outer", "inner", "handler"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	starter := Recovery()(SessionStarterFunc(func(context.Context, string) (string, error) {
		panic("boom")
	}))

	_, err := starter.StartSession(context.Background(), "goal")
	if api.KindOf(err) != api.ErrorKindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRequestIDGeneratesAndPreserves(t *testing.T) {
	var seen string
	starter := RequestID()(SessionStarterFunc(func(ctx context.Context, _ string) (string, error) {
		seen = RequestIDFromContext(ctx)
		return "sess_1", nil
	}))

	if _, err := starter.StartSession(context.Background(), "goal"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if seen == "" {
		t.Error("expected a generated request ID")
	}

	ctx := ContextWithRequestID(context.Background(), "req_fixed")
	if _, err := starter.StartSession(ctx, "goal"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if seen != "req_fixed" {
		t.Errorf("expected preserved request ID, got %q", seen)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", storage.ErrNotFound, http.StatusNotFound},
		{"terminal", storage.ErrTerminal, http.StatusConflict},
		{"validation", api.NewValidationError("goal", "empty"), http.StatusBadRequest},
		{"remote", api.NewRemoteError("500", "upstream"), http.StatusBadGateway},
		{"plain error", errors.New("weird"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusFromError(tt.err); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
