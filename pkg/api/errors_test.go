package api

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want []string
	}{
		{"validation with param", NewValidationError("capability", "unknown capability"),
			[]string{"validation_error", "unknown capability", "param: capability"}},
		{"remote with code", NewRemoteError("422", "schema already exists"),
			[]string{"remote_error", "schema already exists", "code: 422"}},
		{"transport plain", NewTransportError("connection refused"),
			[]string{"transport_error", "connection refused"}},
		{"indeterminate names capability", NewIndeterminateError("issue_credential"),
			[]string{"indeterminate", "issue_credential"}},
		{"schema error", NewSchemaError("create_schema.attributes", "unresolvable type"),
			[]string{"schema_error", "unresolvable type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, want substring %q", msg, want)
				}
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(NewRemoteError("500", "boom")); got != ErrorKindRemote {
		t.Errorf("KindOf(remote) = %q, want %q", got, ErrorKindRemote)
	}

	wrapped := fmt.Errorf("invoking: %w", NewTransportError("timeout"))
	if got := KindOf(wrapped); got != ErrorKindTransport {
		t.Errorf("KindOf(wrapped transport) = %q, want %q", got, ErrorKindTransport)
	}

	if got := KindOf(errors.New("plain")); got != ErrorKindInternal {
		t.Errorf("KindOf(plain) = %q, want %q", got, ErrorKindInternal)
	}
}
