package invoker

import (
	"context"
	"encoding/json"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
)

// Result is the classified outcome of a single capability invocation.
type Result struct {
	// Outcome is exactly one of the invocation outcome classes.
	Outcome api.Outcome

	// Payload carries the platform's response on success, or its error
	// document on a remote error. Nil for transport failures.
	Payload json.RawMessage

	// Code is the remote status code for remote errors.
	Code string

	// Message describes validation and transport failures.
	Message string
}

// Observation converts the result into an observation payload that can be
// appended to a session's history.
func (r Result) Observation(capName string, args json.RawMessage) api.ObservationPayload {
	return api.ObservationPayload{
		Capability: capName,
		Arguments:  args,
		Outcome:    r.Outcome,
		Result:     r.Payload,
		Code:       r.Code,
		Message:    r.Message,
	}
}

// Invoker executes capability invocations. Implementations validate
// arguments before any remote interaction and issue at most one remote
// call per Invoke.
type Invoker interface {
	Invoke(ctx context.Context, d *capability.Descriptor, args json.RawMessage) Result
}

// TokenSource supplies the bearer token attached to platform requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. An empty token
// means requests are sent unauthenticated.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// classify maps a transport failure to its outcome class: recoverable for
// repeatable capabilities, indeterminate when the call may have changed
// platform state.
func classify(se api.SideEffect) api.Outcome {
	if se.Repeatable() {
		return api.OutcomeTransportError
	}
	return api.OutcomeIndeterminate
}
