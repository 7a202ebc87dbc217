package oracle

import (
	"context"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
)

// Request carries everything the collaborator sees when proposing the
// next action. The history is the session's full turn sequence,
// including synthetic validation-error observations.
type Request struct {
	Goal         string
	History      []api.Turn
	Capabilities []*capability.Descriptor
}

// Oracle proposes the next action for a session. Implementations must be
// safe for concurrent use by multiple goroutines.
type Oracle interface {
	// Name returns the oracle identifier (e.g., "openaicompat", "scripted").
	Name() string

	// Propose returns either a capability call or a goal-satisfied
	// signal. A returned error means no proposal could be obtained; the
	// engine decides whether to retry or fail the session.
	Propose(ctx context.Context, req *Request) (*api.ProposalPayload, error)

	// Close releases oracle resources.
	Close() error
}

// ProposeFunc adapts an ordinary function to the Oracle interface.
type ProposeFunc func(ctx context.Context, req *Request) (*api.ProposalPayload, error)

func (f ProposeFunc) Name() string { return "func" }

func (f ProposeFunc) Propose(ctx context.Context, req *Request) (*api.ProposalPayload, error) {
	return f(ctx, req)
}

func (f ProposeFunc) Close() error { return nil }
