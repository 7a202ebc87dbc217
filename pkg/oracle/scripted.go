package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

// ErrScriptExhausted is returned when a scripted oracle runs out of steps.
var ErrScriptExhausted = errors.New("script exhausted")

// Scripted is an Oracle that replays a fixed sequence of proposals. It
// backs tests and the demo command, where the collaborator's decisions
// need to be deterministic.
type Scripted struct {
	mu    sync.Mutex
	steps []api.ProposalPayload
	next  int
}

var _ Oracle = (*Scripted)(nil)

// NewScripted creates a scripted oracle that returns the given proposals
// in order.
func NewScripted(steps ...api.ProposalPayload) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Name() string { return "scripted" }

// Propose returns the next scripted proposal, or ErrScriptExhausted once
// all steps have been consumed.
func (s *Scripted) Propose(_ context.Context, _ *Request) (*api.ProposalPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.steps) {
		return nil, ErrScriptExhausted
	}
	step := s.steps[s.next]
	s.next++
	return &step, nil
}

func (s *Scripted) Close() error { return nil }
