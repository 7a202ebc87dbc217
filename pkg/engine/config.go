package engine

import "time"

// Config holds configuration for the orchestration engine.
type Config struct {
	// MaxRetries bounds how many recoverable failures (invalid proposals,
	// remote errors, transport errors on read-only capabilities, failed
	// proposal fetches) a session absorbs before it fails. Zero or
	// negative means the default of 3.
	MaxRetries int

	// ProposalTimeout bounds a single wait on the reasoning collaborator.
	// Zero means the default of 30 seconds.
	ProposalTimeout time.Duration

	// InvokeTimeout bounds a single capability invocation. Zero means the
	// default of 10 seconds.
	InvokeTimeout time.Duration

	// MaxActiveSessions caps how many sessions run concurrently. Sessions
	// beyond the cap queue in start order and are never rejected.
	// Zero means unlimited.
	MaxActiveSessions int
}

func (c Config) maxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

func (c Config) proposalTimeout() time.Duration {
	if c.ProposalTimeout <= 0 {
		return 30 * time.Second
	}
	return c.ProposalTimeout
}

func (c Config) invokeTimeout() time.Duration {
	if c.InvokeTimeout <= 0 {
		return 10 * time.Second
	}
	return c.InvokeTimeout
}
