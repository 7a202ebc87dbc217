package api

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------------------------------------
// Session and turn types
// ---------------------------------------------------------------------------

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusAborted   SessionStatus = "aborted"
)

// Terminal reports whether the status allows no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusAborted:
		return true
	}
	return false
}

// TurnRole classifies an entry in a session's history.
type TurnRole string

const (
	// RoleIntent is the initiating goal statement for the session.
	RoleIntent TurnRole = "intent"

	// RoleProposal is an action proposed by the reasoning collaborator.
	RoleProposal TurnRole = "proposal"

	// RoleObservation is the recorded result of acting on a proposal,
	// including synthetic validation-error observations.
	RoleObservation TurnRole = "observation"
)

// Turn is one atomic entry in a session's append-only history. Turns are
// immutable once appended; sequence numbers are strictly increasing and
// contiguous from 1 within a session.
type Turn struct {
	Seq       int             `json:"seq"`
	Role      TurnRole        `json:"role"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Session is one end-to-end orchestrated interaction pursuing a single
// goal. Turns are ordered by sequence number. Reason is set when the
// session leaves the active status.
type Session struct {
	ID        string        `json:"id"`
	Goal      string        `json:"goal"`
	Status    SessionStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Turns     []Turn        `json:"turns,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewSession creates an active session with a fresh ID pursuing the
// given goal.
func NewSession(goal string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        NewSessionID(),
		Goal:      goal,
		Status:    SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ---------------------------------------------------------------------------
// Turn payloads
// ---------------------------------------------------------------------------

// IntentPayload is the payload of a RoleIntent turn.
type IntentPayload struct {
	Goal string `json:"goal"`
}

// ProposalPayload is the payload of a RoleProposal turn. Either a
// capability call (Capability + Arguments) or a goal-satisfied signal
// (Final with an optional Summary), never both.
type ProposalPayload struct {
	Capability string          `json:"capability,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Final      bool            `json:"final,omitempty"`
	Summary    string          `json:"summary,omitempty"`
}

// Outcome classifies the result of acting on a proposal.
type Outcome string

const (
	// OutcomeSuccess means the remote endpoint reported success.
	OutcomeSuccess Outcome = "success"

	// OutcomeRemoteError means the remote endpoint responded with a failure.
	OutcomeRemoteError Outcome = "remote_error"

	// OutcomeTransportError means no response was received. Recoverable
	// for read-only capabilities via a caller-chosen retry.
	OutcomeTransportError Outcome = "transport_error"

	// OutcomeIndeterminate means a mutating capability's success or
	// failure cannot be confirmed. Never retried automatically.
	OutcomeIndeterminate Outcome = "indeterminate"

	// OutcomeValidationError means the proposal never reached the wire:
	// unknown capability or arguments that fail the parameter schema.
	OutcomeValidationError Outcome = "validation_error"
)

// ObservationPayload is the payload of a RoleObservation turn. It embeds
// the full capability call record: descriptor name, bound arguments, and
// the classified result.
type ObservationPayload struct {
	Capability string          `json:"capability,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	Result     json.RawMessage `json:"result,omitempty"`
	Code       string          `json:"code,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// NewTurn builds a turn with the given role and marshaled payload.
// Marshaling the known payload types cannot fail; errors indicate a
// programming bug and are surfaced as a panic by the caller's test suite
// rather than checked at every call site.
func NewTurn(role TurnRole, payload any) Turn {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic("api: marshaling turn payload: " + err.Error())
	}
	return Turn{
		Role:      role,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
}

// Observation decodes the turn payload as an ObservationPayload.
// Returns false if the turn is not an observation.
func (t Turn) Observation() (ObservationPayload, bool) {
	if t.Role != RoleObservation {
		return ObservationPayload{}, false
	}
	var obs ObservationPayload
	if err := json.Unmarshal(t.Payload, &obs); err != nil {
		return ObservationPayload{}, false
	}
	return obs, true
}

// Proposal decodes the turn payload as a ProposalPayload.
// Returns false if the turn is not a proposal.
func (t Turn) Proposal() (ProposalPayload, bool) {
	if t.Role != RoleProposal {
		return ProposalPayload{}, false
	}
	var p ProposalPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return ProposalPayload{}, false
	}
	return p, true
}

// ---------------------------------------------------------------------------
// Side-effect classes
// ---------------------------------------------------------------------------

// SideEffect classifies a capability by the consequences of invoking it.
type SideEffect string

const (
	// SideEffectReadOnly capabilities only observe platform state.
	SideEffectReadOnly SideEffect = "read-only"

	// SideEffectMutating capabilities change platform state and are not
	// safely repeatable.
	SideEffectMutating SideEffect = "mutating"

	// SideEffectCredential capabilities issue, revoke, or otherwise
	// handle credential material. Treated like mutating for retry
	// purposes, tracked separately for audit.
	SideEffectCredential SideEffect = "credential-sensitive"
)

// Repeatable reports whether the capability may be retried automatically
// after a transport failure.
func (s SideEffect) Repeatable() bool {
	return s == SideEffectReadOnly
}

// ---------------------------------------------------------------------------
// Access decisions
// ---------------------------------------------------------------------------

// DecisionOutcome is the verifier's verdict for a trust claim.
type DecisionOutcome string

const (
	DecisionGrant DecisionOutcome = "grant"
	DecisionDeny  DecisionOutcome = "deny"
)

// Reason codes attached to deny decisions. A grant carries ReasonVerified.
const (
	ReasonVerified       = "verified"
	ReasonInvalidProof   = "invalid_proof"
	ReasonRevoked        = "revoked"
	ReasonPolicyMismatch = "policy_mismatch"
	ReasonUnreachable    = "unreachable"
	ReasonMalformedClaim = "malformed_claim"
)

// AccessDecision is the terminal artifact of the trust verification
// workflow: exactly one per trust claim, never revised in place.
type AccessDecision struct {
	ID        string          `json:"id"`
	ClaimID   string          `json:"claim_id"`
	Outcome   DecisionOutcome `json:"outcome"`
	Reason    string          `json:"reason"`
	DecidedAt time.Time       `json:"decided_at"`
}
