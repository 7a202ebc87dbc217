package trust

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/channel"
)

// Message types carried over the channel between requester and verifier.
const (
	MessageTypeClaim    = "trust_claim"
	MessageTypeDecision = "access_decision"
)

// Claim is a credential-backed trust claim. CredentialRef names the
// presentation exchange holding the presented proof on the platform;
// PolicyRef names the verifier-side policy the proof must satisfy.
type Claim struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	CredentialRef string          `json:"credential_ref"`
	Proof         json.RawMessage `json:"proof,omitempty"`
	PolicyRef     string          `json:"policy_ref,omitempty"`
}

// NewClaim builds a claim with a fresh identifier.
func NewClaim(subject, credentialRef, policyRef string, proof json.RawMessage) Claim {
	return Claim{
		ID:            uuid.NewString(),
		Subject:       subject,
		CredentialRef: credentialRef,
		Proof:         proof,
		PolicyRef:     policyRef,
	}
}

func claimMessage(c Claim) (channel.Message, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return channel.Message{}, fmt.Errorf("encoding claim: %w", err)
	}
	return channel.Message{Type: MessageTypeClaim, Payload: payload}, nil
}

func decisionMessage(d api.AccessDecision) (channel.Message, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return channel.Message{}, fmt.Errorf("encoding decision: %w", err)
	}
	return channel.Message{Type: MessageTypeDecision, Payload: payload}, nil
}
