package trust

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/channel"
)

// Requester is the claiming side of the workflow: it presents a
// credential-backed claim and waits for the verifier's decision.
type Requester struct {
	subject string
	ch      channel.Channel
	peer    string
}

// NewRequester creates a Requester acting for the given subject,
// talking to the named verifier peer over the channel.
func NewRequester(ch channel.Channel, peer, subject string) *Requester {
	return &Requester{subject: subject, ch: ch, peer: peer}
}

// RequestAccess sends a claim for the referenced credential and blocks
// until the matching decision arrives or the context ends. Decisions for
// other claims on the same channel are skipped, not consumed as answers.
func (r *Requester) RequestAccess(ctx context.Context, credentialRef, policyRef string, proof json.RawMessage) (api.AccessDecision, error) {
	claim := NewClaim(r.subject, credentialRef, policyRef, proof)

	msg, err := claimMessage(claim)
	if err != nil {
		return api.AccessDecision{}, err
	}
	if err := r.ch.Send(ctx, r.peer, msg); err != nil {
		return api.AccessDecision{}, fmt.Errorf("sending claim: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return api.AccessDecision{}, ctx.Err()
		case in, ok := <-r.ch.Receive():
			if !ok {
				return api.AccessDecision{}, channel.ErrClosed
			}
			if in.Type != MessageTypeDecision {
				continue
			}
			var decision api.AccessDecision
			if err := json.Unmarshal(in.Payload, &decision); err != nil {
				return api.AccessDecision{}, fmt.Errorf("decoding decision: %w", err)
			}
			if decision.ClaimID != claim.ID {
				continue
			}
			return decision, nil
		}
	}
}
