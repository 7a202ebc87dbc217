package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
	"github.com/ausweis-dev/ausweis/pkg/capability/invoker"
	"github.com/ausweis-dev/ausweis/pkg/channel"
	"github.com/ausweis-dev/ausweis/pkg/engine"
	"github.com/ausweis-dev/ausweis/pkg/observability"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

// DefaultCapability is the platform capability used to check a
// presented proof.
const DefaultCapability = "verify_presentation"

// ProtectedAction runs after a grant decision, never before one.
type ProtectedAction func(ctx context.Context, claim Claim) error

// VerifierOptions tune the verifier. The zero value uses the built-in
// proof-verification capability and no protected action.
type VerifierOptions struct {
	Capability string
	Action     ProtectedAction
	Logger     *slog.Logger
}

// Verifier checks trust claims against the identity platform and
// produces exactly one access decision per claim. Verification runs as
// a one-capability session through the orchestration engine, so every
// check leaves an auditable turn history.
type Verifier struct {
	store    storage.SessionStore
	registry *capability.Registry
	invoker  invoker.Invoker
	capName  string
	action   ProtectedAction
	logger   *slog.Logger
}

// NewVerifier creates a Verifier. The registry must contain the
// proof-verification capability.
func NewVerifier(store storage.SessionStore, registry *capability.Registry, inv invoker.Invoker, opts VerifierOptions) (*Verifier, error) {
	capName := opts.Capability
	if capName == "" {
		capName = DefaultCapability
	}
	if _, ok := registry.Lookup(capName); !ok {
		return nil, fmt.Errorf("trust: capability %q not in registry", capName)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		store:    store,
		registry: registry,
		invoker:  inv,
		capName:  capName,
		action:   opts.Action,
		logger:   logger,
	}, nil
}

// verifyResult is the shape the platform reports for a checked
// presentation. Verified arrives as a bool or as the strings
// "true"/"false" depending on the platform version.
type verifyResult struct {
	Verified any    `json:"verified"`
	Reason   string `json:"reason"`
}

// Decide verifies one claim and returns its access decision. Any failure
// to positively verify yields a deny with a reason code; there is no
// partial grant. The protected action, when configured, runs only after
// a grant. Nothing about the claim or its proof is kept afterwards.
func (v *Verifier) Decide(ctx context.Context, claim Claim) api.AccessDecision {
	outcome, reason := v.verify(ctx, claim)

	decision := api.AccessDecision{
		ID:        uuid.NewString(),
		ClaimID:   claim.ID,
		Outcome:   outcome,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	}
	observability.DecisionsTotal.WithLabelValues(string(outcome), reason).Inc()
	v.logger.Info("trust decision",
		"claim", claim.ID,
		"outcome", string(outcome),
		"reason", reason,
	)

	if outcome == api.DecisionGrant && v.action != nil {
		if err := v.action(ctx, claim); err != nil {
			v.logger.Error("protected action failed",
				"claim", claim.ID,
				"error", err,
			)
		}
	}
	return decision
}

func (v *Verifier) verify(ctx context.Context, claim Claim) (api.DecisionOutcome, string) {
	if claim.ID == "" || claim.Subject == "" || claim.CredentialRef == "" {
		return api.DecisionDeny, api.ReasonMalformedClaim
	}

	args := map[string]any{"pres_ex_id": claim.CredentialRef}
	if claim.PolicyRef != "" {
		args["policy_ref"] = claim.PolicyRef
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return api.DecisionDeny, api.ReasonMalformedClaim
	}

	// One-capability goal: propose the verification call, then close the
	// session. The decision derives from the call's observation, never
	// from prior sessions.
	orc := oracle.NewScripted(
		api.ProposalPayload{Capability: v.capName, Arguments: rawArgs},
		api.ProposalPayload{Final: true, Summary: "verification complete"},
	)
	eng, err := engine.New(v.store, v.registry, v.invoker, orc, engine.Config{})
	if err != nil {
		return api.DecisionDeny, api.ReasonUnreachable
	}

	id, err := eng.Start(ctx, "verify trust claim "+claim.ID)
	if err != nil {
		return api.DecisionDeny, api.ReasonUnreachable
	}
	sess, err := eng.Wait(ctx, id)
	if err != nil {
		return api.DecisionDeny, api.ReasonUnreachable
	}

	obs, ok := lastObservation(sess, v.capName)
	if !ok {
		return api.DecisionDeny, api.ReasonUnreachable
	}

	switch obs.Outcome {
	case api.OutcomeSuccess:
		var res verifyResult
		if err := json.Unmarshal(obs.Result, &res); err != nil {
			return api.DecisionDeny, api.ReasonInvalidProof
		}
		if !verifiedFlag(res.Verified) {
			return api.DecisionDeny, denyReason(res.Reason)
		}
		return api.DecisionGrant, api.ReasonVerified
	case api.OutcomeValidationError:
		return api.DecisionDeny, api.ReasonMalformedClaim
	case api.OutcomeRemoteError:
		// The platform rejected the reference itself.
		return api.DecisionDeny, api.ReasonMalformedClaim
	default:
		return api.DecisionDeny, api.ReasonUnreachable
	}
}

func lastObservation(sess *api.Session, capName string) (api.ObservationPayload, bool) {
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		obs, ok := sess.Turns[i].Observation()
		if ok && obs.Capability == capName {
			return obs, true
		}
	}
	return api.ObservationPayload{}, false
}

func verifiedFlag(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true"
	default:
		return false
	}
}

func denyReason(platformReason string) string {
	switch platformReason {
	case api.ReasonRevoked:
		return api.ReasonRevoked
	case api.ReasonPolicyMismatch:
		return api.ReasonPolicyMismatch
	default:
		return api.ReasonInvalidProof
	}
}

// Serve consumes claims from the channel until the context ends or the
// peer closes its endpoint, sending one decision back per claim.
func (v *Verifier) Serve(ctx context.Context, ch channel.Channel, peer string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch.Receive():
			if !ok {
				return nil
			}
			if msg.Type != MessageTypeClaim {
				v.logger.Warn("ignoring unexpected message", "type", msg.Type)
				continue
			}

			var claim Claim
			var decision api.AccessDecision
			if err := json.Unmarshal(msg.Payload, &claim); err != nil {
				decision = api.AccessDecision{
					ID:        uuid.NewString(),
					Outcome:   api.DecisionDeny,
					Reason:    api.ReasonMalformedClaim,
					DecidedAt: time.Now().UTC(),
				}
				observability.DecisionsTotal.WithLabelValues(string(api.DecisionDeny), api.ReasonMalformedClaim).Inc()
			} else {
				decision = v.Decide(ctx, claim)
			}

			out, err := decisionMessage(decision)
			if err != nil {
				return err
			}
			if err := ch.Send(ctx, peer, out); err != nil {
				return err
			}
		}
	}
}
