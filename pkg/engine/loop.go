package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/observability"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

// Terminal reasons surfaced to drivers. Goal satisfaction uses the
// collaborator's own summary when one is given.
const (
	reasonRetryLimit    = "retry limit exceeded"
	reasonIndeterminate = "indeterminate mutating call"
	reasonCanceled      = "canceled by caller"
	reasonGoalSatisfied = "goal satisfied"
)

// run drives one session to a terminal status. The three phases execute
// strictly in order; cancellation is honored at each phase boundary, and
// results that arrive after a cancel are discarded.
func (e *Engine) run(ctx context.Context, id, goal string, r *running) {
	defer func() {
		e.mu.Lock()
		delete(e.running, id)
		e.mu.Unlock()
		observability.SessionsActive.Dec()
		close(r.done)
	}()

	// Admission control: queue in start order, never reject. A cancel
	// while queued aborts without ever running a phase.
	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-r.cancelCh:
			e.finish(ctx, id, api.SessionStatusAborted, reasonCanceled)
			return
		}
	}

	oracleName := e.oracle.Name()
	retries := 0

	for {
		if r.isCanceled() {
			e.finish(ctx, id, api.SessionStatusAborted, reasonCanceled)
			return
		}

		history, err := e.store.History(ctx, id)
		if err != nil {
			e.finish(ctx, id, api.SessionStatusFailed, "internal error: "+err.Error())
			return
		}

		// AWAITING_PROPOSAL
		pctx, cancelP := context.WithTimeout(ctx, e.cfg.proposalTimeout())
		start := time.Now()
		proposal, err := e.oracle.Propose(pctx, &oracle.Request{
			Goal:         goal,
			History:      history,
			Capabilities: e.registry.Descriptors(),
		})
		cancelP()
		observability.ProposalLatency.WithLabelValues(oracleName).Observe(time.Since(start).Seconds())

		if r.isCanceled() {
			// Whatever came back is discarded.
			e.finish(ctx, id, api.SessionStatusAborted, reasonCanceled)
			return
		}

		if err != nil {
			observability.ProposalsTotal.WithLabelValues(oracleName, "error").Inc()
			e.logger.Warn("proposal fetch failed",
				"session", id,
				"error", err,
			)
			obs := api.ObservationPayload{
				Outcome: api.OutcomeTransportError,
				Message: "obtaining proposal: " + err.Error(),
			}
			if !e.recordRecoverable(ctx, id, obs, &retries) {
				return
			}
			continue
		}

		if _, err := e.store.AppendTurn(ctx, id, api.NewTurn(api.RoleProposal, proposal)); err != nil {
			e.finish(ctx, id, api.SessionStatusFailed, "internal error: "+err.Error())
			return
		}

		if proposal.Final {
			observability.ProposalsTotal.WithLabelValues(oracleName, "final").Inc()
			obs := api.ObservationPayload{
				Outcome: api.OutcomeSuccess,
				Message: reasonGoalSatisfied,
			}
			if _, err := e.store.AppendTurn(ctx, id, api.NewTurn(api.RoleObservation, obs)); err != nil {
				e.finish(ctx, id, api.SessionStatusFailed, "internal error: "+err.Error())
				return
			}
			reason := proposal.Summary
			if reason == "" {
				reason = reasonGoalSatisfied
			}
			e.finish(ctx, id, api.SessionStatusCompleted, reason)
			return
		}
		observability.ProposalsTotal.WithLabelValues(oracleName, "call").Inc()

		// VALIDATING
		descriptor, ok := e.registry.Lookup(proposal.Capability)
		if !ok {
			obs := api.ObservationPayload{
				Capability: proposal.Capability,
				Arguments:  proposal.Arguments,
				Outcome:    api.OutcomeValidationError,
				Message:    "unknown capability " + proposal.Capability,
			}
			if !e.recordRecoverable(ctx, id, obs, &retries) {
				return
			}
			continue
		}

		// INVOKING. The invoker checks the arguments against the
		// parameter schema before anything reaches the wire.
		ictx, cancelI := context.WithTimeout(ctx, e.cfg.invokeTimeout())
		result := e.invoker.Invoke(ictx, descriptor, proposal.Arguments)
		cancelI()

		if r.isCanceled() {
			// Result discarded, not appended.
			e.finish(ctx, id, api.SessionStatusAborted, reasonCanceled)
			return
		}

		obs := result.Observation(descriptor.Name, proposal.Arguments)

		switch result.Outcome {
		case api.OutcomeSuccess:
			if _, err := e.store.AppendTurn(ctx, id, api.NewTurn(api.RoleObservation, obs)); err != nil {
				e.finish(ctx, id, api.SessionStatusFailed, "internal error: "+err.Error())
				return
			}

		case api.OutcomeIndeterminate:
			// Never retried: success or failure of the mutating call
			// cannot be confirmed.
			if _, err := e.store.AppendTurn(ctx, id, api.NewTurn(api.RoleObservation, obs)); err != nil {
				e.finish(ctx, id, api.SessionStatusFailed, "internal error: "+err.Error())
				return
			}
			e.finish(ctx, id, api.SessionStatusFailed, reasonIndeterminate)
			return

		default:
			// validation_error, remote_error, transport_error: feed
			// back to the collaborator, bounded by the retry budget.
			if !e.recordRecoverable(ctx, id, obs, &retries) {
				return
			}
		}
	}
}

// recordRecoverable appends a recoverable error observation and charges
// the retry budget. Returns false when the session was terminated, with
// the failing observation as the last history entry.
func (e *Engine) recordRecoverable(ctx context.Context, id string, obs api.ObservationPayload, retries *int) bool {
	if _, err := e.store.AppendTurn(ctx, id, api.NewTurn(api.RoleObservation, obs)); err != nil {
		e.finish(ctx, id, api.SessionStatusFailed, "internal error: "+err.Error())
		return false
	}

	*retries++
	if *retries > e.cfg.maxRetries() {
		e.finish(ctx, id, api.SessionStatusFailed, reasonRetryLimit)
		return false
	}
	return true
}

// finish moves the session to a terminal status. Losing the transition
// race means another writer already terminated the session, which is
// fine.
func (e *Engine) finish(ctx context.Context, id string, status api.SessionStatus, reason string) {
	err := e.store.SetStatus(ctx, id, status, reason)
	if err != nil && !errors.Is(err, storage.ErrTerminal) {
		e.logger.Error("setting terminal session status",
			"session", id,
			"status", string(status),
			"error", err,
		)
		return
	}
	if err == nil {
		observability.SessionsTotal.WithLabelValues(string(status)).Inc()
		e.logger.Info("session finished",
			"session", id,
			"status", string(status),
			"reason", reason,
		)
	}
}
