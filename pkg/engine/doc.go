// Package engine implements the per-session orchestration loop. Each
// session cycles through awaiting a proposal from the reasoning
// collaborator, validating it against the capability registry, and
// invoking it against the identity platform, until the goal is satisfied
// or a termination condition fires. Sessions run concurrently under an
// admission cap, but each session is single-flight: its three phases
// execute strictly in order and no two capabilities are ever in flight
// for the same session at once.
package engine
