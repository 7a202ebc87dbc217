// Package trust implements the two-agent trust verification workflow: a
// requester presents a credential-backed claim over the messaging
// channel, the verifier checks the presented proof against the identity
// platform and its policy, and exactly one access decision comes back.
// Claims and proof material are never retained past the decision.
package trust
