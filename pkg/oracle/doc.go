// Package oracle abstracts the reasoning collaborator that drives a
// session: given the goal, the turn history, and the available
// capabilities, it proposes the next action. The orchestration engine
// treats proposals as untrusted input and validates every one before
// acting on it.
package oracle
