package api

import "fmt"

// ValidateSessionTransition checks whether a session status transition is
// valid. Transitions only move forward: active may leave to any terminal
// status, terminal statuses allow no outgoing transitions, and no status
// ever reverts to active.
func ValidateSessionTransition(from, to SessionStatus) *Error {
	valid := map[SessionStatus][]SessionStatus{
		SessionStatusActive: {SessionStatusCompleted, SessionStatusFailed, SessionStatusAborted},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewValidationError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewValidationError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
