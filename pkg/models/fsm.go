package models

import (
	"fmt"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusProcessing: true, // Pending → Processing (evaluator claims)
		JobStatusCancelled:  true, // Pending → Cancelled (owner cancels)
	},
	JobStatusProcessing: {
		JobStatusCompleted: true, // Processing → Completed (result accepted)
		JobStatusFailed:    true, // Processing → Failed (unrecoverable failure)
		JobStatusPending:   true, // Processing → Pending (claim released)
	},
	// Terminal states (no transitions allowed)
	JobStatusCompleted: {},
	JobStatusFailed:    {},
	JobStatusCancelled: {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalState returns true if the state permits no further transitions
func IsTerminalState(state JobStatus) bool {
	return state == JobStatusCompleted || state == JobStatusFailed || state == JobStatusCancelled
}

// IsActiveState returns true if the job still occupies owner capacity
func IsActiveState(state JobStatus) bool {
	return state == JobStatusPending || state == JobStatusProcessing
}
