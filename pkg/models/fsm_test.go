package models

import (
	"testing"
)

func TestValidateTransition_AllowedEdges(t *testing.T) {
	allowed := []struct {
		from, to JobStatus
	}{
		{JobStatusPending, JobStatusProcessing},
		{JobStatusPending, JobStatusCancelled},
		{JobStatusProcessing, JobStatusCompleted},
		{JobStatusProcessing, JobStatusFailed},
		{JobStatusProcessing, JobStatusPending},
	}

	for _, tc := range allowed {
		if err := ValidateTransition(tc.from, tc.to); err != nil {
			t.Errorf("Expected %s -> %s to be valid, got %v", tc.from, tc.to, err)
		}
	}
}

func TestValidateTransition_RejectsOutOfModelEdges(t *testing.T) {
	rejected := []struct {
		from, to JobStatus
	}{
		{JobStatusPending, JobStatusCompleted},
		{JobStatusPending, JobStatusFailed},
		{JobStatusProcessing, JobStatusCancelled},
		{JobStatusCompleted, JobStatusPending},
		{JobStatusCompleted, JobStatusProcessing},
		{JobStatusFailed, JobStatusPending},
		{JobStatusCancelled, JobStatusPending},
		{JobStatusCancelled, JobStatusProcessing},
	}

	for _, tc := range rejected {
		if err := ValidateTransition(tc.from, tc.to); err == nil {
			t.Errorf("Expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []JobStatus{
		JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled,
	}

	for _, from := range all {
		if !IsTerminalState(from) {
			continue
		}
		for _, to := range all {
			if err := ValidateTransition(from, to); err == nil {
				t.Errorf("Terminal state %s should not transition to %s", from, to)
			}
		}
	}
}

func TestIsActiveState(t *testing.T) {
	if !IsActiveState(JobStatusPending) || !IsActiveState(JobStatusProcessing) {
		t.Error("Pending and Processing should be active states")
	}
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		if IsActiveState(s) {
			t.Errorf("%s should not be an active state", s)
		}
	}
}
