// Package queue defines the total order over pending jobs and computes
// 1-based queue positions consistent with that order.
package queue

import (
	"sort"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// Less reports whether job a ranks ahead of job b in the pending queue:
// priority descending, then CreatedAt ascending, then ID ascending as a
// deterministic tie-break for equal timestamps.
func Less(a, b *models.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortPending returns a new slice of the given jobs in queue order.
// The input is not modified.
func SortPending(jobs []*models.Job) []*models.Job {
	sorted := make([]*models.Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool {
		return Less(sorted[i], sorted[j])
	})
	return sorted
}

// PositionOf computes the 1-based rank of job within the pending snapshot:
// 1 + jobs with strictly higher priority + equal-priority jobs created
// strictly earlier (ID breaking exact timestamp ties). Side-effect free.
func PositionOf(job *models.Job, pending []*models.Job) int {
	pos := 1
	for _, other := range pending {
		if other.ID == job.ID {
			continue
		}
		if Less(other, job) {
			pos++
		}
	}
	return pos
}
