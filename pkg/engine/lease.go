package engine

import (
	"log"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/store"
)

// Claim transitions a Pending job to Processing under a time-bounded lease.
// The status check and the claim write happen inside one conditional update,
// so exactly one of any set of racing claims succeeds; the rest get Conflict.
func (e *Engine) Claim(jobID, claimantID string) (*models.ClaimReceipt, error) {
	now := e.now()
	var receipt *models.ClaimReceipt

	err := e.store.UpdateJobIf(jobID,
		func(j *models.Job) error {
			if j.Status != models.JobStatusPending {
				return Errf(KindConflict, "job %s is %s, not claimable", jobID, j.Status)
			}
			if now.Sub(j.CreatedAt) >= e.config.AdmissionWindow {
				// Left Pending; a janitor may archive it separately
				return Errf(KindExpired, "job %s exceeded the %v admission window", jobID, e.config.AdmissionWindow)
			}
			return nil
		},
		func(j *models.Job) error {
			j.Status = models.JobStatusProcessing
			j.Claim = &models.Claim{
				ClaimantID:     claimantID,
				ClaimedAt:      now,
				LeaseExpiresAt: now.Add(e.config.LeaseDuration),
			}
			receipt = &models.ClaimReceipt{
				JobID:          j.ID,
				ClaimantID:     claimantID,
				ClaimedAt:      now,
				LeaseExpiresAt: j.Claim.LeaseExpiresAt,
				EstimatedCost:  j.EstimatedCost,
			}
			return nil
		})
	if err == store.ErrJobNotFound {
		e.record("claim", "not_found")
		return nil, Errf(KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		e.record("claim", string(KindOf(err)))
		return nil, err
	}

	log.Printf("[Engine] Job %s claimed by %s (lease until %s)",
		jobID, claimantID, receipt.LeaseExpiresAt.Format("15:04:05"))
	e.record("claim", "ok")
	return receipt, nil
}

// Release returns a Processing job to Pending, clearing its claim and
// appending one entry to the append-only release history. Only the current
// claimant or an administrator may release.
func (e *Engine) Release(jobID, actorID string, role models.Role, reason, details string) error {
	now := e.now()

	err := e.store.UpdateJobIf(jobID,
		func(j *models.Job) error {
			if j.Status != models.JobStatusProcessing {
				return Errf(KindConflict, "job %s is %s, nothing to release", jobID, j.Status)
			}
			if j.Claim == nil || (j.Claim.ClaimantID != actorID && !role.IsAdmin()) {
				return Errf(KindForbidden, "actor %s is not the claimant of job %s", actorID, jobID)
			}
			return nil
		},
		func(j *models.Job) error {
			j.ReleaseHistory = append(j.ReleaseHistory, models.ReleaseRecord{
				ReleasedBy: actorID,
				ReleasedAt: now,
				Reason:     reason,
				Details:    details,
			})
			j.Claim = nil
			j.Status = models.JobStatusPending
			return nil
		})
	if err == store.ErrJobNotFound {
		e.record("release", "not_found")
		return Errf(KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		e.record("release", string(KindOf(err)))
		return err
	}

	log.Printf("[Engine] Job %s released by %s (reason: %s)", jobID, actorID, reason)
	e.record("release", "ok")
	return nil
}

// Cancel moves a Pending job to Cancelled with a full refund of the
// estimate. Never-claimed jobs are the only cancellable ones; owner or
// admin only.
func (e *Engine) Cancel(jobID, actorID string, role models.Role) (*models.Job, error) {
	now := e.now()
	var cancelled *models.Job

	err := e.store.UpdateJobIf(jobID,
		func(j *models.Job) error {
			if j.Status != models.JobStatusPending {
				return Errf(KindConflict, "job %s is %s, only pending jobs can be cancelled", jobID, j.Status)
			}
			if j.OwnerID != actorID && !role.IsAdmin() {
				return Errf(KindForbidden, "actor %s is not the owner of job %s", actorID, jobID)
			}
			return nil
		},
		func(j *models.Job) error {
			j.Status = models.JobStatusCancelled
			j.RefundAmount = j.EstimatedCost
			t := now
			j.CancelledAt = &t
			cancelled = j.Copy()
			return nil
		})
	if err == store.ErrJobNotFound {
		e.record("cancel", "not_found")
		return nil, Errf(KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		e.record("cancel", string(KindOf(err)))
		return nil, err
	}

	e.admission.Release(cancelled.OwnerID)
	log.Printf("[Engine] Job %s cancelled by %s (refund: %.2f)", jobID, actorID, cancelled.RefundAmount)
	e.record("cancel", "ok")
	return cancelled, nil
}

// Fail moves a Processing job to Failed. Used by a claimant that hit an
// unrecoverable error, or by an administrator. Clears the claim and frees
// the owner's admission slot.
func (e *Engine) Fail(jobID, actorID string, role models.Role, reason string) error {
	now := e.now()
	var ownerID string

	err := e.store.UpdateJobIf(jobID,
		func(j *models.Job) error {
			if j.Status != models.JobStatusProcessing {
				return Errf(KindConflict, "job %s is %s, cannot fail", jobID, j.Status)
			}
			if j.Claim == nil || (j.Claim.ClaimantID != actorID && !role.IsAdmin()) {
				return Errf(KindForbidden, "actor %s is not the claimant of job %s", actorID, jobID)
			}
			return nil
		},
		func(j *models.Job) error {
			j.Status = models.JobStatusFailed
			j.Claim = nil
			j.FailReason = reason
			t := now
			j.FailedAt = &t
			ownerID = j.OwnerID
			return nil
		})
	if err == store.ErrJobNotFound {
		e.record("fail", "not_found")
		return Errf(KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		e.record("fail", string(KindOf(err)))
		return err
	}

	e.admission.Release(ownerID)
	log.Printf("[Engine] Job %s failed by %s (reason: %s)", jobID, actorID, reason)
	e.record("fail", "ok")
	return nil
}
