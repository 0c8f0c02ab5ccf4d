package engine

import (
	"log"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/pricing"
	"github.com/harveybc/prediction-provider-sub000/pkg/store"
)

// SubmitResult finalizes a Processing job with the claimant's prediction
// payload. The lease is enforced at submission time: a result arriving at
// or after LeaseExpiresAt is rejected with a lease_timeout error and the
// job stays Processing for the sweeper or an explicit release to handle.
// Payment is the estimate scaled by the speed and quality bonuses.
func (e *Engine) SubmitResult(jobID, claimantID string, sub models.ResultSubmission) (*models.SubmissionOutcome, error) {
	if len(sub.Result) == 0 {
		e.record("submit_result", "invalid")
		return nil, Errf(KindInvalid, "result payload must not be empty")
	}

	hash, err := models.ResultHash(sub.Result)
	if err != nil {
		e.record("submit_result", "invalid")
		return nil, Errf(KindInvalid, "result payload is not canonicalizable: %v", err)
	}

	now := e.now()
	quality := pricing.ClampQuality(sub.QualityScore)

	var outcome *models.SubmissionOutcome
	var ownerID string

	err = e.store.UpdateJobIf(jobID,
		func(j *models.Job) error {
			if j.Status != models.JobStatusProcessing {
				return Errf(KindConflict, "job %s is %s, no result expected", jobID, j.Status)
			}
			if j.Claim == nil || j.Claim.ClaimantID != claimantID {
				return Errf(KindForbidden, "actor %s is not the claimant of job %s", claimantID, jobID)
			}
			if !now.Before(j.Claim.LeaseExpiresAt) {
				return Errf(KindLeaseTimeout, "lease on job %s expired at %s",
					jobID, j.Claim.LeaseExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
		func(j *models.Job) error {
			// Lease usage feeds the speed bonus; read it before the claim goes away
			leaseUsed := now.Sub(j.Claim.ClaimedAt)
			payment := e.pricing.Payment(j.EstimatedCost, leaseUsed, e.config.LeaseDuration, quality)

			j.Status = models.JobStatusCompleted
			j.Claim = nil
			j.Result = sub.Result
			j.ResultHash = hash
			j.QualityScore = quality
			j.ActualCost = payment
			t := now
			j.CompletedAt = &t
			ownerID = j.OwnerID

			outcome = &models.SubmissionOutcome{
				JobID:          j.ID,
				ResultHash:     hash,
				QualityScore:   quality,
				Payment:        payment,
				ProcessingTime: now.Sub(j.CreatedAt),
				CompletedAt:    now,
			}
			return nil
		})
	if err == store.ErrJobNotFound {
		e.record("submit_result", "not_found")
		return nil, Errf(KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		e.record("submit_result", string(KindOf(err)))
		return nil, err
	}

	e.admission.Release(ownerID)
	log.Printf("[Engine] Job %s completed by %s (payment=%.2f, quality=%.2f)",
		jobID, claimantID, outcome.Payment, outcome.QualityScore)
	e.record("submit_result", "ok")
	e.recordPayment(outcome.Payment)
	return outcome, nil
}
