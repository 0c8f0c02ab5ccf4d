package models

import (
	"time"
)

// JobStatus represents the lifecycle status of a prediction job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Priority bounds for submitted jobs. Higher priority is claimed first.
const (
	MinPriority = 1
	MaxPriority = 10
)

// Job represents one prediction request moving through the marketplace
type Job struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"owner_id"`
	Status   JobStatus `json:"status"`
	Priority int       `json:"priority"`

	Request JobRequest `json:"request"`

	EstimatedCost float64 `json:"estimated_cost"`
	MaxCost       float64 `json:"max_cost,omitempty"`
	ActualCost    float64 `json:"actual_cost,omitempty"`
	RefundAmount  float64 `json:"refund_amount,omitempty"`

	// Claim is present exactly while Status == Processing
	Claim *Claim `json:"claim,omitempty"`

	// ReleaseHistory is append-only; entries are never rewritten
	ReleaseHistory []ReleaseRecord `json:"release_history,omitempty"`

	Result       map[string]interface{} `json:"result,omitempty"`
	ResultHash   string                 `json:"result_hash,omitempty"`
	QualityScore float64                `json:"quality_score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	FailReason  string     `json:"fail_reason,omitempty"`
}

// JobRequest carries the caller-supplied attributes of a prediction job
type JobRequest struct {
	Category   string  `json:"category"`              // "short_term", "long_term", "custom"
	Symbol     string  `json:"symbol,omitempty"`      // e.g. "EURUSD"
	Horizon    int     `json:"horizon,omitempty"`     // prediction steps ahead
	Lookback   int     `json:"lookback,omitempty"`    // history bars consumed
	DataSource string  `json:"data_source,omitempty"` // "standard", "premium"
	ModelClass string  `json:"model_class,omitempty"` // "light", "heavy"
	Priority   int     `json:"priority,omitempty"`
	MaxCost    float64 `json:"max_cost,omitempty"`
}

// Claim is the single-holder lease an evaluator takes on a Pending job
type Claim struct {
	ClaimantID     string    `json:"claimant_id"`
	ClaimedAt      time.Time `json:"claimed_at"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
}

// ReleaseRecord is one entry in a job's append-only release audit trail
type ReleaseRecord struct {
	ReleasedBy string    `json:"released_by"`
	ReleasedAt time.Time `json:"released_at"`
	Reason     string    `json:"reason"`
	Details    string    `json:"details,omitempty"`
}

// ClaimReceipt is returned to a claimant on a successful claim
type ClaimReceipt struct {
	JobID          string    `json:"job_id"`
	ClaimantID     string    `json:"claimant_id"`
	ClaimedAt      time.Time `json:"claimed_at"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
	EstimatedCost  float64   `json:"estimated_cost"`
}

// ResultSubmission is an evaluator's completed result for a claimed job
type ResultSubmission struct {
	Result       map[string]interface{} `json:"result"`
	QualityScore *float64               `json:"quality_score,omitempty"` // clamped to [0,1]; 0.8 if absent
}

// SubmissionOutcome is returned to the claimant on a successful completion
type SubmissionOutcome struct {
	JobID          string        `json:"job_id"`
	ResultHash     string        `json:"result_hash"`
	QualityScore   float64       `json:"quality_score"`
	Payment        float64       `json:"payment"`
	ProcessingTime time.Duration `json:"processing_time"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// PendingJob is a queue listing entry: the job plus its 1-based rank
type PendingJob struct {
	Job      *Job `json:"job"`
	Position int  `json:"position"`
}

// HasClaim reports whether the job currently carries a claim record
func (j *Job) HasClaim() bool {
	return j.Claim != nil
}

// Copy returns a deep copy of the job. Stores hand out copies so callers
// can never mutate shared state outside a conditional update.
func (j *Job) Copy() *Job {
	c := *j
	if j.Claim != nil {
		claim := *j.Claim
		c.Claim = &claim
	}
	if j.ReleaseHistory != nil {
		c.ReleaseHistory = make([]ReleaseRecord, len(j.ReleaseHistory))
		copy(c.ReleaseHistory, j.ReleaseHistory)
	}
	if j.Result != nil {
		c.Result = make(map[string]interface{}, len(j.Result))
		for k, v := range j.Result {
			c.Result[k] = v
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.CancelledAt != nil {
		t := *j.CancelledAt
		c.CancelledAt = &t
	}
	if j.FailedAt != nil {
		t := *j.FailedAt
		c.FailedAt = &t
	}
	return &c
}
