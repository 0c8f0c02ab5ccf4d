// Package engine implements the job marketplace core: submission intake,
// queue listing, leased claiming, result finalization, release, and
// cancellation, with the store's conditional update as the single
// synchronization primitive.
package engine

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/harveybc/prediction-provider-sub000/pkg/admission"
	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/pricing"
	"github.com/harveybc/prediction-provider-sub000/pkg/queue"
	"github.com/harveybc/prediction-provider-sub000/pkg/store"
)

// Default engine parameters
const (
	DefaultLeaseDuration   = 30 * time.Minute
	DefaultAdmissionWindow = 24 * time.Hour
	DefaultPriority        = 5
)

// Recorder is an interface for recording engine metrics
type Recorder interface {
	RecordOperation(op, outcome string)
	RecordPayment(amount float64)
}

// Config holds engine configuration
type Config struct {
	LeaseDuration     time.Duration
	AdmissionWindow   time.Duration
	MaxActivePerOwner int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LeaseDuration:     DefaultLeaseDuration,
		AdmissionWindow:   DefaultAdmissionWindow,
		MaxActivePerOwner: admission.DefaultMaxActiveJobs,
	}
}

// Engine is the marketplace façade composing the store, admission control,
// the cost model, and the queue order.
type Engine struct {
	store     store.Store
	admission *admission.Controller
	pricing   *pricing.Model
	config    *Config
	recorder  Recorder
	now       func() time.Time
}

// New creates a marketplace engine. Admission counters start from store
// truth so restarts do not leak or fabricate capacity.
func New(st store.Store, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.AdmissionWindow <= 0 {
		cfg.AdmissionWindow = DefaultAdmissionWindow
	}

	ctrl := admission.NewController(cfg.MaxActivePerOwner)
	if err := ctrl.Recount(st); err != nil {
		return nil, err
	}

	return &Engine{
		store:     st,
		admission: ctrl,
		pricing:   pricing.DefaultModel(),
		config:    cfg,
		now:       time.Now,
	}, nil
}

// SetPricing replaces the default cost model
func (e *Engine) SetPricing(m *pricing.Model) {
	e.pricing = m
}

// SetRecorder sets the metrics recorder for the engine
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// SetClock overrides the engine clock (tests)
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Submit validates and admits a new job. Capacity is checked before any
// record is created; a rejected submission leaves no trace in the store.
func (e *Engine) Submit(ownerID string, req models.JobRequest) (*models.Job, error) {
	if req.Priority == 0 {
		req.Priority = DefaultPriority
	}
	if req.Priority < models.MinPriority || req.Priority > models.MaxPriority {
		return nil, Errf(KindInvalid, "priority %d out of range [%d,%d]",
			req.Priority, models.MinPriority, models.MaxPriority)
	}

	if !e.admission.TryAdmit(ownerID) {
		e.record("submit", "capacity_exceeded")
		return nil, Errf(KindCapacityExceeded, "owner %s has %d active jobs (limit %d)",
			ownerID, e.admission.Count(ownerID), e.admission.Limit())
	}

	estimate := e.pricing.Estimate(req)
	if req.MaxCost > 0 && estimate > req.MaxCost {
		e.admission.Release(ownerID)
		e.record("submit", "cost_exceeded")
		return nil, Errf(KindCostExceeded, "estimated cost %.2f exceeds ceiling %.2f",
			estimate, req.MaxCost)
	}

	job := &models.Job{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Status:        models.JobStatusPending,
		Priority:      req.Priority,
		Request:       req,
		EstimatedCost: estimate,
		MaxCost:       req.MaxCost,
		CreatedAt:     e.now(),
	}

	if err := e.store.CreateJob(job); err != nil {
		e.admission.Release(ownerID)
		e.record("submit", "error")
		return nil, err
	}

	log.Printf("[Engine] Job %s submitted by %s (priority=%d, cost=%.2f)",
		job.ID, ownerID, job.Priority, estimate)
	e.record("submit", "ok")
	return job, nil
}

// ListPending returns the pending queue in total order with 1-based
// positions. Position 1 is always the job an undirected claim would pick.
func (e *Engine) ListPending() ([]models.PendingJob, error) {
	pending, err := e.store.ListPending()
	if err != nil {
		return nil, err
	}

	sorted := queue.SortPending(pending)
	listing := make([]models.PendingJob, len(sorted))
	for i, job := range sorted {
		listing[i] = models.PendingJob{Job: job, Position: i + 1}
	}
	return listing, nil
}

// List returns jobs matching the owner and status filters; empty values
// match everything
func (e *Engine) List(ownerID string, status models.JobStatus) ([]*models.Job, error) {
	return e.store.ListJobs(store.JobFilter{OwnerID: ownerID, Status: status})
}

// Get retrieves a job by ID
func (e *Engine) Get(jobID string) (*models.Job, error) {
	job, err := e.store.GetJob(jobID)
	if err == store.ErrJobNotFound {
		return nil, Errf(KindNotFound, "job %s not found", jobID)
	}
	return job, err
}

// UpdatePriority changes a Pending job's priority. The only mutation of
// priority after creation; owner or admin only.
func (e *Engine) UpdatePriority(jobID, actorID string, role models.Role, priority int) error {
	if priority < models.MinPriority || priority > models.MaxPriority {
		return Errf(KindInvalid, "priority %d out of range [%d,%d]",
			priority, models.MinPriority, models.MaxPriority)
	}

	err := e.store.UpdateJobIf(jobID,
		func(j *models.Job) error {
			if j.Status != models.JobStatusPending {
				return Errf(KindConflict, "job %s is %s, priority only mutable while pending", jobID, j.Status)
			}
			if j.OwnerID != actorID && !role.IsAdmin() {
				return Errf(KindForbidden, "actor %s is not the owner of job %s", actorID, jobID)
			}
			return nil
		},
		func(j *models.Job) error {
			j.Priority = priority
			return nil
		})
	if err == store.ErrJobNotFound {
		return Errf(KindNotFound, "job %s not found", jobID)
	}
	return err
}

// record reports an operation outcome to the recorder, if any
func (e *Engine) record(op, outcome string) {
	if e.recorder != nil {
		e.recorder.RecordOperation(op, outcome)
	}
}

func (e *Engine) recordPayment(amount float64) {
	if e.recorder != nil {
		e.recorder.RecordPayment(amount)
	}
}
