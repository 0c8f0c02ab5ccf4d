package store

import (
	"sync"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store. All reads
// hand out deep copies; the only way to mutate a stored job is through
// UpdateJobIf, which holds the store lock for the whole read-check-write.
type MemoryStore struct {
	jobs map[string]*models.Job
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
	}
}

// CreateJob adds a new job to the store
func (s *MemoryStore) CreateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job.Copy()
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryStore) GetJob(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Copy(), nil
}

// UpdateJobIf atomically checks and mutates a job. The mutation works on a
// copy and only replaces the stored job if both check and mutate succeed,
// so a failed update leaves the record untouched.
func (s *MemoryStore) UpdateJobIf(id string, check func(*models.Job) error, mutate func(*models.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	if check != nil {
		if err := check(current); err != nil {
			return err
		}
	}

	updated := current.Copy()
	if err := mutate(updated); err != nil {
		return err
	}
	if updated.Status != current.Status {
		if err := models.ValidateTransition(current.Status, updated.Status); err != nil {
			return err
		}
	}

	s.jobs[id] = updated
	return nil
}

// ListPending returns a snapshot of all Pending jobs
func (s *MemoryStore) ListPending() ([]*models.Job, error) {
	return s.listByStatus(models.JobStatusPending), nil
}

// ListProcessing returns a snapshot of all Processing jobs
func (s *MemoryStore) ListProcessing() ([]*models.Job, error) {
	return s.listByStatus(models.JobStatusProcessing), nil
}

// ListJobs returns jobs matching the filter
func (s *MemoryStore) ListJobs(filter JobFilter) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobs = append(jobs, job.Copy())
	}
	return jobs, nil
}

// CountActiveByOwner counts Pending and Processing jobs per owner
func (s *MemoryStore) CountActiveByOwner() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, job := range s.jobs {
		if models.IsActiveState(job.Status) {
			counts[job.OwnerID]++
		}
	}
	return counts, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds for the in-memory store
func (s *MemoryStore) HealthCheck() error {
	return nil
}

func (s *MemoryStore) listByStatus(status models.JobStatus) []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []*models.Job{}
	for _, job := range s.jobs {
		if job.Status == status {
			jobs = append(jobs, job.Copy())
		}
	}
	return jobs
}
