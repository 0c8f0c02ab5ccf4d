package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

var errNotPending = errors.New("job is not pending")

func newPendingJob(id, owner string) *models.Job {
	return &models.Job{
		ID:            id,
		OwnerID:       owner,
		Status:        models.JobStatusPending,
		Priority:      5,
		EstimatedCost: 6.00,
		CreatedAt:     time.Now(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()

	job := newPendingJob("j1", "alice")
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if err := s.CreateJob(job); err != ErrJobExists {
		t.Errorf("Expected ErrJobExists on duplicate create, got %v", err)
	}

	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.OwnerID != "alice" || got.Status != models.JobStatusPending {
		t.Errorf("Unexpected job: %+v", got)
	}

	if _, err := s.GetJob("missing"); err != ErrJobNotFound {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	s.CreateJob(newPendingJob("j1", "alice"))

	got, _ := s.GetJob("j1")
	got.Status = models.JobStatusCompleted

	again, _ := s.GetJob("j1")
	if again.Status != models.JobStatusPending {
		t.Error("Mutating a returned job must not affect the stored record")
	}
}

func TestMemoryStore_UpdateJobIf_CheckFailureLeavesRecordUntouched(t *testing.T) {
	s := NewMemoryStore()
	s.CreateJob(newPendingJob("j1", "alice"))

	// Transition to processing
	err := s.UpdateJobIf("j1",
		func(j *models.Job) error {
			if j.Status != models.JobStatusPending {
				return errNotPending
			}
			return nil
		},
		func(j *models.Job) error {
			j.Status = models.JobStatusProcessing
			j.Claim = &models.Claim{ClaimantID: "eval-1", ClaimedAt: time.Now()}
			return nil
		})
	if err != nil {
		t.Fatalf("UpdateJobIf failed: %v", err)
	}

	// Second conditional update against Pending must lose
	err = s.UpdateJobIf("j1",
		func(j *models.Job) error {
			if j.Status != models.JobStatusPending {
				return errNotPending
			}
			return nil
		},
		func(j *models.Job) error {
			j.Claim = &models.Claim{ClaimantID: "eval-2"}
			return nil
		})
	if err != errNotPending {
		t.Fatalf("Expected check error, got %v", err)
	}

	got, _ := s.GetJob("j1")
	if got.Claim == nil || got.Claim.ClaimantID != "eval-1" {
		t.Errorf("Losing update must not mutate the record: %+v", got.Claim)
	}
}

func TestMemoryStore_UpdateJobIf_ExactlyOneWinnerUnderRace(t *testing.T) {
	s := NewMemoryStore()
	s.CreateJob(newPendingJob("j1", "alice"))

	const racers = 32
	var wg sync.WaitGroup
	successes := make(chan string, racers)

	for i := 0; i < racers; i++ {
		claimant := string(rune('A' + i%26))
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			err := s.UpdateJobIf("j1",
				func(j *models.Job) error {
					if j.Status != models.JobStatusPending {
						return errNotPending
					}
					return nil
				},
				func(j *models.Job) error {
					j.Status = models.JobStatusProcessing
					j.Claim = &models.Claim{ClaimantID: who}
					return nil
				})
			if err == nil {
				successes <- who
			}
		}(claimant)
	}
	wg.Wait()
	close(successes)

	winners := []string{}
	for w := range successes {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("Expected exactly one winning claim, got %d", len(winners))
	}

	got, _ := s.GetJob("j1")
	if got.Claim == nil || got.Claim.ClaimantID != winners[0] {
		t.Errorf("Stored claimant %v does not match winner %s", got.Claim, winners[0])
	}
}

func TestMemoryStore_CountActiveByOwner(t *testing.T) {
	s := NewMemoryStore()
	s.CreateJob(newPendingJob("j1", "alice"))
	s.CreateJob(newPendingJob("j2", "alice"))
	s.CreateJob(newPendingJob("j3", "bob"))

	done := newPendingJob("j4", "alice")
	done.Status = models.JobStatusCompleted
	s.CreateJob(done)

	counts, err := s.CountActiveByOwner()
	if err != nil {
		t.Fatalf("CountActiveByOwner failed: %v", err)
	}
	if counts["alice"] != 2 || counts["bob"] != 1 {
		t.Errorf("Unexpected counts: %+v", counts)
	}
}

func TestMemoryStore_ListJobsFilter(t *testing.T) {
	s := NewMemoryStore()
	s.CreateJob(newPendingJob("j1", "alice"))
	s.CreateJob(newPendingJob("j2", "bob"))

	jobs, err := s.ListJobs(JobFilter{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Errorf("Unexpected filter result: %+v", jobs)
	}

	jobs, _ = s.ListJobs(JobFilter{Status: models.JobStatusPending})
	if len(jobs) != 2 {
		t.Errorf("Expected 2 pending jobs, got %d", len(jobs))
	}
}
