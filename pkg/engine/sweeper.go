package engine

import (
	"context"
	"log"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// Sweeper default parameters
const (
	DefaultSweepInterval = 1 * time.Minute
	DefaultSweepGrace    = 5 * time.Minute
)

// SweeperActorID is recorded as the releasing actor on forced releases.
const SweeperActorID = "system:sweeper"

// Sweeper periodically scans Processing jobs and force-releases those whose
// lease expired more than the grace period ago, returning them to the
// pending queue. Without it an abandoned claim would pin a job forever.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	grace    time.Duration
}

// NewSweeper creates a lease sweeper for the engine
func NewSweeper(e *Engine, interval, grace time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if grace < 0 {
		grace = DefaultSweepGrace
	}
	return &Sweeper{engine: e, interval: interval, grace: grace}
}

// Run blocks, sweeping on each tick until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[Sweeper] Started (interval=%s, grace=%s)", s.interval, s.grace)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Sweeper] Stopped")
			return
		case <-ticker.C:
			released, err := s.SweepOnce()
			if err != nil {
				log.Printf("[Sweeper] Sweep failed: %v", err)
			} else if released > 0 {
				log.Printf("[Sweeper] Force-released %d expired lease(s)", released)
			}
		}
	}
}

// SweepOnce scans once and returns how many jobs were force-released.
// Each release is an independent conditional update, so a claimant racing
// a sweep either completes first or loses the claim cleanly.
func (s *Sweeper) SweepOnce() (int, error) {
	processing, err := s.engine.store.ListProcessing()
	if err != nil {
		return 0, err
	}

	now := s.engine.now()
	released := 0
	for _, job := range processing {
		if job.Claim == nil {
			continue
		}
		if now.Sub(job.Claim.LeaseExpiresAt) < s.grace {
			continue
		}
		err := s.engine.Release(job.ID, SweeperActorID, models.RoleAdmin,
			"lease_expired", "lease expired without a result")
		if err != nil {
			// Lost a race with the claimant or another sweep; fine
			if KindOf(err) == KindConflict {
				continue
			}
			log.Printf("[Sweeper] Could not release job %s: %v", job.ID, err)
			continue
		}
		released++
	}
	return released, nil
}
