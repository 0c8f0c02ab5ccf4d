package evaluator

import (
	"context"
	"log"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// Predictor produces a prediction payload for a claimed job. A nil quality
// score falls back to the marketplace default.
type Predictor interface {
	Predict(ctx context.Context, job *models.Job) (map[string]interface{}, *float64, error)
}

// PredictorFunc adapts a function to the Predictor interface
type PredictorFunc func(ctx context.Context, job *models.Job) (map[string]interface{}, *float64, error)

func (f PredictorFunc) Predict(ctx context.Context, job *models.Job) (map[string]interface{}, *float64, error) {
	return f(ctx, job)
}

// Worker polls the marketplace, claims the head of the queue, and runs the
// predictor on each claimed job
type Worker struct {
	client       *Client
	predictor    Predictor
	pollInterval time.Duration
	probe        func() (*Capabilities, error)
}

// NewWorker creates a polling worker
func NewWorker(client *Client, predictor Predictor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		client:       client,
		predictor:    predictor,
		pollInterval: pollInterval,
		probe:        ProbeHardware,
	}
}

// Run polls until the context is cancelled
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[Evaluator] Worker started (poll interval: %s)", w.pollInterval)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Evaluator] Worker stopped")
			return
		case <-ticker.C:
			if err := w.PollOnce(ctx); err != nil {
				log.Printf("[Evaluator] Poll error: %v", err)
			}
		}
	}
}

// PollOnce claims and processes at most one job. Claim conflicts are not
// errors; another evaluator just got there first.
func (w *Worker) PollOnce(ctx context.Context) error {
	if caps, err := w.probe(); err == nil && caps.Overloaded() {
		log.Printf("[Evaluator] Host overloaded, skipping poll (%s)", caps)
		return nil
	}

	pending, err := w.client.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	for _, entry := range pending {
		receipt, err := w.client.Claim(ctx, entry.Job.ID)
		if err != nil {
			if IsConflict(err) {
				continue
			}
			return err
		}

		log.Printf("[Evaluator] Claimed job %s (lease until %s)",
			receipt.JobID, receipt.LeaseExpiresAt.Format("15:04:05"))
		return w.process(ctx, entry.Job, receipt)
	}
	return nil
}

// process runs the predictor on a claimed job and reports the outcome
func (w *Worker) process(ctx context.Context, job *models.Job, receipt *models.ClaimReceipt) error {
	// Leave headroom so a slow predictor does not blow the lease
	deadline := receipt.LeaseExpiresAt.Add(-30 * time.Second)
	predCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result, quality, err := w.predictor.Predict(predCtx, job)
	if err != nil {
		log.Printf("[Evaluator] Prediction failed for job %s: %v", job.ID, err)
		if relErr := w.client.Release(ctx, job.ID, "predictor_error", err.Error()); relErr != nil {
			log.Printf("[Evaluator] Release failed for job %s: %v", job.ID, relErr)
		}
		return err
	}

	outcome, err := w.client.SubmitResult(ctx, job.ID, models.ResultSubmission{
		Result:       result,
		QualityScore: quality,
	})
	if err != nil {
		log.Printf("[Evaluator] Result submission failed for job %s: %v", job.ID, err)
		return err
	}

	log.Printf("[Evaluator] Job %s completed (payment=%.2f, hash=%s)",
		outcome.JobID, outcome.Payment, outcome.ResultHash[:12])
	return nil
}
