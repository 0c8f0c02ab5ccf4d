package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// fakeMarketplace serves a single pending job and records what the worker does
type fakeMarketplace struct {
	claimed   bool
	result    map[string]interface{}
	released  string
	job       models.Job
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{
		job: models.Job{
			ID:            "job-1",
			OwnerID:       "client-1",
			Status:        models.JobStatusPending,
			Priority:      5,
			Request:       models.JobRequest{Category: "short_term", Symbol: "EURUSD"},
			EstimatedCost: 6.00,
			CreatedAt:     time.Now(),
		},
	}
}

func (f *fakeMarketplace) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/jobs/pending", func(w http.ResponseWriter, req *http.Request) {
		jobs := []models.PendingJob{}
		if !f.claimed {
			jobs = append(jobs, models.PendingJob{Job: &f.job, Position: 1})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jobs": jobs, "count": len(jobs)})
	}).Methods("GET")

	r.HandleFunc("/jobs/{id}/claim", func(w http.ResponseWriter, req *http.Request) {
		f.claimed = true
		json.NewEncoder(w).Encode(models.ClaimReceipt{
			JobID:          f.job.ID,
			ClaimantID:     req.Header.Get("X-Actor-ID"),
			ClaimedAt:      time.Now(),
			LeaseExpiresAt: time.Now().Add(30 * time.Minute),
			EstimatedCost:  f.job.EstimatedCost,
		})
	}).Methods("POST")

	r.HandleFunc("/jobs/{id}/result", func(w http.ResponseWriter, req *http.Request) {
		var sub models.ResultSubmission
		json.NewDecoder(req.Body).Decode(&sub)
		f.result = sub.Result
		json.NewEncoder(w).Encode(models.SubmissionOutcome{
			JobID:       f.job.ID,
			ResultHash:  "abcdef1234567890",
			Payment:     6.60,
			CompletedAt: time.Now(),
		})
	}).Methods("POST")

	r.HandleFunc("/jobs/{id}/release", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		json.NewDecoder(req.Body).Decode(&body)
		f.released = body["reason"]
		json.NewEncoder(w).Encode(map[string]string{"status": "released"})
	}).Methods("POST")

	return r
}

func healthyProbe() (*Capabilities, error) {
	return &Capabilities{CPUThreads: 8, CPUPercent: 10, RAMTotal: 16 << 30, RAMFree: 8 << 30}, nil
}

func TestWorkerPollOnce_ClaimsAndSubmits(t *testing.T) {
	market := newFakeMarketplace()
	server := httptest.NewServer(market.router())
	defer server.Close()

	client := NewClient(server.URL, "eval-1")
	client.retryCfg = fastRetry()

	predictor := PredictorFunc(func(ctx context.Context, job *models.Job) (map[string]interface{}, *float64, error) {
		return map[string]interface{}{"direction": "up", "confidence": 0.8}, nil, nil
	})

	worker := NewWorker(client, predictor, time.Second)
	worker.probe = healthyProbe

	if err := worker.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	if !market.claimed {
		t.Error("Worker should have claimed the pending job")
	}
	if market.result == nil {
		t.Fatal("Worker should have submitted a result")
	}
	if market.result["direction"] != "up" {
		t.Errorf("Expected predictor output in submission, got %v", market.result)
	}
}

func TestWorkerPollOnce_ReleasesOnPredictorError(t *testing.T) {
	market := newFakeMarketplace()
	server := httptest.NewServer(market.router())
	defer server.Close()

	client := NewClient(server.URL, "eval-1")
	client.retryCfg = fastRetry()

	predictor := PredictorFunc(func(ctx context.Context, job *models.Job) (map[string]interface{}, *float64, error) {
		return nil, nil, context.DeadlineExceeded
	})

	worker := NewWorker(client, predictor, time.Second)
	worker.probe = healthyProbe

	if err := worker.PollOnce(context.Background()); err == nil {
		t.Error("Expected the predictor error to propagate")
	}

	if market.released != "predictor_error" {
		t.Errorf("Expected job released with predictor_error, got %q", market.released)
	}
	if market.result != nil {
		t.Error("No result should have been submitted")
	}
}

func TestWorkerPollOnce_SkipsWhenOverloaded(t *testing.T) {
	market := newFakeMarketplace()
	server := httptest.NewServer(market.router())
	defer server.Close()

	client := NewClient(server.URL, "eval-1")
	worker := NewWorker(client, PredictorFunc(func(ctx context.Context, job *models.Job) (map[string]interface{}, *float64, error) {
		t.Error("Predictor should not run on an overloaded host")
		return nil, nil, nil
	}), time.Second)
	worker.probe = func() (*Capabilities, error) {
		return &Capabilities{CPUThreads: 8, CPUPercent: 97, RAMTotal: 16 << 30, RAMFree: 8 << 30}, nil
	}

	if err := worker.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}
	if market.claimed {
		t.Error("Overloaded worker should not claim jobs")
	}
}
