// Package evaluator implements the worker side of the marketplace: an HTTP
// client for the job API and a polling loop that claims pending jobs, runs a
// predictor, and submits the results.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/retry"
)

// Client manages communication with the marketplace node
type Client struct {
	masterURL  string
	httpClient *http.Client
	actorID    string
	token      string
	retryCfg   retry.Config
}

// NewClient creates a new evaluator client
func NewClient(masterURL, actorID string) *Client {
	return &Client{
		masterURL: masterURL,
		actorID:   actorID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryCfg: retry.DefaultConfig(),
	}
}

// SetToken sets the bearer token for authentication
func (c *Client) SetToken(token string) {
	c.token = token
}

// addHeaders adds identity and auth headers to a request
func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", c.actorID)
	req.Header.Set("X-Actor-Role", string(models.RoleEvaluator))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do executes a request with retries on transient failures
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, wantStatus int) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	return retry.Do(ctx, c.retryCfg, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.masterURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.addHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != wantStatus {
			respBody, _ := io.ReadAll(resp.Body)
			return &APIError{Status: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	})
}

// APIError is a non-2xx response from the marketplace
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace returned status %d: %s", e.Status, e.Body)
}

// IsConflict reports whether the error is a claim race loss
func IsConflict(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusConflict
}

// ListPending retrieves the pending queue in claim order
func (c *Client) ListPending(ctx context.Context) ([]models.PendingJob, error) {
	var resp struct {
		Jobs  []models.PendingJob `json:"jobs"`
		Count int                 `json:"count"`
	}
	if err := c.do(ctx, "GET", "/jobs/pending", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Claim attempts to claim a pending job
func (c *Client) Claim(ctx context.Context, jobID string) (*models.ClaimReceipt, error) {
	var receipt models.ClaimReceipt
	if err := c.do(ctx, "POST", "/jobs/"+jobID+"/claim", struct{}{}, &receipt, http.StatusOK); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SubmitResult submits a completed prediction for a claimed job
func (c *Client) SubmitResult(ctx context.Context, jobID string, sub models.ResultSubmission) (*models.SubmissionOutcome, error) {
	var outcome models.SubmissionOutcome
	if err := c.do(ctx, "POST", "/jobs/"+jobID+"/result", sub, &outcome, http.StatusOK); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Release returns a claimed job to the queue
func (c *Client) Release(ctx context.Context, jobID, reason, details string) error {
	body := map[string]string{"reason": reason, "details": details}
	return c.do(ctx, "POST", "/jobs/"+jobID+"/release", body, nil, http.StatusOK)
}

// Fail marks a claimed job as permanently failed
func (c *Client) Fail(ctx context.Context, jobID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, "POST", "/jobs/"+jobID+"/fail", body, nil, http.StatusOK)
}
