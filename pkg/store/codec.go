package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// jobColumns is the column list shared by the SQL backends, in scan order.
const jobColumns = `id, owner_id, status, priority, request, estimated_cost, max_cost,
	actual_cost, refund_amount, claim, release_history, result, result_hash,
	quality_score, created_at, completed_at, cancelled_at, failed_at, fail_reason`

type rowScanner interface {
	Scan(...interface{}) error
}

func marshalField(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal job field: %w", err)
	}
	return string(data), nil
}

// jobRow flattens a Job into SQL-friendly values
type jobRow struct {
	claim          sql.NullString
	releaseHistory string
	request        string
	result         sql.NullString
	completedAt    sql.NullTime
	cancelledAt    sql.NullTime
	failedAt       sql.NullTime
}

func encodeJob(job *models.Job) (*jobRow, error) {
	row := &jobRow{}

	var err error
	if row.request, err = marshalField(job.Request); err != nil {
		return nil, err
	}

	history := job.ReleaseHistory
	if history == nil {
		history = []models.ReleaseRecord{}
	}
	if row.releaseHistory, err = marshalField(history); err != nil {
		return nil, err
	}

	if job.Claim != nil {
		claim, err := marshalField(job.Claim)
		if err != nil {
			return nil, err
		}
		row.claim = sql.NullString{String: claim, Valid: true}
	}
	if job.Result != nil {
		result, err := marshalField(job.Result)
		if err != nil {
			return nil, err
		}
		row.result = sql.NullString{String: result, Valid: true}
	}
	if job.CompletedAt != nil {
		row.completedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}
	if job.CancelledAt != nil {
		row.cancelledAt = sql.NullTime{Time: *job.CancelledAt, Valid: true}
	}
	if job.FailedAt != nil {
		row.failedAt = sql.NullTime{Time: *job.FailedAt, Valid: true}
	}
	return row, nil
}

func scanJob(scanner rowScanner) (*models.Job, error) {
	job := &models.Job{}
	var (
		status         string
		request        string
		claim          sql.NullString
		releaseHistory string
		result         sql.NullString
		completedAt    sql.NullTime
		cancelledAt    sql.NullTime
		failedAt       sql.NullTime
		createdAt      time.Time
	)

	err := scanner.Scan(
		&job.ID, &job.OwnerID, &status, &job.Priority, &request,
		&job.EstimatedCost, &job.MaxCost, &job.ActualCost, &job.RefundAmount,
		&claim, &releaseHistory, &result, &job.ResultHash, &job.QualityScore,
		&createdAt, &completedAt, &cancelledAt, &failedAt, &job.FailReason,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.CreatedAt = createdAt

	if err := json.Unmarshal([]byte(request), &job.Request); err != nil {
		return nil, fmt.Errorf("unmarshal job request: %w", err)
	}
	if err := json.Unmarshal([]byte(releaseHistory), &job.ReleaseHistory); err != nil {
		return nil, fmt.Errorf("unmarshal release history: %w", err)
	}
	if claim.Valid {
		job.Claim = &models.Claim{}
		if err := json.Unmarshal([]byte(claim.String), job.Claim); err != nil {
			return nil, fmt.Errorf("unmarshal claim: %w", err)
		}
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		job.CancelledAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		job.FailedAt = &t
	}
	return job, nil
}
