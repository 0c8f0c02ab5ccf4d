package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-based implementation of the data store
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL + busy timeout for concurrent request handlers; immediate txlock
	// takes the write lock up front so conditional updates serialize cleanly
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY under contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		request TEXT NOT NULL,
		estimated_cost REAL NOT NULL,
		max_cost REAL NOT NULL DEFAULT 0,
		actual_cost REAL NOT NULL DEFAULT 0,
		refund_amount REAL NOT NULL DEFAULT 0,
		claim TEXT,
		release_history TEXT NOT NULL DEFAULT '[]',
		result TEXT,
		result_hash TEXT NOT NULL DEFAULT '',
		quality_score REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		completed_at DATETIME,
		cancelled_at DATETIME,
		failed_at DATETIME,
		fail_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_owner_status ON jobs(owner_id, status);
	CREATE INDEX IF NOT EXISTS idx_jobs_priority_created ON jobs(priority, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateJob inserts a new job
func (s *SQLiteStore) CreateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.OwnerID, string(job.Status), job.Priority, row.request,
		job.EstimatedCost, job.MaxCost, job.ActualCost, job.RefundAmount,
		row.claim, row.releaseHistory, row.result, job.ResultHash, job.QualityScore,
		job.CreatedAt, row.completedAt, row.cancelledAt, row.failedAt, job.FailReason)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *SQLiteStore) GetJob(id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJobIf performs an atomic conditional update: the job row is read and
// rewritten inside one serialized transaction, so the write only lands if the
// check still passes against the current row.
func (s *SQLiteStore) UpdateJobIf(id string, check func(*models.Job) error, mutate func(*models.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("get job for update: %w", err)
	}

	if check != nil {
		if err := check(job); err != nil {
			return err
		}
	}
	prevStatus := job.Status
	if err := mutate(job); err != nil {
		return err
	}
	if job.Status != prevStatus {
		if err := models.ValidateTransition(prevStatus, job.Status); err != nil {
			return err
		}
	}

	if err := writeJobTx(tx, job, "?"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// writeJobTx rewrites every mutable column of a job row
func writeJobTx(tx *sql.Tx, job *models.Job, placeholder string) error {
	row, err := encodeJob(job)
	if err != nil {
		return err
	}

	var query string
	if placeholder == "?" {
		query = `
			UPDATE jobs SET status = ?, priority = ?, estimated_cost = ?,
				actual_cost = ?, refund_amount = ?, claim = ?, release_history = ?,
				result = ?, result_hash = ?, quality_score = ?, completed_at = ?,
				cancelled_at = ?, failed_at = ?, fail_reason = ?
			WHERE id = ?`
	} else {
		query = `
			UPDATE jobs SET status = $1, priority = $2, estimated_cost = $3,
				actual_cost = $4, refund_amount = $5, claim = $6, release_history = $7,
				result = $8, result_hash = $9, quality_score = $10, completed_at = $11,
				cancelled_at = $12, failed_at = $13, fail_reason = $14
			WHERE id = $15`
	}

	res, err := tx.Exec(query,
		string(job.Status), job.Priority, job.EstimatedCost,
		job.ActualCost, job.RefundAmount, row.claim, row.releaseHistory,
		row.result, job.ResultHash, job.QualityScore, row.completedAt,
		row.cancelledAt, row.failedAt, job.FailReason, job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListPending returns all Pending jobs ordered by creation time
func (s *SQLiteStore) ListPending() ([]*models.Job, error) {
	return s.listByStatus(models.JobStatusPending)
}

// ListProcessing returns all Processing jobs
func (s *SQLiteStore) ListProcessing() ([]*models.Job, error) {
	return s.listByStatus(models.JobStatusProcessing)
}

func (s *SQLiteStore) listByStatus(status models.JobStatus) ([]*models.Job, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListJobs returns jobs matching the filter
func (s *SQLiteStore) ListJobs(filter JobFilter) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountActiveByOwner counts Pending and Processing jobs per owner
func (s *SQLiteStore) CountActiveByOwner() (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT owner_id, COUNT(*) FROM jobs
		WHERE status IN (?, ?)
		GROUP BY owner_id
	`, string(models.JobStatusPending), string(models.JobStatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("count active jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var owner string
		var n int
		if err := rows.Scan(&owner, &n); err != nil {
			return nil, err
		}
		counts[owner] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies database connectivity
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

func collectJobs(rows *sql.Rows) ([]*models.Job, error) {
	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
