package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	_ "github.com/lib/pq"
)

// PostgresStore is a PostgreSQL-based implementation of the data store.
// Conditional updates take a row lock (SELECT ... FOR UPDATE), so racing
// updates on the same job serialize server-side.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config Config) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		request JSONB NOT NULL,
		estimated_cost DOUBLE PRECISION NOT NULL,
		max_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		actual_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		refund_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		claim JSONB,
		release_history JSONB NOT NULL DEFAULT '[]',
		result JSONB,
		result_hash TEXT NOT NULL DEFAULT '',
		quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ,
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
func (s *PostgresStore) CreateJob(job *models.Job) error {
	row, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
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
func (s *PostgresStore) GetJob(id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJobIf performs an atomic conditional update under a row lock
func (s *PostgresStore) UpdateJobIf(id string, check func(*models.Job) error, mutate func(*models.Job) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
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

	if err := writeJobTx(tx, job, "$"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListPending returns all Pending jobs ordered by creation time
func (s *PostgresStore) ListPending() ([]*models.Job, error) {
	return s.listByStatus(models.JobStatusPending)
}

// ListProcessing returns all Processing jobs
func (s *PostgresStore) ListProcessing() ([]*models.Job, error) {
	return s.listByStatus(models.JobStatusProcessing)
}

func (s *PostgresStore) listByStatus(status models.JobStatus) ([]*models.Job, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListJobs returns jobs matching the filter
func (s *PostgresStore) ListJobs(filter JobFilter) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += fmt.Sprintf(` AND owner_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
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
func (s *PostgresStore) CountActiveByOwner() (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT owner_id, COUNT(*) FROM jobs
		WHERE status IN ($1, $2)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies database connectivity
func (s *PostgresStore) HealthCheck() error {
	return s.db.Ping()
}
