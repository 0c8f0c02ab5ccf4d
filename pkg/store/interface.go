package store

import (
	"errors"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrJobExists           = errors.New("job already exists")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// JobFilter narrows ListJobs results. Zero fields match everything.
type JobFilter struct {
	OwnerID string
	Status  models.JobStatus
}

// Store is the persistence contract for the marketplace engine.
//
// UpdateJobIf is the engine's single synchronization primitive: check and
// mutate run atomically against the current row, so the update only lands if
// the precondition still holds at write time. Two racing conditional updates
// on the same job serialize; the loser observes the post-commit state and
// its check error propagates unchanged. Every implementation must preserve
// this whatever the storage technology.
type Store interface {
	CreateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	UpdateJobIf(id string, check func(*models.Job) error, mutate func(*models.Job) error) error
	ListPending() ([]*models.Job, error)
	ListProcessing() ([]*models.Job, error)
	ListJobs(filter JobFilter) ([]*models.Job, error)
	CountActiveByOwner() (map[string]int, error)

	Close() error
	HealthCheck() error
}

// Config holds database configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // connection string (sqlite path or postgres DSN)

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgresStore(config)
	case "sqlite":
		path := config.DSN
		if path == "" {
			path = "marketplace.db"
		}
		return NewSQLiteStore(path)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, ErrUnsupportedDatabase
	}
}
