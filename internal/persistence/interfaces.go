package persistence

import (
	"context"
	"time"
)

// ScoreRun is one recorded evaluation of a submission against a solution
type ScoreRun struct {
	ID         string    `json:"id" db:"id"`
	Team       string    `json:"team" db:"team"`
	Solution   string    `json:"solution" db:"solution"`
	Submission string    `json:"submission" db:"submission"`
	Filter     string    `json:"filter" db:"filter"`
	Score      float64   `json:"score" db:"score"`
	Rows       int       `json:"rows" db:"rows"`
	Valid      int       `json:"valid" db:"valid"`
	Missing    int       `json:"missing" db:"missing"`
	Invalid    int       `json:"invalid" db:"invalid"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RunRepo provides score run history
type RunRepo interface {
	// Insert records a run; CreatedAt is filled from the database
	Insert(ctx context.Context, run *ScoreRun) error

	// Recent returns the newest runs first
	Recent(ctx context.Context, limit int) ([]ScoreRun, error)

	// BestByTeam returns the lowest-scoring run of a team, or nil when it has none
	BestByTeam(ctx context.Context, team string) (*ScoreRun, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Runs RunRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
