package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/firescore/internal/persistence"
)

// Schema creates the score_runs table; applied by EnsureSchema
const Schema = `
CREATE TABLE IF NOT EXISTS score_runs (
	id          UUID PRIMARY KEY,
	team        TEXT NOT NULL DEFAULT '',
	solution    TEXT NOT NULL,
	submission  TEXT NOT NULL,
	filter      TEXT NOT NULL DEFAULT '',
	score       DOUBLE PRECISION NOT NULL,
	rows        INTEGER NOT NULL,
	valid       INTEGER NOT NULL,
	missing     INTEGER NOT NULL,
	invalid     INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS score_runs_team_score_idx ON score_runs (team, score);
CREATE INDEX IF NOT EXISTS score_runs_created_at_idx ON score_runs (created_at DESC);`

const runColumns = `id, team, solution, submission, filter, score, rows, valid, missing, invalid, created_at`

// runsRepo implements RunRepo interface for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a new PostgreSQL score run repository
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunRepo {
	return &runsRepo{
		db:      db,
		timeout: timeout,
	}
}

// EnsureSchema creates the table and indexes when missing
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Insert records a run
func (r *runsRepo) Insert(ctx context.Context, run *persistence.ScoreRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.ID == "" {
		return errors.New("run id is required")
	}

	query := `
		INSERT INTO score_runs
		(id, team, solution, submission, filter, score, rows, valid, missing, invalid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		run.ID, run.Team, run.Solution, run.Submission, run.Filter,
		run.Score, run.Rows, run.Valid, run.Missing, run.Invalid).
		Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert score run: %w", err)
	}

	return nil
}

// Recent returns the newest runs first
func (r *runsRepo) Recent(ctx context.Context, limit int) ([]persistence.ScoreRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM score_runs ORDER BY created_at DESC LIMIT $1`

	var runs []persistence.ScoreRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}
	return runs, nil
}

// BestByTeam returns the lowest-scoring run of a team
func (r *runsRepo) BestByTeam(ctx context.Context, team string) (*persistence.ScoreRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM score_runs WHERE team = $1 ORDER BY score ASC, created_at ASC LIMIT 1`

	var run persistence.ScoreRun
	if err := r.db.GetContext(ctx, &run, query, team); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get best run for team %s: %w", team, err)
	}
	return &run, nil
}
