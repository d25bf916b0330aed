package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/firescore/internal/metric"
	"github.com/sawpanic/firescore/internal/persistence"
	"github.com/sawpanic/firescore/internal/telemetry"
)

// Leaderboard is the subset of leaderboard.Board the evaluator needs
type Leaderboard interface {
	Submit(ctx context.Context, team string, score float64) (bool, error)
}

// Evaluator runs a scoring request end to end: filter, score, record, rank
type Evaluator struct {
	config  metric.Config
	metrics *telemetry.Metrics
	runs    persistence.RunRepo
	board   Leaderboard
	now     func() time.Time
}

// Option configures optional sinks of an Evaluator
type Option func(*Evaluator)

// WithLedger records every successful run
func WithLedger(runs persistence.RunRepo) Option {
	return func(e *Evaluator) { e.runs = runs }
}

// WithLeaderboard submits scores of named teams
func WithLeaderboard(board Leaderboard) Option {
	return func(e *Evaluator) { e.board = board }
}

// NewEvaluator creates an evaluator; metrics may be nil
func NewEvaluator(config metric.Config, metrics *telemetry.Metrics, opts ...Option) *Evaluator {
	e := &Evaluator{
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one scoring job
type Request struct {
	Team           string
	Filter         string
	SolutionName   string
	SubmissionName string
	Solution       []metric.Record
	Submission     []metric.Record
}

// Outcome is the result of a job plus what happened to its side effects
type Outcome struct {
	RunID    string         `json:"run_id"`
	Result   *metric.Result `json:"result"`
	Recorded bool           `json:"recorded"`
	Improved bool           `json:"improved"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Evaluate scores the request. Ledger and leaderboard failures do not fail the
// run; they are reported as warnings.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Outcome, error) {
	start := e.now()

	var filter *metric.Filter
	if req.Filter != "" {
		var err error
		if filter, err = metric.NewFilter(req.Filter); err != nil {
			e.fail()
			return nil, err
		}
	}

	result, err := metric.NewScorer(e.config, filter).Evaluate(req.Solution, req.Submission)
	if err != nil {
		e.fail()
		return nil, err
	}

	outcome := &Outcome{
		RunID:  uuid.New().String(),
		Result: result,
	}

	if e.metrics != nil {
		e.metrics.Observe(result, e.now().Sub(start))
	}

	if e.runs != nil {
		run := &persistence.ScoreRun{
			ID:         outcome.RunID,
			Team:       req.Team,
			Solution:   req.SolutionName,
			Submission: req.SubmissionName,
			Filter:     req.Filter,
			Score:      result.Score,
			Rows:       result.Rows,
			Valid:      result.Valid,
			Missing:    result.Missing,
			Invalid:    result.Invalid,
		}
		if err := e.runs.Insert(ctx, run); err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("ledger: %v", err))
			log.Warn().Err(err).Str("run_id", outcome.RunID).Msg("Failed to record score run")
		} else {
			outcome.Recorded = true
		}
	}

	if e.board != nil && req.Team != "" {
		improved, err := e.board.Submit(ctx, req.Team, result.Score)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("leaderboard: %v", err))
			log.Warn().Err(err).Str("team", req.Team).Msg("Failed to update leaderboard")
		}
		outcome.Improved = improved
	}

	log.Info().
		Str("run_id", outcome.RunID).
		Str("team", req.Team).
		Float64("score", result.Score).
		Int("rows", result.Rows).
		Msg("Evaluation complete")

	return outcome, nil
}

func (e *Evaluator) fail() {
	if e.metrics != nil {
		e.metrics.ObserveFailure()
	}
}
