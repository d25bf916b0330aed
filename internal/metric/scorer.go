package metric

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// Class is the outcome of matching one solution row against the submission
type Class string

const (
	ClassValid   Class = "valid"
	ClassMissing Class = "missing"
	ClassInvalid Class = "invalid"
)

// Config holds the penalty for unusable predictions and the ceiling for log errors
type Config struct {
	Penalty float64 `yaml:"penalty" json:"penalty" validate:"gt=0"`
	Clamp   float64 `yaml:"clamp" json:"clamp" validate:"gt=0"`
}

// DefaultConfig returns the competition settings: both values are 10
func DefaultConfig() Config {
	return Config{
		Penalty: 10.0,
		Clamp:   10.0,
	}
}

// JoinedRow is one row of the solution-left-join-submission result
type JoinedRow struct {
	Key     Key
	ID      string
	True    float64
	Pred    float64
	HasPred bool
	Class   Class
	Error   float64
}

// Result summarises a scoring run
type Result struct {
	Score      float64     `json:"score"`
	Rows       int         `json:"rows"`
	Valid      int         `json:"valid"`
	Missing    int         `json:"missing"`
	Invalid    int         `json:"invalid"`
	Clamped    int         `json:"clamped"`
	Duplicates int         `json:"duplicates"`
	Filtered   int         `json:"filtered"`
	Joined     []JoinedRow `json:"-"`
}

// Scorer computes the clamped mean absolute log error
type Scorer struct {
	config Config
	filter *Filter
}

// NewScorer creates a scorer; filter may be nil
func NewScorer(config Config, filter *Filter) *Scorer {
	return &Scorer{config: config, filter: filter}
}

// Score evaluates with the default configuration and no input validation
func Score(solution, submission []Record) float64 {
	s := NewScorer(DefaultConfig(), nil)
	return s.reduce(s.join(solution, submission)).Score
}

// Evaluate validates the solution keys, applies the filter and scores the join
func (s *Scorer) Evaluate(solution, submission []Record) (*Result, error) {
	if err := ValidateSolution(solution); err != nil {
		return nil, err
	}

	kept := solution
	filtered := 0
	if s.filter != nil {
		var err error
		kept, err = s.filter.Apply(solution)
		if err != nil {
			return nil, fmt.Errorf("apply filter: %w", err)
		}
		filtered = len(solution) - len(kept)
	}

	result := s.reduce(s.join(kept, submission))
	result.Filtered = filtered

	log.Debug().
		Int("rows", result.Rows).
		Int("valid", result.Valid).
		Int("missing", result.Missing).
		Int("invalid", result.Invalid).
		Int("filtered", result.Filtered).
		Float64("score", result.Score).
		Msg("Scored submission")

	return result, nil
}

// ValidateSolution rejects solution rows without a state or month, rows whose
// value is absent or not finite, and repeated (state, month) keys
func ValidateSolution(solution []Record) error {
	seen := make(map[Key]int, len(solution))
	for i, rec := range solution {
		key := rec.Key()
		if key.State == "" {
			return fmt.Errorf("%w: solution row %d has no STATE", ErrMissingColumn, i+1)
		}
		if key.Month == "" {
			return fmt.Errorf("%w: solution row %d has no month", ErrMissingColumn, i+1)
		}
		if !rec.HasValue || math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) {
			return fmt.Errorf("%w: solution row %d (%s) needs a finite total_fire_size", ErrBadValue, i+1, key)
		}
		if first, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s at rows %d and %d", ErrDuplicateKey, key, first+1, i+1)
		}
		seen[key] = i
	}
	return nil
}

// join performs a left join in solution order; a key repeated in the submission
// yields one row per match, in submission order
func (s *Scorer) join(solution, submission []Record) []JoinedRow {
	index := make(map[Key][]int, len(submission))
	for i, rec := range submission {
		key := rec.Key()
		index[key] = append(index[key], i)
	}

	joined := make([]JoinedRow, 0, len(solution))
	for _, truth := range solution {
		key := truth.Key()
		matches := index[key]
		if len(matches) == 0 {
			joined = append(joined, s.classify(JoinedRow{Key: key, ID: truth.ID, True: truth.Value}))
			continue
		}
		for _, m := range matches {
			pred := submission[m]
			joined = append(joined, s.classify(JoinedRow{
				Key:     key,
				ID:      truth.ID,
				True:    truth.Value,
				Pred:    pred.Value,
				HasPred: pred.HasValue,
			}))
		}
	}
	return joined
}

func (s *Scorer) classify(row JoinedRow) JoinedRow {
	switch {
	case !row.HasPred || math.IsNaN(row.Pred):
		row.Class = ClassMissing
		row.Error = s.config.Penalty
	case row.Pred <= 0 || !(row.True > 0):
		row.Class = ClassInvalid
		row.Error = s.config.Penalty
	default:
		row.Class = ClassValid
		row.Error = math.Abs(math.Log(row.Pred / row.True))
	}
	return row
}

func (s *Scorer) reduce(joined []JoinedRow) *Result {
	result := &Result{Rows: len(joined), Joined: joined}
	if len(joined) == 0 {
		result.Score = s.config.Penalty
		return result
	}

	seen := make(map[Key]bool, len(joined))
	sum := 0.0
	for i := range joined {
		row := &joined[i]
		if seen[row.Key] {
			result.Duplicates++
		}
		seen[row.Key] = true

		switch row.Class {
		case ClassValid:
			result.Valid++
			if row.Error > s.config.Clamp {
				row.Error = s.config.Clamp
				result.Clamped++
			}
		case ClassMissing:
			result.Missing++
		case ClassInvalid:
			result.Invalid++
		}
		sum += row.Error
	}

	result.Score = sum / float64(len(joined))
	return result
}
