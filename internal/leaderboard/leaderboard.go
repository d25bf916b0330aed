// Package leaderboard keeps each team's best score in a Redis sorted set.
// Lower scores rank first. Every Redis call goes through a circuit breaker so a
// dead Redis fails scoring runs fast instead of stalling them.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is open
var ErrUnavailable = errors.New("leaderboard unavailable")

// Config holds Redis and breaker settings
type Config struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Addr     string        `yaml:"addr" envconfig:"ADDR" validate:"required_if=Enabled true"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB" validate:"gte=0"`
	Key      string        `yaml:"key" envconfig:"KEY" validate:"required"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	Breaker  BreakerConfig `yaml:"breaker" envconfig:"BREAKER"`
}

// BreakerConfig mirrors gobreaker.Settings
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests" envconfig:"MAX_REQUESTS"`
	Interval            time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	Timeout             time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" envconfig:"CONSECUTIVE_FAILURES" validate:"gt=0"`
}

// DefaultConfig returns a disabled leaderboard on localhost
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Addr:    "127.0.0.1:6379",
		Key:     "firescore:leaderboard",
		Timeout: 2 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 3,
		},
	}
}

// Entry is one team's position
type Entry struct {
	Rank  int     `json:"rank"`
	Team  string  `json:"team"`
	Score float64 `json:"score"`
}

// Board reads and updates the sorted set
type Board struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// Open dials Redis from config
func Open(config Config) *Board {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return New(client, config)
}

// New wraps an existing client
func New(client *redis.Client, config Config) *Board {
	settings := gobreaker.Settings{
		Name:        "leaderboard",
		MaxRequests: config.Breaker.MaxRequests,
		Interval:    config.Breaker.Interval,
		Timeout:     config.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Breaker.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	}

	return &Board{
		client:  client,
		key:     config.Key,
		timeout: config.Timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Close releases the Redis client
func (b *Board) Close() error {
	return b.client.Close()
}

// State reports the breaker state, for health output
func (b *Board) State() string {
	return b.breaker.State().String()
}

func (b *Board) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, err
}

// Submit records score for team when it beats the team's current best.
// It reports whether the stored score changed. The compare and write happen in
// one ZADD LT, so concurrent submissions for a team keep the lowest score.
func (b *Board) Submit(ctx context.Context, team string, score float64) (bool, error) {
	if team == "" {
		return false, errors.New("team is required")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.execute(func() (interface{}, error) {
		return b.client.ZAddArgs(ctx, b.key, redis.ZAddArgs{
			LT:      true,
			Ch:      true,
			Members: []redis.Z{{Score: score, Member: team}},
		}).Result()
	})
	if err != nil {
		return false, fmt.Errorf("submit score for %s: %w", team, err)
	}

	improved := out.(int64) > 0
	if improved {
		log.Info().Str("team", team).Float64("score", score).Msg("Leaderboard updated")
	}
	return improved, nil
}

// Top returns the best n teams, best first
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.execute(func() (interface{}, error) {
		return b.client.ZRangeWithScores(ctx, b.key, 0, int64(n-1)).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	members := out.([]redis.Z)
	entries := make([]Entry, len(members))
	for i, z := range members {
		entries[i] = Entry{Rank: i + 1, Team: fmt.Sprint(z.Member), Score: z.Score}
	}
	return entries, nil
}

// Rank returns the position of team, or nil when it has not scored
func (b *Board) Rank(ctx context.Context, team string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.execute(func() (interface{}, error) {
		var rank *redis.IntCmd
		var score *redis.FloatCmd
		// MULTI/EXEC so rank and score come from the same version of the set
		_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			rank = pipe.ZRank(ctx, b.key, team)
			score = pipe.ZScore(ctx, b.key, team)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Entry{Rank: int(rank.Val()) + 1, Team: team, Score: score.Val()}, nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", team, err)
	}
	return out.(*Entry), nil
}
