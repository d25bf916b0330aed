package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sawpanic/firescore/internal/persistence"
	"github.com/sawpanic/firescore/internal/persistence/postgres"
)

// Config holds database connection configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED"`
	DSN             string        `yaml:"dsn" envconfig:"DSN" validate:"required_if=Enabled true"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT" validate:"gt=0"`
	AutoMigrate     bool          `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
		AutoMigrate:     true,
	}
}

// Manager manages the ledger connection and repository instances
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
	health *healthChecker
}

// NewManager opens and pings the database; a disabled config yields a no-op manager
func NewManager(ctx context.Context, config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{
			config: config,
			health: &healthChecker{enabled: false},
		}, nil
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewManagerWithDB(ctx, db, config)
}

// NewManagerWithDB wires repositories over an existing connection
func NewManagerWithDB(ctx context.Context, db *sqlx.DB, config Config) (*Manager, error) {
	if config.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
	}

	return &Manager{
		db:     db,
		config: config,
		repos: &persistence.Repository{
			Runs: postgres.NewRunsRepo(db, config.QueryTimeout),
		},
		health: &healthChecker{
			enabled: true,
			db:      db,
			timeout: config.QueryTimeout,
		},
	}, nil
}

// Repository returns the repository collection, or nil if database is disabled
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// Health returns the health checker interface
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// IsEnabled returns whether database persistence is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// healthChecker implements persistence.RepositoryHealth
type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

// Health returns current repository health status
func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	if !h.enabled {
		return persistence.HealthCheck{
			Healthy:        true,
			Errors:         []string{"ledger persistence disabled"},
			ConnectionPool: map[string]int{"status": 0},
			LastCheck:      time.Now(),
		}
	}

	start := time.Now()

	var errs []string
	healthy := true
	if err := h.Ping(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open": stats.MaxOpenConnections,
			"open":     stats.OpenConnections,
			"in_use":   stats.InUse,
			"idle":     stats.Idle,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

// Ping tests basic connectivity to database
func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	return h.db.PingContext(pingCtx)
}
