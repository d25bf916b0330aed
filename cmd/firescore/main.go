package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/firescore/internal/application"
	"github.com/sawpanic/firescore/internal/config"
	"github.com/sawpanic/firescore/internal/infrastructure/db"
	"github.com/sawpanic/firescore/internal/leaderboard"
	"github.com/sawpanic/firescore/internal/secrets"
	"github.com/sawpanic/firescore/internal/telemetry"
)

const (
	appName = "firescore"
	version = "v0.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// app carries state shared by all subcommands once the root pre-run has loaded config
type app struct {
	out io.Writer
	cfg *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Score wildfire size predictions",
		Version: version,
		Long: `firescore grades total_fire_size predictions per (STATE, month) against a
solution table. Each row costs |ln(pred/true)| clamped to 10; missing or invalid
predictions cost 10. The score is the mean, lower is better.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().AddFlagSet(globalFlags())

	rootCmd.AddCommand(
		a.newScoreCmd(),
		a.newSubmitCmd(),
		a.newServeCmd(),
		a.newLeaderboardCmd(),
		a.newHistoryCmd(),
		a.newConfigCmd(),
	)

	return rootCmd
}

func globalFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.String("config", config.DefaultPath, "Config file (YAML); optional unless set explicitly")
	fs.String("log-level", "", "Log level override (trace|debug|info|warn|error)")
	return fs
}

// setup loads config and configures the global logger
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	cfg, err := config.Load(path, flags.Changed("config"))
	if err != nil {
		return err
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := configureLogging(cfg.Logging); err != nil {
		return err
	}

	a.cfg = cfg
	log.Debug().Str("config", path).Str("version", version).Msg("Configuration loaded")
	return nil
}

func configureLogging(lc config.LoggingConfig) error {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

// sinks are the optional stores a run reports to
type sinks struct {
	ledger *db.Manager
	board  *leaderboard.Board
}

// openSinks connects the ledger and leaderboard that config enables
func (a *app) openSinks(ctx context.Context) (*sinks, error) {
	redactor := secrets.NewRedactor()

	manager, err := db.NewManager(ctx, a.cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %s", redactor.RedactString(err.Error()))
	}
	if manager.IsEnabled() {
		log.Info().Str("dsn", redactor.RedactString(a.cfg.Ledger.DSN)).Msg("Ledger connected")
	}

	s := &sinks{ledger: manager}
	if a.cfg.Leaderboard.Enabled {
		s.board = leaderboard.Open(a.cfg.Leaderboard)
		log.Info().Str("addr", a.cfg.Leaderboard.Addr).Str("key", a.cfg.Leaderboard.Key).Msg("Leaderboard enabled")
	}
	return s, nil
}

func (s *sinks) options() []application.Option {
	var opts []application.Option
	if s.ledger.IsEnabled() {
		opts = append(opts, application.WithLedger(s.ledger.Repository().Runs))
	}
	if s.board != nil {
		opts = append(opts, application.WithLeaderboard(s.board))
	}
	return opts
}

func (s *sinks) Close() {
	if err := s.ledger.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close ledger")
	}
	if s.board != nil {
		if err := s.board.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close leaderboard")
		}
	}
}

func (a *app) newEvaluator(s *sinks, metrics *telemetry.Metrics) *application.Evaluator {
	return application.NewEvaluator(a.cfg.Metric, metrics, s.options()...)
}
