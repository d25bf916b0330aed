package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/sawpanic/firescore/internal/interfaces/http"
	"github.com/sawpanic/firescore/internal/telemetry"
)

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring HTTP API",
		Long:  "Starts an HTTP server with POST /score, GET /leaderboard, GET /health and GET /metrics",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}

	cmd.Flags().String("host", "", "HTTP server host (default from config server.host)")
	cmd.Flags().Int("port", 0, "HTTP server port (default from config server.port)")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	serverConfig := a.cfg.Server
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		serverConfig.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		serverConfig.Port = port
	}

	ctx := cmd.Context()
	s, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	metrics := telemetry.NewMetrics()
	deps := httpapi.Deps{
		Evaluator: a.newEvaluator(s, metrics),
		Metrics:   metrics,
		Version:   version,
	}
	if s.ledger.IsEnabled() {
		deps.Health = s.ledger.Health()
	}
	if s.board != nil {
		deps.Leaderboard = s.board
	}

	log.Info().
		Bool("ledger", s.ledger.IsEnabled()).
		Bool("leaderboard", s.board != nil).
		Msg("Scoring API configured")

	return httpapi.NewServer(serverConfig, deps).Run(ctx)
}
