package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/sawpanic/firescore/internal/application"
	fsio "github.com/sawpanic/firescore/internal/io"
	"github.com/sawpanic/firescore/internal/metric"
	"github.com/sawpanic/firescore/internal/table"
	"github.com/sawpanic/firescore/internal/telemetry"
)

func (a *app) newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a submission against a solution",
		Long: `Score joins the submission onto the solution by (STATE, month) and prints the
clamped mean absolute log-ratio error.

Examples:
  firescore score --solution truth.csv --submission preds.csv
  firescore score --solution truth.xlsx --submission preds.csv --where 'row.state == "CA"'
  firescore score --solution truth.csv --submission preds.csv --team hotshots --format json`,
		Args: cobra.NoArgs,
		RunE: a.runScore,
	}

	cmd.Flags().String("solution", "", "Solution table (CSV or XLSX)")
	cmd.Flags().String("submission", "", "Submission table (CSV or XLSX)")
	cmd.Flags().String("where", "", "CEL expression over row.state, row.month, row.value, row.id")
	cmd.Flags().String("format", "auto", "Output format (auto|text|json)")
	cmd.Flags().String("details", "", "Write per-row results as CSV to this file")
	cmd.Flags().String("out", "", "Also write the JSON result to this file")
	cmd.Flags().String("team", "", "Team name for the ledger and leaderboard")
	cmd.Flags().String("metrics-out", "", "Write Prometheus metrics in text format to this file")
	_ = cmd.MarkFlagRequired("solution")
	_ = cmd.MarkFlagRequired("submission")

	return cmd
}

func (a *app) runScore(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	solutionPath, _ := flags.GetString("solution")
	submissionPath, _ := flags.GetString("submission")
	where, _ := flags.GetString("where")
	format, _ := flags.GetString("format")
	detailsPath, _ := flags.GetString("details")
	team, _ := flags.GetString("team")
	metricsOut, _ := flags.GetString("metrics-out")
	outPath, _ := flags.GetString("out")

	format, err := resolveFormat(format, a.out)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	solution, submission, err := a.loadRecords(solutionPath, submissionPath)
	if err != nil {
		return err
	}

	s, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	metrics := telemetry.NewMetrics()
	outcome, err := a.newEvaluator(s, metrics).Evaluate(ctx, application.Request{
		Team:           team,
		Filter:         where,
		SolutionName:   solutionPath,
		SubmissionName: submissionPath,
		Solution:       solution,
		Submission:     submission,
	})
	if err != nil {
		return fmt.Errorf("score %s: %w", submissionPath, err)
	}

	if detailsPath != "" {
		if err := fsio.WriteCSVAtomic(detailsPath, detailsTable(outcome.Result.Joined)); err != nil {
			return fmt.Errorf("write details: %w", err)
		}
		log.Info().Str("path", detailsPath).Int("rows", len(outcome.Result.Joined)).Msg("Details written")
	}

	if outPath != "" {
		if err := fsio.WriteJSONAtomic(outPath, outcome); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	if metricsOut != "" {
		if err := metrics.WriteTextfile(metricsOut); err != nil {
			return err
		}
		log.Info().Str("path", metricsOut).Msg("Metrics written")
	}

	if err := printOutcome(a.out, format, outcome); err != nil {
		return err
	}

	if team != "" && s.ledger.IsEnabled() && format == "text" {
		best, err := s.ledger.Repository().Runs.BestByTeam(ctx, team)
		if err != nil {
			log.Warn().Err(err).Str("team", team).Msg("Failed to read best run")
		} else if best != nil {
			fmt.Fprintf(a.out, "Best:    %.6f (%s)\n", best.Score, best.CreatedAt.Local().Format(time.DateTime))
		}
	}
	return nil
}

// loadRecords reads both tables concurrently and extracts their records
func (a *app) loadRecords(solutionPath, submissionPath string) ([]metric.Record, []metric.Record, error) {
	start := time.Now()

	var solutionTable, submissionTable *table.Table
	var g errgroup.Group
	g.Go(func() error {
		t, err := table.Load(solutionPath)
		if err != nil {
			return fmt.Errorf("load solution: %w", err)
		}
		solutionTable = t
		return nil
	})
	g.Go(func() error {
		t, err := table.Load(submissionPath)
		if err != nil {
			return fmt.Errorf("load submission: %w", err)
		}
		submissionTable = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	solution, err := metric.RecordsFromTable(solutionTable, a.cfg.Columns, metric.RoleSolution)
	if err != nil {
		return nil, nil, err
	}
	submission, err := metric.RecordsFromTable(submissionTable, a.cfg.Columns, metric.RoleSubmission)
	if err != nil {
		return nil, nil, err
	}

	log.Debug().
		Int("solution_rows", len(solution)).
		Int("submission_rows", len(submission)).
		Dur("elapsed", time.Since(start)).
		Msg("Tables loaded")

	return solution, submission, nil
}

// resolveFormat turns auto into text on a terminal and json otherwise
func resolveFormat(format string, out io.Writer) (string, error) {
	switch format {
	case "text", "json":
		return format, nil
	case "auto":
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return "text", nil
		}
		return "json", nil
	default:
		return "", fmt.Errorf("invalid format: %s (valid: auto, text, json)", format)
	}
}

func detailsTable(rows []metric.JoinedRow) *table.Table {
	t := table.New("ID", "STATE", "month", "true", "pred", "class", "error")
	for _, row := range rows {
		pred := ""
		if row.HasPred {
			pred = formatFloat(row.Pred)
		}
		// widths always match the header
		_ = t.Append(
			row.ID,
			row.Key.State,
			row.Key.Month,
			formatFloat(row.True),
			pred,
			string(row.Class),
			formatFloat(row.Error),
		)
	}
	return t
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func printOutcome(w io.Writer, format string, outcome *application.Outcome) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	r := outcome.Result
	fmt.Fprintf(w, "Score:   %.6f\n", r.Score)
	fmt.Fprintf(w, "Rows:    %d (valid %d, missing %d, invalid %d, clamped %d)\n",
		r.Rows, r.Valid, r.Missing, r.Invalid, r.Clamped)
	if r.Duplicates > 0 {
		fmt.Fprintf(w, "Duplicates: %d extra rows from repeated submission keys\n", r.Duplicates)
	}
	if r.Filtered > 0 {
		fmt.Fprintf(w, "Filtered: %d solution rows\n", r.Filtered)
	}
	fmt.Fprintf(w, "Run:     %s\n", outcome.RunID)
	if outcome.Recorded {
		fmt.Fprintln(w, "Ledger:  recorded")
	}
	if outcome.Improved {
		fmt.Fprintln(w, "Leaderboard: new best")
	}
	for _, warning := range outcome.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	return nil
}
