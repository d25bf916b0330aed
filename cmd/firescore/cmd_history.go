package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/firescore/internal/persistence"
)

func (a *app) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scoring runs from the ledger",
		Args:  cobra.NoArgs,
		RunE:  a.runHistory,
	}

	cmd.Flags().Int("limit", 20, "Number of runs to show")
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")

	return cmd
}

func (a *app) runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	if !a.cfg.Ledger.Enabled {
		return errors.New("ledger is disabled; set ledger.enabled and ledger.dsn in config or FIRESCORE_LEDGER_*")
	}

	s, err := a.openSinks(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ledger.Repository().Runs.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printHistory(a.out, runs, asJSON)
}

func printHistory(w io.Writer, runs []persistence.ScoreRun, asJSON bool) error {
	if asJSON {
		if runs == nil {
			runs = []persistence.ScoreRun{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tTEAM\tSCORE\tROWS\tMISSING\tINVALID\tSUBMISSION")
	for _, r := range runs {
		team := r.Team
		if team == "" {
			team = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%d\t%d\t%d\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), team, r.Score, r.Rows, r.Missing, r.Invalid, r.Submission)
	}
	return tw.Flush()
}
