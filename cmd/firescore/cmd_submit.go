package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/firescore/internal/submission"
	"github.com/sawpanic/firescore/internal/table"
)

func (a *app) newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Write a submission file with a leading ID column",
		Long: `Submit reads a prediction table, numbers its rows from 0 into an ID column placed
first, and writes the result as CSV.

Examples:
  firescore submit --in preds.csv
  firescore submit --in preds.xlsx --out out/submission.csv`,
		Args: cobra.NoArgs,
		RunE: a.runSubmit,
	}

	cmd.Flags().String("in", "", "Prediction table (CSV or XLSX)")
	cmd.Flags().String("out", "", "Output path (default from config output.path)")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func (a *app) runSubmit(cmd *cobra.Command, _ []string) error {
	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = a.cfg.Output.Path
	}

	t, err := table.Load(in)
	if err != nil {
		return fmt.Errorf("load predictions: %w", err)
	}

	if err := submission.Create(t, out); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Wrote %d rows to %s\n", t.Len(), out)
	return nil
}
