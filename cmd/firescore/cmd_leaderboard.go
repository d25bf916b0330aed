package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/firescore/internal/leaderboard"
)

func (a *app) newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the best teams",
		Long:  "Prints each team's best score from the Redis leaderboard, lowest first",
		Args:  cobra.NoArgs,
		RunE:  a.runLeaderboard,
	}

	cmd.Flags().Int("top", 10, "Number of teams to show")
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")
	cmd.Flags().String("team", "", "Show only this team's rank")

	return cmd
}

func (a *app) runLeaderboard(cmd *cobra.Command, _ []string) error {
	top, _ := cmd.Flags().GetInt("top")
	asJSON, _ := cmd.Flags().GetBool("json")
	team, _ := cmd.Flags().GetString("team")
	if top <= 0 {
		return fmt.Errorf("--top must be positive, got %d", top)
	}
	if !a.cfg.Leaderboard.Enabled {
		return errors.New("leaderboard is disabled; set leaderboard.enabled in config or FIRESCORE_LEADERBOARD_ENABLED=true")
	}

	board := leaderboard.Open(a.cfg.Leaderboard)
	defer board.Close()

	if team != "" {
		entry, err := board.Rank(cmd.Context(), team)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("team %s has no score on the leaderboard", team)
		}
		return printLeaderboard(a, []leaderboard.Entry{*entry}, asJSON)
	}

	entries, err := board.Top(cmd.Context(), top)
	if err != nil {
		return err
	}
	return printLeaderboard(a, entries, asJSON)
}

func printLeaderboard(a *app, entries []leaderboard.Entry, asJSON bool) error {
	if asJSON {
		if entries == nil {
			entries = []leaderboard.Entry{}
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No scores yet")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTEAM\tSCORE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%.6f\n", e.Rank, e.Team, e.Score)
	}
	return tw.Flush()
}
