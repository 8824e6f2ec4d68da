package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local store statistics",
	Long: `Display annotation counts, the bound account and recent syncs.

Example:
  gloss stats
  gloss stats --runs 10`,
	RunE: runStats,
}

var statsRuns int

func init() {
	statsCmd.Flags().IntVar(&statsRuns, "runs", 5, "Number of recent syncs to show")
	rootCmd.AddCommand(statsCmd)
}

// StatsResult for JSON output.
type StatsResult struct {
	*gloss.StoreStats
	Location string          `json:"location"`
	Runs     []gloss.SyncRun `json:"runs"`
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.client.Stats()
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	runs, err := a.client.SyncRuns(statsRuns)
	if err != nil {
		return fmt.Errorf("get sync runs: %w", err)
	}

	if outputJSON {
		if runs == nil {
			runs = []gloss.SyncRun{}
		}
		return outputAsJSON(cmd, StatsResult{StoreStats: stats, Location: a.cfg.LocalPath, Runs: runs})
	}

	out := cmd.OutOrStdout()
	owner := stats.Owner
	if owner == "" {
		owner = "(not bound)"
	}

	printInfo(out, "Local Store")
	printField(out, "Location", "%s", a.cfg.LocalPath)
	printField(out, "Account", "%s", owner)
	printField(out, "Schema", "v%s", stats.SchemaVersion)
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"BOOKMARKS", "HIGHLIGHTS", "NOTES", "PLANS"},
		[][]string{countsRow("", stats.Counts)[1:]},
	))

	fmt.Fprintln(out)
	if len(runs) == 0 {
		printMuted(out, "Last sync: never")
		return nil
	}

	now := nowFunc()
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		note := r.Error
		if r.ReconcileSkipped {
			note = "cleanup skipped"
		}
		rows = append(rows, []string{
			formatRelativeTime(r.FinishedAt, now),
			string(r.Status),
			fmt.Sprint(r.Merged),
			fmt.Sprint(r.Written),
			fmt.Sprint(r.Deleted),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			note,
		})
	}
	printInfo(out, "Recent syncs")
	fmt.Fprintln(out, renderTable([]string{"WHEN", "CLOUD", "MERGED", "WRITTEN", "DELETED", "TOOK", "NOTE"}, rows))
	return nil
}
