package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Track reading plan progress",
}

var planDoneCmd = &cobra.Command{
	Use:   "done <plan-id>",
	Short: "Mark a reading plan day as completed",
	Long: `Mark one day of a reading plan as completed. Marking the same day
twice is harmless.

Example:
  gloss plan done nt-90
  gloss plan done nt-90 --date 2024-05-01`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanDone,
}

var planDate string

func init() {
	planDoneCmd.Flags().StringVar(&planDate, "date", "", "Day as YYYY-MM-DD (default: today)")
	planCmd.AddCommand(planDoneCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlanDone(cmd *cobra.Command, args []string) error {
	date := planDate
	if date == "" {
		date = time.Now().Format(gloss.DateKeyLayout)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.client.MarkPlanDayCompleted(cmd.Context(), args[0], date)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, p)
	}
	out := cmd.OutOrStdout()
	printSuccess(out, "Plan %s: %s done", p.PlanID, date)
	printField(out, "Days completed", "%d", len(p.CompletedDates))
	return nil
}
