package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Merge an export file into the local store",
	Long: `Merge a JSON export into the local store. Entries are merged the same
way a cloud sync merges: newer local notes are never overwritten, and
invalid entries in the file are skipped.

Imported entries reach the cloud on the next 'gloss sync'.

Example:
  gloss import -i backup.json
  gloss import -i backup.json --dry-run`,
	RunE: runImport,
}

var (
	importInputPath string
	importDryRun    bool
)

func init() {
	importCmd.Flags().StringVarP(&importInputPath, "input", "i", "", "Input file path (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview the merge without saving")
	_ = importCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(importInputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file not found: %s", importInputPath)
		}
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.client.Import(cmd.Context(), f, importDryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	printField(out, "Entries in file", "%d", result.Read)
	if result.Skipped > 0 {
		printField(out, "Skipped", "%d", result.Skipped)
	}
	fmt.Fprintln(out, renderTable([]string{"", "BOOKMARKS", "HIGHLIGHTS", "NOTES", "PLANS"}, [][]string{
		countsRow("before", result.Before),
		countsRow("after", result.After),
	}))

	if importDryRun {
		printMuted(out, "Dry-run complete. No changes made.")
	} else {
		printSuccess(out, "Import complete.")
	}
	return nil
}
