package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the local store to a JSON file",
	Long: `Export every bookmark, highlight, note and plan in the local store to
a versioned JSON file.

Example:
  gloss export -o backup.json`,
	RunE: runExport,
}

var exportOutputPath string

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	_ = exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}

// ExportResult for JSON output.
type ExportResult struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Duration string `json:"duration"`
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := ensureParentDir(exportOutputPath); err != nil {
		return err
	}

	start := time.Now()
	f, err := os.Create(exportOutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := a.client.Export(cmd.Context(), f); err != nil {
		_ = f.Close()
		_ = os.Remove(exportOutputPath)
		return fmt.Errorf("export failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	duration := time.Since(start)

	var size int64
	if fi, err := os.Stat(exportOutputPath); err == nil {
		size = fi.Size()
	}

	if outputJSON {
		return outputAsJSON(cmd, ExportResult{
			FilePath: exportOutputPath,
			FileSize: size,
			Duration: duration.Round(time.Millisecond).String(),
		})
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "File size: %s\n", formatBytes(size))
	fmt.Fprintf(&summary, "Duration:  %s\n", duration.Round(time.Millisecond))
	fmt.Fprintf(&summary, "Output:    %s", exportOutputPath)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderPanel("Export Summary", summary.String()))
	printSuccess(out, "Export complete")
	return nil
}

// ensureParentDir creates the parent directory of path if it doesn't exist.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}
