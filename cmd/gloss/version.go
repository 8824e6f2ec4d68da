package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionShort bool

type versionInfo struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	Date         string `json:"date"`
	StoreKey     string `json:"store_key"`
	ExportFormat string `json:"export_format"`
	Go           string `json:"go"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Display the gloss version, the local snapshot key and export format it
reads and writes, and runtime information.`,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print the version number only")
	rootCmd.AddCommand(versionCmd)
}

// buildVersion prefers the ldflags version, then the module version recorded
// by `go install`.
func buildVersion() string {
	if version != "dev" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return version
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := versionInfo{
		Version:      buildVersion(),
		Commit:       commit,
		Date:         date,
		StoreKey:     gloss.KeyStoreV2,
		ExportFormat: gloss.ExportVersion,
		Go:           runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
	}

	out := cmd.OutOrStdout()
	if versionShort {
		fmt.Fprintln(out, info.Version)
		return nil
	}
	if outputJSON {
		return outputAsJSON(cmd, info)
	}

	if isTTY() {
		fmt.Fprintln(out, renderBannerWithTagline())
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "gloss %s (%s, %s)\n", info.Version, info.Commit, info.Date)
	printField(out, "Snapshot", "%s", info.StoreKey)
	printField(out, "Export format", "v%s", info.ExportFormat)
	printField(out, "Runtime", "%s %s/%s", info.Go, info.OS, info.Arch)
	return nil
}
