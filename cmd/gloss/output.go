package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss"
)

// nowFunc is the CLI's clock for relative times.
var nowFunc = time.Now

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to w with secrets scrubbed.
func outputError(w io.Writer, err error) {
	printError(w, "Error: %s", scrubSensitiveData(err.Error()))
}

// scrubSensitiveData removes the API key, access token and any DSN password
// from a message. The library never includes them; this is a second line.
func scrubSensitiveData(msg string) string {
	secrets := []string{cfgAPIKey, os.Getenv("GLOSS_CLOUD_API_KEY"), os.Getenv("GLOSS_ACCESS_TOKEN")}
	for _, dsn := range []string{cfgCloudDSN, os.Getenv("GLOSS_CLOUD_DSN")} {
		if u, err := url.Parse(dsn); err == nil && u.User != nil {
			if pw, ok := u.User.Password(); ok {
				secrets = append(secrets, pw)
			}
		}
	}
	for _, s := range secrets {
		if s != "" && strings.Contains(msg, s) {
			msg = strings.ReplaceAll(msg, s, "[REDACTED]")
		}
	}
	return msg
}

// EntryOutput is one annotation in list and mutation output.
type EntryOutput struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	Range     string    `json:"range"`
	Color     string    `json:"color,omitempty"`
	Note      string    `json:"note,omitempty"`
	Label     string    `json:"reference_label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func outputEntry(cmd *cobra.Command, verb string, e EntryOutput) error {
	if outputJSON {
		return outputAsJSON(cmd, e)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "%s %s (%s)", verb, e.Range, e.Scope)
	printField(out, "ID", "%s", e.ID)
	if e.Color != "" {
		printField(out, "Color", "%s", swatch(e.Color))
	}
	if e.Note != "" {
		printField(out, "Note", "%s", e.Note)
	}
	if e.Label != "" {
		printField(out, "Label", "%s", e.Label)
	}
	return nil
}

// outputSession prints a session sync result.
func outputSession(cmd *cobra.Command, res *gloss.SessionResult) error {
	if outputJSON {
		return outputAsJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	switch res.Cloud {
	case gloss.CloudOK:
		printSuccess(out, "Synced %s (took %s)", res.AccountID, res.Duration.Round(time.Millisecond))
	case gloss.CloudOffline:
		printWarning(out, "Bound to %s; no cloud store configured", res.AccountID)
	default:
		printWarning(out, "Bound to %s; cloud %s", res.AccountID, res.Cloud)
	}
	if res.OwnerChanged {
		printMuted(out, "Local data of the previous account was cleared.")
	}

	rows := [][]string{
		countsRow("local", res.Local),
		countsRow("cloud", res.Remote),
		countsRow("merged", res.Merged),
	}
	if res.Sync != nil {
		rows = append(rows, countsRow("written", res.Sync.Written), countsRow("deleted", res.Sync.Deleted))
	}
	fmt.Fprintln(out, renderTable([]string{"", "BOOKMARKS", "HIGHLIGHTS", "NOTES", "PLANS"}, rows))

	if res.Sync != nil && res.Sync.ReconcileSkipped {
		printWarning(out, "Cloud cleanup skipped: %s", res.Sync.SkipReason)
	}
	if res.Error != "" {
		printError(out, "%s", scrubSensitiveData(res.Error))
	}
	printMuted(out, "Run %s", res.RunID)
	return nil
}

func countsRow(label string, c gloss.FamilyCounts) []string {
	return []string{
		label,
		fmt.Sprint(c.Bookmarks),
		fmt.Sprint(c.Highlights),
		fmt.Sprint(c.Notes),
		fmt.Sprint(c.Plans),
	}
}

// formatRelativeTime formats t relative to now (e.g., "2h ago").
func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
