package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/gloss"
)

// handleStats handles the gloss_stats tool call.
func (s *Server) handleStats(ctx context.Context, args map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats()
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("get stats failed: %v", err),
			IsError: true,
		}, nil
	}
	return &ToolResult{Content: formatStats(stats, s.now())}, nil
}

// formatStats formats local store statistics for display.
func formatStats(stats *gloss.StoreStats, now time.Time) string {
	var sb strings.Builder

	owner := stats.Owner
	if owner == "" {
		owner = "(not bound)"
	}
	fmt.Fprintf(&sb, "Account: %s\n", owner)
	fmt.Fprintf(&sb, "Schema: v%s\n\n", stats.SchemaVersion)

	sb.WriteString("Annotations:\n")
	fmt.Fprintf(&sb, "  Bookmarks:  %d\n", stats.Counts.Bookmarks)
	fmt.Fprintf(&sb, "  Highlights: %d\n", stats.Counts.Highlights)
	fmt.Fprintf(&sb, "  Notes:      %d\n", stats.Counts.Notes)
	fmt.Fprintf(&sb, "  Plans:      %d\n", stats.Counts.Plans)
	sb.WriteString("\n")

	run := stats.LastSync
	if run == nil {
		sb.WriteString("Last sync: never\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Last sync: %s (%s, %s)\n", formatRelativeTime(run.FinishedAt, now), run.Status, formatTimestamp(run.FinishedAt))
	fmt.Fprintf(&sb, "  Merged: %d  Written: %d  Deleted: %d\n", run.Merged, run.Written, run.Deleted)
	if run.ReconcileSkipped {
		sb.WriteString("  Cloud cleanup was skipped: stale cloud entries may remain.\n")
	}
	if run.Error != "" {
		fmt.Fprintf(&sb, "  Error: %s\n", run.Error)
	}
	return sb.String()
}

// formatRelativeTime formats a timestamp as relative time (e.g., "2h ago").
func formatRelativeTime(t, now time.Time) string {
	duration := now.Sub(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	default:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
