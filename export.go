package gloss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1"

// ExportFormat is the top-level structure for JSON exports.
type ExportFormat struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Owner      string        `json:"owner,omitempty"`
	Counts     FamilyCounts  `json:"counts"`
	Store      PersonalStore `json:"store"`
}

// Export writes the local snapshot as indented JSON.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := c.local.Load()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	owner, err := c.local.Owner()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	doc := ExportFormat{
		Version:    ExportVersion,
		ExportedAt: c.stamp(),
		Owner:      owner,
		Counts:     s.Counts(),
		Store:      withCollections(s),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}
