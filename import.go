package gloss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ImportResult summarizes an import operation.
type ImportResult struct {
	// Read is how many entries the file held, plans included.
	Read int `json:"read"`
	// Skipped entries were invalid or duplicated within the file.
	Skipped int          `json:"skipped"`
	Before  FamilyCounts `json:"before"`
	After   FamilyCounts `json:"after"`
	DryRun  bool         `json:"dry_run"`
}

// importDocument mirrors ExportFormat with entries left raw so each one is
// validated on its own.
type importDocument struct {
	Version string     `json:"version"`
	Store   storedBlob `json:"store"`
}

// Import merges an export file into the local snapshot. Imported entries
// compete with local ones by timestamp, so newer local data always survives.
// With dryRun the merged result is computed and reported but not saved.
// Imported entries reach the cloud on the next StartSession.
func (c *Client) Import(ctx context.Context, r io.Reader, dryRun bool) (*ImportResult, error) {
	var doc importDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &UserInputError{Field: "file", Message: fmt.Sprintf("not a gloss export: %v", err)}
	}
	if doc.Version != ExportVersion {
		return nil, &UserInputError{Field: "version", Message: fmt.Sprintf("unsupported export version %q (expected %q)", doc.Version, ExportVersion)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	incoming := decodeBlob(doc.Store, c.logger.Component("import"))
	res := &ImportResult{
		Read: len(doc.Store.Bookmarks) + len(doc.Store.Highlights) +
			len(doc.Store.Notes) + len(doc.Store.PlanProgress),
		DryRun: dryRun,
	}
	res.Skipped = res.Read - incoming.Counts().Total()

	apply := func(s *PersonalStore) error {
		res.Before = s.Counts()
		*s = c.merger.Merge(*s, incoming)
		res.After = s.Counts()
		return nil
	}

	if dryRun {
		s, err := c.local.Load()
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
		_ = apply(&s)
	} else if _, err := c.local.Mutate(apply); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	c.log.Info().
		Int("read", res.Read).
		Int("skipped", res.Skipped).
		Int("after", res.After.Total()).
		Bool("dry_run", dryRun).
		Msg("import finished")
	return res, nil
}
