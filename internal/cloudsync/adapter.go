// Package cloudsync implements gloss.CloudAdapter over a cloud.Transport. It
// reads and writes every schema shape the shared store has been deployed with:
// range rows with scope columns, range rows without them, and the per-verse
// rows written by the mobile app.
package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/internal/cloud"
)

// Adapter implements gloss.CloudAdapter. Safe for concurrent use.
type Adapter struct {
	tr  cloud.Transport
	log zerolog.Logger
}

var _ gloss.CloudAdapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New creates an adapter over tr.
func New(tr cloud.Transport, opts ...Option) *Adapter {
	a := &Adapter{tr: tr, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch implements gloss.CloudAdapter. Each family is probed independently in
// the order scoped, legacy, mobile; a family with no usable shape reads as
// empty. When no family is readable the store is unsupported.
func (a *Adapter) Fetch(ctx context.Context, userID string) (gloss.PersonalStore, error) {
	out := gloss.NewPersonalStore()
	readable := 0

	for _, f := range families {
		recs, s, err := a.readFamily(ctx, f, userID)
		if errors.Is(err, gloss.ErrCloudUnsupported) {
			a.log.Warn().Str("table", f.table).Msg("no known schema shape for table")
			continue
		}
		if err != nil {
			return gloss.PersonalStore{}, err
		}
		readable++
		a.log.Debug().Str("table", f.table).Str("shape", string(s)).Int("entries", len(recs)).Msg("fetched")

		for _, r := range recs {
			switch f.table {
			case bookmarks.table:
				out.Bookmarks = append(out.Bookmarks, r.bookmark())
			case highlights.table:
				out.Highlights = append(out.Highlights, r.highlight())
			case notes.table:
				out.Notes = append(out.Notes, r.note())
			}
		}
	}

	plans, err := a.readPlans(ctx, userID)
	switch {
	case cloud.IsSchemaMismatch(err):
		a.log.Warn().Err(err).Msg("plan progress table unusable")
	case err != nil:
		return gloss.PersonalStore{}, &gloss.SyncError{Operation: "fetch " + planTable, Err: err}
	default:
		readable++
		for _, p := range plans {
			out.PlanProgress[p.PlanID] = p
		}
	}

	if readable == 0 {
		return gloss.PersonalStore{}, gloss.ErrCloudUnsupported
	}
	return out, nil
}

// readFamily probes shapes until one answers. Only schema mismatches move on
// to the next shape; any other failure is returned as is.
func (a *Adapter) readFamily(ctx context.Context, f family, userID string) ([]record, shape, error) {
	for _, s := range probeOrder {
		rows, err := a.tr.Select(ctx, f.table, f.columns(s), cloud.Eq("user_id", userID))
		if cloud.IsSchemaMismatch(err) {
			a.log.Debug().Err(err).Str("table", f.table).Str("shape", string(s)).Msg("shape mismatch, trying next")
			continue
		}
		if err != nil {
			return nil, s, &gloss.SyncError{Operation: "fetch " + f.table, Err: err}
		}
		return a.decodeRows(f, s, rows), s, nil
	}
	return nil, "", fmt.Errorf("%w: %s", gloss.ErrCloudUnsupported, f.table)
}

func (a *Adapter) decodeRows(f family, s shape, rows []cloud.Row) []record {
	recs := make([]record, 0, len(rows))
	for _, row := range rows {
		var r record
		if s == shapeMobile {
			r = decodeVerse(f, row)
		} else {
			r = decodeRange(f, row)
		}
		if err := r.validate(f); err != nil {
			a.log.Debug().Err(err).Str("table", f.table).Msg("dropping invalid cloud row")
			continue
		}
		recs = append(recs, r)
	}
	if s == shapeMobile {
		recs = collapse(f, recs)
	}
	return dedupe(recs)
}

// dedupe keeps the newest record per id.
func dedupe(recs []record) []record {
	index := make(map[string]int, len(recs))
	out := recs[:0:0]
	for _, r := range recs {
		if i, ok := index[r.ID]; ok {
			if r.timestamp().After(out[i].timestamp()) {
				out[i] = r
			}
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func (r record) timestamp() time.Time {
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

func (a *Adapter) readPlans(ctx context.Context, userID string) ([]gloss.PlanProgress, error) {
	rows, err := a.tr.Select(ctx, planTable, planColumns, cloud.Eq("user_id", userID))
	if err != nil {
		return nil, err
	}
	out := make([]gloss.PlanProgress, 0, len(rows))
	for _, row := range rows {
		if p, ok := decodePlan(row); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Shapes reports which schema shape each table answers in, "missing" when none.
func (a *Adapter) Shapes(ctx context.Context, userID string) (map[string]string, error) {
	out := make(map[string]string, len(families)+1)
	for _, f := range families {
		_, s, err := a.readFamily(ctx, f, userID)
		switch {
		case errors.Is(err, gloss.ErrCloudUnsupported):
			out[f.table] = "missing"
		case err != nil:
			return nil, err
		default:
			out[f.table] = string(s)
		}
	}

	_, err := a.readPlans(ctx, userID)
	switch {
	case cloud.IsSchemaMismatch(err):
		out[planTable] = "missing"
	case err != nil:
		return nil, &gloss.SyncError{Operation: "fetch " + planTable, Err: err}
	default:
		out[planTable] = string(shapeScoped)
	}
	return out, nil
}
