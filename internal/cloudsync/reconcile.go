package cloudsync

import (
	"context"
	"fmt"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/internal/cloud"
)

// staleSet is the cloud keys of one table absent from the local snapshot.
type staleSet struct {
	table  string
	column string
	keys   []any
}

// SyncStore implements gloss.CloudAdapter. Every local entry is written
// first. Stale cloud keys are then collected for all four tables before the
// first delete, so a schema problem in any table leaves the cloud untouched.
func (a *Adapter) SyncStore(ctx context.Context, userID string, store gloss.PersonalStore) (gloss.SyncReport, error) {
	var (
		report  gloss.SyncReport
		reasons []string
	)

	local := map[string][]record{
		bookmarks.table:  make([]record, 0, len(store.Bookmarks)),
		highlights.table: make([]record, 0, len(store.Highlights)),
		notes.table:      make([]record, 0, len(store.Notes)),
	}
	for _, e := range store.Bookmarks {
		local[bookmarks.table] = append(local[bookmarks.table], fromBookmark(e).canonical())
	}
	for _, e := range store.Highlights {
		local[highlights.table] = append(local[highlights.table], fromHighlight(e).canonical())
	}
	for _, e := range store.Notes {
		local[notes.table] = append(local[notes.table], fromNote(e).canonical())
	}

	for _, f := range families {
		// A legacy id and its canonical id are one row in the cloud.
		recs := dedupe(local[f.table])
		local[f.table] = recs
		fallback, err := a.upsert(ctx, f, userID, recs)
		if fallback {
			report.MobileFallback = append(report.MobileFallback, f.table)
			reasons = append(reasons, f.table+" uses per-verse rows")
		}
		if err != nil {
			if cloud.IsSchemaMismatch(err) {
				reasons = append(reasons, fmt.Sprintf("%s: %v", f.table, err))
				continue
			}
			return report, err
		}
		setCount(&report.Written, f.table, len(recs))
	}

	if len(store.PlanProgress) > 0 {
		rows := make([]cloud.Row, 0, len(store.PlanProgress))
		for _, p := range store.PlanProgress {
			rows = append(rows, encodePlan(userID, p))
		}
		err := a.tr.Upsert(ctx, planTable, rows, planConflict)
		switch {
		case cloud.IsSchemaMismatch(err):
			reasons = append(reasons, fmt.Sprintf("%s: %v", planTable, err))
		case err != nil:
			return report, &gloss.SyncError{Operation: "upsert " + planTable, Err: err}
		default:
			report.Written.Plans = len(rows)
		}
	}

	if len(reasons) > 0 {
		return a.skip(report, reasons), nil
	}

	var stale []staleSet
	for _, f := range families {
		keep := make(map[string]struct{}, len(local[f.table]))
		for _, r := range local[f.table] {
			keep[r.canonical().ID] = struct{}{}
		}
		set, err := a.collectStale(ctx, f.table, "id", userID, keep)
		if cloud.IsSchemaMismatch(err) {
			return a.skip(report, []string{fmt.Sprintf("%s: %v", f.table, err)}), nil
		}
		if err != nil {
			return report, err
		}
		stale = append(stale, set)
	}

	keepPlans := make(map[string]struct{}, len(store.PlanProgress))
	for id := range store.PlanProgress {
		keepPlans[id] = struct{}{}
	}
	set, err := a.collectStale(ctx, planTable, "plan_id", userID, keepPlans)
	if cloud.IsSchemaMismatch(err) {
		return a.skip(report, []string{fmt.Sprintf("%s: %v", planTable, err)}), nil
	}
	if err != nil {
		return report, err
	}
	stale = append(stale, set)

	for _, s := range stale {
		if len(s.keys) == 0 {
			continue
		}
		filter := cloud.Eq("user_id", userID).WithIn(s.column, s.keys)
		if err := a.tr.Delete(ctx, s.table, filter); err != nil {
			return report, &gloss.SyncError{Operation: "reconcile " + s.table, Err: err}
		}
		setCount(&report.Deleted, s.table, len(s.keys))
		a.log.Debug().Str("table", s.table).Int("deleted", len(s.keys)).Msg("reconciled")
	}

	return report, nil
}

func (a *Adapter) collectStale(ctx context.Context, table, column, userID string, keep map[string]struct{}) (staleSet, error) {
	rows, err := a.tr.Select(ctx, table, []string{column}, cloud.Eq("user_id", userID))
	if cloud.IsSchemaMismatch(err) {
		return staleSet{}, err
	}
	if err != nil {
		return staleSet{}, &gloss.SyncError{Operation: "reconcile " + table, Err: err}
	}

	set := staleSet{table: table, column: column}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		key := asString(row[column])
		if key == "" {
			continue
		}
		if _, ok := keep[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		set.keys = append(set.keys, key)
	}
	return set, nil
}

func (a *Adapter) skip(report gloss.SyncReport, reasons []string) gloss.SyncReport {
	report.ReconcileSkipped = true
	report.SkipReason = reasons[0]
	if len(reasons) > 1 {
		report.SkipReason = fmt.Sprintf("%s (and %d more)", reasons[0], len(reasons)-1)
	}
	a.log.Warn().Strs("reasons", reasons).Msg("reconciliation skipped")
	return report
}

func setCount(c *gloss.FamilyCounts, table string, n int) {
	switch table {
	case bookmarks.table:
		c.Bookmarks = n
	case highlights.table:
		c.Highlights = n
	case notes.table:
		c.Notes = n
	case planTable:
		c.Plans = n
	}
}
