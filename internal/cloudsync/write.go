package cloudsync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/internal/cloud"
)

// UpsertBookmark implements gloss.CloudAdapter.
func (a *Adapter) UpsertBookmark(ctx context.Context, userID string, e gloss.BookmarkEntry) error {
	_, err := a.upsert(ctx, bookmarks, userID, []record{fromBookmark(e)})
	return err
}

// UpsertHighlight implements gloss.CloudAdapter.
func (a *Adapter) UpsertHighlight(ctx context.Context, userID string, e gloss.HighlightEntry) error {
	_, err := a.upsert(ctx, highlights, userID, []record{fromHighlight(e)})
	return err
}

// UpsertNote implements gloss.CloudAdapter.
func (a *Adapter) UpsertNote(ctx context.Context, userID string, e gloss.NoteEntry) error {
	_, err := a.upsert(ctx, notes, userID, []record{fromNote(e)})
	return err
}

// RemoveBookmark implements gloss.CloudAdapter.
func (a *Adapter) RemoveBookmark(ctx context.Context, userID, id string) error {
	return a.remove(ctx, bookmarks, userID, id)
}

// RemoveHighlight implements gloss.CloudAdapter.
func (a *Adapter) RemoveHighlight(ctx context.Context, userID, id string) error {
	return a.remove(ctx, highlights, userID, id)
}

// RemoveNote implements gloss.CloudAdapter.
func (a *Adapter) RemoveNote(ctx context.Context, userID, id string) error {
	return a.remove(ctx, notes, userID, id)
}

// UpsertPlanProgress implements gloss.CloudAdapter.
func (a *Adapter) UpsertPlanProgress(ctx context.Context, userID string, p gloss.PlanProgress) error {
	if err := a.tr.Upsert(ctx, planTable, []cloud.Row{encodePlan(userID, p)}, planConflict); err != nil {
		return &gloss.SyncError{Operation: "upsert " + planTable, Err: err}
	}
	return nil
}

// upsert writes range rows, falling back to per-verse rows when the table
// does not have the range layout. It reports whether the fallback took.
//
// Records are written oldest first and each batch keeps one row per conflict
// key, so when two records address the same row the newest wins. The
// per-verse layout cannot hold overlapping ranges: a verse covered by two
// entries keeps only the newer one.
func (a *Adapter) upsert(ctx context.Context, f family, userID string, recs []record) (bool, error) {
	if len(recs) == 0 {
		return false, nil
	}
	recs = oldestFirst(recs)

	rows := make([]cloud.Row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, encodeScoped(f, userID, r))
	}
	err := a.tr.Upsert(ctx, f.table, lastPerKey(rows, scopedConflict), scopedConflict)
	if err == nil {
		return false, nil
	}
	if !cloud.IsSchemaMismatch(err) {
		return false, &gloss.SyncError{Operation: "upsert " + f.table, Err: err}
	}

	a.log.Debug().Err(err).Str("table", f.table).Msg("range rows rejected, writing per-verse rows")

	var verseRows []cloud.Row
	for _, r := range recs {
		verseRows = append(verseRows, expandMobile(f, userID, r)...)
	}
	if err := a.tr.Upsert(ctx, f.table, lastPerKey(verseRows, mobileConflict), mobileConflict); err != nil {
		return !cloud.IsSchemaMismatch(err), &gloss.SyncError{Operation: "upsert " + f.table, Err: err}
	}
	return true, nil
}

func oldestFirst(recs []record) []record {
	out := append([]record(nil), recs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].timestamp().Before(out[j].timestamp()) })
	return out
}

// lastPerKey keeps the last row for each conflict key, at the position the
// key first appeared.
func lastPerKey(rows []cloud.Row, conflict []string) []cloud.Row {
	index := make(map[string]int, len(rows))
	out := make([]cloud.Row, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, len(conflict))
		for i, c := range conflict {
			parts[i] = fmt.Sprint(row[c])
		}
		k := strings.Join(parts, "\x00")
		if i, ok := index[k]; ok {
			out[i] = row
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out
}

// remove deletes by id, falling back to deleting the per-verse rows the id
// addresses under every spelling of its version.
func (a *Adapter) remove(ctx context.Context, f family, userID, id string) error {
	err := a.tr.Delete(ctx, f.table, cloud.Eq("user_id", userID, "id", id))
	if err == nil {
		return nil
	}
	if !cloud.IsSchemaMismatch(err) {
		return &gloss.SyncError{Operation: "delete " + f.table, Err: err}
	}

	scope, r, perr := gloss.ParseID(id)
	if perr != nil {
		return &gloss.SyncError{Operation: "delete " + f.table, Err: fmt.Errorf("per-verse fallback: %w", perr)}
	}

	filter := cloud.Eq(
		"user_id", userID,
		"language_code", string(scope.Language),
		"book_id", r.BookID,
		"chapter_number", r.Chapter,
	).
		WithIn("version_code", toAny(gloss.VersionSpellings(scope))).
		WithIn("verse_number", toAny(r.Verses()))

	if err := a.tr.Delete(ctx, f.table, filter); err != nil {
		return &gloss.SyncError{Operation: "delete " + f.table, Err: err}
	}
	return nil
}

func toAny[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
