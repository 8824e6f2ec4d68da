package cloudtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/gloss/internal/cloud"
)

// Run exercises a minimal compliance suite against a cloud.Transport whose
// tables are in the scoped shape. makeTransport should return a clean,
// isolated transport.
func Run(t *testing.T, makeTransport func(t *testing.T) cloud.Transport) {
	t.Helper()

	tr := makeTransport(t)
	ctx := context.Background()

	userID := uuid.New().String()
	otherID := uuid.New().String()
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	row := func(user, id string, verse int, color string) cloud.Row {
		return cloud.Row{
			"id": id, "user_id": user, "book_id": "JHN", "chapter": 3,
			"verse_start": verse, "verse_end": verse,
			"language_code": "id", "version_code": "TB1",
			"reference_label": "John 3", "excerpt": "", "color": color,
			"created_at": created,
		}
	}
	cols := []string{"id", "user_id", "color", "verse_start"}

	// Upsert inserts
	err := tr.Upsert(ctx, "highlights", []cloud.Row{
		row(userID, "id:TB1:JHN:3:16:16", 16, "yellow"),
		row(userID, "id:TB1:JHN:3:17:17", 17, "green"),
		row(otherID, "id:TB1:JHN:3:16:16x", 16, "blue"),
	}, []string{"id"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := tr.Select(ctx, "highlights", cols, cloud.Eq("user_id", userID))
	if err != nil || len(got) != 2 {
		t.Fatalf("Select by user: n=%d err=%v", len(got), err)
	}

	// Upsert replaces on conflict
	if err := tr.Upsert(ctx, "highlights", []cloud.Row{row(userID, "id:TB1:JHN:3:16:16", 16, "pink")}, []string{"id"}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	got, err = tr.Select(ctx, "highlights", cols, cloud.Eq("user_id", userID, "id", "id:TB1:JHN:3:16:16"))
	if err != nil || len(got) != 1 || got[0]["color"] != "pink" {
		t.Fatalf("Select after replace: rows=%v err=%v", got, err)
	}
	if fmt.Sprint(got[0]["verse_start"]) != "16" {
		t.Fatalf("verse_start round trip: got %v", got[0]["verse_start"])
	}

	// A batch may not hit the same conflict key twice
	err = tr.Upsert(ctx, "highlights", []cloud.Row{
		row(userID, "id:TB1:JHN:3:18:18", 18, "red"),
		row(userID, "id:TB1:JHN:3:18:18", 18, "blue"),
	}, []string{"id"})
	if err == nil || cloud.IsSchemaMismatch(err) {
		t.Fatalf("Upsert duplicate keys: want a non-schema error, got %v", err)
	}
	got, err = tr.Select(ctx, "highlights", cols, cloud.Eq("user_id", userID, "id", "id:TB1:JHN:3:18:18"))
	if err != nil || len(got) != 0 {
		t.Fatalf("Select after rejected batch: rows=%v err=%v", got, err)
	}

	// Delete with membership filter
	err = tr.Delete(ctx, "highlights", cloud.Eq("user_id", userID).WithIn("id", []any{"id:TB1:JHN:3:17:17", "missing"}))
	if err != nil {
		t.Fatalf("Delete in: %v", err)
	}
	got, err = tr.Select(ctx, "highlights", cols, cloud.Eq("user_id", userID))
	if err != nil || len(got) != 1 {
		t.Fatalf("Select after delete: n=%d err=%v", len(got), err)
	}

	// Other users untouched
	got, err = tr.Select(ctx, "highlights", cols, cloud.Eq("user_id", otherID))
	if err != nil || len(got) != 1 {
		t.Fatalf("Select other user: n=%d err=%v", len(got), err)
	}

	// Plan progress arrays
	last := created.Add(24 * time.Hour)
	err = tr.Upsert(ctx, "plan_progress", []cloud.Row{{
		"user_id": userID, "plan_id": "nt-90", "completed_dates": []string{"2024-03-01", "2024-03-02"},
		"last_completed_at": last,
	}}, []string{"user_id", "plan_id"})
	if err != nil {
		t.Fatalf("Upsert plan: %v", err)
	}
	plans, err := tr.Select(ctx, "plan_progress", []string{"plan_id", "completed_dates"}, cloud.Eq("user_id", userID))
	if err != nil || len(plans) != 1 {
		t.Fatalf("Select plans: n=%d err=%v", len(plans), err)
	}

	// Unknown column is a schema mismatch
	_, err = tr.Select(ctx, "highlights", []string{"chapter_number"}, cloud.Eq("user_id", userID))
	if !cloud.IsSchemaMismatch(err) {
		t.Fatalf("Select unknown column: want schema mismatch, got %v", err)
	}

	// Unknown table is a schema mismatch
	_, err = tr.Select(ctx, "no_such_table", []string{"id"}, cloud.Filter{})
	if !cloud.IsSchemaMismatch(err) {
		t.Fatalf("Select unknown table: want schema mismatch, got %v", err)
	}

	// Conflict target without a matching constraint is a schema mismatch
	err = tr.Upsert(ctx, "highlights", []cloud.Row{row(userID, "x", 1, "red")}, []string{"user_id", "book_id"})
	if !cloud.IsSchemaMismatch(err) {
		t.Fatalf("Upsert bad conflict: want schema mismatch, got %v", err)
	}
}
