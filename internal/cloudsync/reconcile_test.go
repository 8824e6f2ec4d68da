package cloudsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/internal/cloud"
	"github.com/hyperengineering/gloss/internal/cloud/cloudtest"
)

func ids(rows []cloud.Row, column string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, asString(r[column]))
	}
	return out
}

func localStore() gloss.PersonalStore {
	s := gloss.NewPersonalStore()
	h := highlight("JHN", 3, 16, 16, "yellow", t0)
	s.Highlights = append(s.Highlights, h)
	s.Bookmarks = append(s.Bookmarks, gloss.BookmarkEntry{
		ID: "id:TB1:PSA:23:1:1", Scope: tb1(),
		VerseRange: gloss.VerseRange{BookID: "PSA", Chapter: 23, VerseStart: 1, VerseEnd: 1},
		CreatedAt:  t0,
	})
	s.PlanProgress["nt-90"] = gloss.PlanProgress{PlanID: "nt-90", CompletedDates: []string{"2024-05-01"}}
	return s
}

func TestSyncStore_DeletesStaleEntries(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	a := New(mem)
	ctx := context.Background()

	stale := highlight("GEN", 1, 1, 1, "red", t0)
	require.NoError(t, a.UpsertHighlight(ctx, user, stale))
	require.NoError(t, a.UpsertHighlight(ctx, "other-user", stale))
	require.NoError(t, a.UpsertPlanProgress(ctx, user, gloss.PlanProgress{PlanID: "old-plan"}))

	report, err := a.SyncStore(ctx, user, localStore())
	require.NoError(t, err)

	assert.False(t, report.ReconcileSkipped)
	assert.Equal(t, gloss.FamilyCounts{Bookmarks: 1, Highlights: 1, Plans: 1}, report.Written)
	assert.Equal(t, gloss.FamilyCounts{Highlights: 1, Plans: 1}, report.Deleted)

	got, err := a.Fetch(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, localStore().Counts(), got.Counts())
	require.Len(t, got.Highlights, 1)
	assert.Equal(t, "id:TB1:JHN:3:16:16", got.Highlights[0].ID)
	_, ok := got.PlanProgress["old-plan"]
	assert.False(t, ok)

	// The other account keeps its row.
	other, err := a.Fetch(ctx, "other-user")
	require.NoError(t, err)
	assert.Len(t, other.Highlights, 1)
}

func TestSyncStore_EmptyLocalClearsCloud(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	a := New(mem)
	ctx := context.Background()
	require.NoError(t, a.UpsertHighlight(ctx, user, highlight("GEN", 1, 1, 1, "red", t0)))

	report, err := a.SyncStore(ctx, user, gloss.NewPersonalStore())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted.Highlights)
	assert.Empty(t, mem.Rows("highlights"))
}

func TestSyncStore_RewritesLegacyIDs(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	a := New(mem)
	ctx := context.Background()

	s := gloss.NewPersonalStore()
	h := highlight("JHN", 3, 16, 16, "yellow", t0)
	h.ID = "legacy-1"
	s.Highlights = append(s.Highlights, h)

	_, err := a.SyncStore(ctx, user, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"id:TB1:JHN:3:16:16"}, ids(mem.Rows("highlights"), "id"))
}

func TestSyncStore_MobileFallbackSkipsReconciliation(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	mem.Declare(cloudtest.MobileShape()[1]) // highlights only
	mem.Insert("bookmarks", cloud.Row{
		"id": "id:TB1:GEN:1:1:1", "user_id": user, "book_id": "GEN", "chapter": 1,
		"verse_start": 1, "verse_end": 1, "language_code": "id", "version_code": "TB1", "created_at": t0,
	})
	a := New(mem)

	report, err := a.SyncStore(context.Background(), user, localStore())
	require.NoError(t, err)

	assert.True(t, report.ReconcileSkipped)
	assert.NotEmpty(t, report.SkipReason)
	assert.Equal(t, []string{"highlights"}, report.MobileFallback)
	assert.Equal(t, 1, report.Written.Highlights)
	assert.Equal(t, gloss.FamilyCounts{}, report.Deleted)

	// The stale bookmark survives because nothing was deleted.
	assert.Contains(t, ids(mem.Rows("bookmarks"), "id"), "id:TB1:GEN:1:1:1")
	for _, c := range mem.Calls() {
		assert.NotEqual(t, "delete", c.Op, "unexpected %s", c)
	}
}

func TestSyncStore_SchemaMismatchDuringCollectionDeletesNothing(t *testing.T) {
	// The plan table is the last one collected; a mismatch there must not
	// leave earlier tables reconciled.
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()[:3]...)
	mem.Declare(cloudtest.Table{Name: "plan_progress", Columns: []string{"user_id", "completed_dates", "last_completed_at"}, Conflict: []string{"user_id"}})
	a := New(mem)
	ctx := context.Background()
	require.NoError(t, a.UpsertHighlight(ctx, user, highlight("GEN", 1, 1, 1, "red", t0)))

	s := localStore()
	s.PlanProgress = map[string]gloss.PlanProgress{}

	report, err := a.SyncStore(ctx, user, s)
	require.NoError(t, err)
	assert.True(t, report.ReconcileSkipped)
	assert.Len(t, mem.Rows("highlights"), 2)
}

func TestSyncStore_TransientWriteAborts(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	mem.FailNext("upsert", "highlights", cloud.Errorf(cloud.Transient, "highlights", "", "503"))
	a := New(mem)

	_, err := a.SyncStore(context.Background(), user, localStore())
	require.Error(t, err)

	var se *gloss.SyncError
	require.ErrorAs(t, err, &se)
	for _, c := range mem.Calls() {
		assert.NotEqual(t, "delete", c.Op)
	}
}

func TestSyncStore_Idempotent(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	a := New(mem)
	ctx := context.Background()

	_, err := a.SyncStore(ctx, user, localStore())
	require.NoError(t, err)
	report, err := a.SyncStore(ctx, user, localStore())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Deleted.Total())
	assert.Len(t, mem.Rows("highlights"), 1)
	assert.Len(t, mem.Rows("bookmarks"), 1)
	assert.Len(t, mem.Rows("plan_progress"), 1)
}

func TestSyncStore_ThenFetchMatchesLocal(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	a := New(mem)
	ctx := context.Background()

	last := t0.Add(time.Hour)
	s := localStore()
	s.Notes = append(s.Notes, gloss.NoteEntry{
		ID: "id:TB1:ROM:8:28:28", Scope: tb1(),
		VerseRange: gloss.VerseRange{BookID: "ROM", Chapter: 8, VerseStart: 28, VerseEnd: 28},
		Note:       "all things", CreatedAt: t0, UpdatedAt: last,
	})

	_, err := a.SyncStore(ctx, user, s)
	require.NoError(t, err)

	got, err := a.Fetch(ctx, user)
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "all things", got.Notes[0].Note)
	assert.True(t, last.Equal(got.Notes[0].UpdatedAt))
}

func TestSyncStore_LegacyAndCanonicalIDsWriteOneRow(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.ScopedShape()...)
	a := New(mem)

	s := gloss.NewPersonalStore()
	legacy := highlight("JHN", 3, 16, 16, "yellow", t0)
	legacy.ID = "legacy-1"
	s.Highlights = append(s.Highlights, highlight("JHN", 3, 16, 16, "blue", t0.Add(time.Hour)), legacy)

	report, err := a.SyncStore(context.Background(), user, s)
	require.NoError(t, err)
	assert.False(t, report.ReconcileSkipped)
	assert.Equal(t, 1, report.Written.Highlights)

	rows := mem.Rows("highlights")
	require.Len(t, rows, 1)
	assert.Equal(t, "id:TB1:JHN:3:16:16", rows[0]["id"])
	assert.Equal(t, "blue", rows[0]["color"], "the newer entry wins")
}

func TestSyncStore_MobileOverlapKeepsNewestPerVerse(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.MobileShape()...)
	a := New(mem)
	ctx := context.Background()

	s := gloss.NewPersonalStore()
	s.Highlights = append(s.Highlights,
		highlight("JHN", 3, 2, 2, "blue", t0.Add(time.Hour)),
		highlight("JHN", 3, 1, 3, "yellow", t0),
	)

	report, err := a.SyncStore(ctx, user, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"highlights"}, report.MobileFallback)

	colors := map[int]string{}
	for _, r := range mem.Rows("highlights") {
		colors[asInt(r["verse_number"])] = asString(r["color"])
	}
	assert.Equal(t, map[int]string{1: "yellow", 2: "blue", 3: "yellow"}, colors)

	got, err := a.Fetch(ctx, user)
	require.NoError(t, err)
	assert.Len(t, got.Highlights, 3, "overlaps come back as separate runs")
}

func TestSyncStore_NoUsableShapeIsNotReportedAsFallback(t *testing.T) {
	mem := cloudtest.NewMemory(cloudtest.LegacyShape()...)
	a := New(mem)

	report, err := a.SyncStore(context.Background(), user, localStore())
	require.NoError(t, err)

	assert.True(t, report.ReconcileSkipped)
	assert.Empty(t, report.MobileFallback)
	assert.Equal(t, 0, report.Written.Highlights)
	assert.Empty(t, mem.Rows("highlights"))
	assert.NotContains(t, report.SkipReason, "per-verse")
}
