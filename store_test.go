package gloss

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestNewStore_CreatesAllTables verifies that migrations create every table.
func TestNewStore_CreatesAllTables(t *testing.T) {
	store := newTestStore(t)

	for _, table := range []string{"kv", "metadata", "sync_runs"} {
		var name string
		err := store.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestNewStore_EnablesWAL(t *testing.T) {
	store := newTestStore(t)

	var mode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	store.Close()

	store, err = NewStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	got, err := store.Get("k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get after reopen = %q, %v; want %q", got, err, "v")
	}
	if v, err := store.SchemaVersion(); err != nil || v != schemaVersion {
		t.Errorf("SchemaVersion = %q, %v; want %q", v, err, schemaVersion)
	}
}

func TestStore_KeyValue(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.Set("a", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set("a", []byte(`{"x":2}`)); err != nil {
		t.Fatalf("Set (overwrite) failed: %v", err)
	}
	got, err := store.Get("a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"x":2}` {
		t.Errorf("Get = %s, want overwritten value", got)
	}

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("a"); err != nil {
		t.Errorf("Delete of missing key returned %v", err)
	}
	if _, err := store.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_Closed(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}

	if _, err := store.Get("a"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get error = %v, want ErrStoreClosed", err)
	}
	if err := store.Set("a", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Set error = %v, want ErrStoreClosed", err)
	}
	if err := store.RecordSyncRun(&SyncRun{}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("RecordSyncRun error = %v, want ErrStoreClosed", err)
	}
}

func TestStore_SyncJournal(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.LastSyncRun(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LastSyncRun on empty journal = %v, want ErrNotFound", err)
	}

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	first := &SyncRun{AccountID: "acct", Status: CloudOK, Local: 2, Remote: 3, Merged: 4, Written: 4, StartedAt: base, FinishedAt: base.Add(time.Second)}
	second := &SyncRun{AccountID: "acct", Status: CloudUnsupported, Error: "cloud schema unsupported", ReconcileSkipped: true, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour)}

	for _, run := range []*SyncRun{first, second} {
		if err := store.RecordSyncRun(run); err != nil {
			t.Fatalf("RecordSyncRun failed: %v", err)
		}
		if run.ID == "" {
			t.Fatal("RecordSyncRun did not assign an ID")
		}
	}
	if first.ID == second.ID {
		t.Errorf("run IDs collide: %s", first.ID)
	}

	last, err := store.LastSyncRun()
	if err != nil {
		t.Fatalf("LastSyncRun failed: %v", err)
	}
	if last.ID != second.ID || last.Status != CloudUnsupported || !last.ReconcileSkipped || last.Error == "" {
		t.Errorf("LastSyncRun = %+v, want second run", last)
	}

	runs, err := store.SyncRuns(10)
	if err != nil {
		t.Fatalf("SyncRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("SyncRuns returned %d runs, want 2", len(runs))
	}
	if runs[1].ID != first.ID || runs[1].Merged != 4 || !runs[1].StartedAt.Equal(base) {
		t.Errorf("oldest run = %+v, want first run", runs[1])
	}
	if runs[1].Error != "" {
		t.Errorf("first run Error = %q, want empty", runs[1].Error)
	}
}
