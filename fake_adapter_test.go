package gloss_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperengineering/gloss"
)

// fakeCloud is a CloudAdapter that records every call.
type fakeCloud struct {
	mu    sync.Mutex
	calls []string

	remote    gloss.PersonalStore
	fetchErr  error
	report    gloss.SyncReport
	syncErr   error
	writeErr  error
	synced    *gloss.PersonalStore
	syncedFor string
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{remote: gloss.NewPersonalStore()}
}

func (f *fakeCloud) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.writeErr
}

func (f *fakeCloud) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeCloud) Fetch(ctx context.Context, userID string) (gloss.PersonalStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "fetch "+userID)
	if f.fetchErr != nil {
		return gloss.PersonalStore{}, f.fetchErr
	}
	return f.remote.Clone(), nil
}

func (f *fakeCloud) UpsertBookmark(ctx context.Context, userID string, e gloss.BookmarkEntry) error {
	return f.record("upsert bookmark %s %s", userID, e.ID)
}

func (f *fakeCloud) RemoveBookmark(ctx context.Context, userID, id string) error {
	return f.record("remove bookmark %s %s", userID, id)
}

func (f *fakeCloud) UpsertHighlight(ctx context.Context, userID string, e gloss.HighlightEntry) error {
	return f.record("upsert highlight %s %s %s", userID, e.ID, e.Color)
}

func (f *fakeCloud) RemoveHighlight(ctx context.Context, userID, id string) error {
	return f.record("remove highlight %s %s", userID, id)
}

func (f *fakeCloud) UpsertNote(ctx context.Context, userID string, e gloss.NoteEntry) error {
	return f.record("upsert note %s %s", userID, e.ID)
}

func (f *fakeCloud) RemoveNote(ctx context.Context, userID, id string) error {
	return f.record("remove note %s %s", userID, id)
}

func (f *fakeCloud) UpsertPlanProgress(ctx context.Context, userID string, p gloss.PlanProgress) error {
	return f.record("upsert plan %s %s %v", userID, p.PlanID, p.CompletedDates)
}

func (f *fakeCloud) SyncStore(ctx context.Context, userID string, store gloss.PersonalStore) (gloss.SyncReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "sync "+userID)
	s := store.Clone()
	f.synced = &s
	f.syncedFor = userID
	return f.report, f.syncErr
}
