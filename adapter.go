package gloss

import "context"

// CloudAdapter reads and writes one account's annotations in the shared cloud
// store. Implementations hide which schema shape the store uses.
type CloudAdapter interface {
	// Fetch returns the account's cloud snapshot. It fails with
	// ErrCloudUnsupported when no known schema shape is usable.
	Fetch(ctx context.Context, userID string) (PersonalStore, error)

	UpsertBookmark(ctx context.Context, userID string, e BookmarkEntry) error
	RemoveBookmark(ctx context.Context, userID, id string) error
	UpsertHighlight(ctx context.Context, userID string, e HighlightEntry) error
	RemoveHighlight(ctx context.Context, userID, id string) error
	UpsertNote(ctx context.Context, userID string, e NoteEntry) error
	RemoveNote(ctx context.Context, userID, id string) error
	UpsertPlanProgress(ctx context.Context, userID string, p PlanProgress) error

	// SyncStore writes every entry of store and then deletes cloud entries
	// absent from it. Deletion is skipped entirely when any shape was missing.
	SyncStore(ctx context.Context, userID string, store PersonalStore) (SyncReport, error)
}
