package gloss

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// closeTimeout bounds how long Close waits for in-flight cloud writes.
const closeTimeout = 5 * time.Second

// Client is the main interface for reading and annotating scripture.
type Client struct {
	store  *Store
	local  LocalStore
	cloud  CloudAdapter
	merger MergeEngine
	scopes ScopeResolver
	config Config
	now    func() time.Time

	logger    *Logger
	ownLogger bool
	log       zerolog.Logger

	mu       sync.RWMutex
	account  string
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithCloud attaches the shared store. Without it the client is offline-only.
func WithCloud(a CloudAdapter) Option {
	return func(c *Client) { c.cloud = a }
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger. The caller keeps ownership.
func WithLogger(l *Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithLocalStore replaces the SQLite-backed snapshot cache.
func WithLocalStore(s LocalStore) Option {
	return func(c *Client) { c.local = s }
}

// WithMergeEngine replaces the last-write-wins merge.
func WithMergeEngine(m MergeEngine) Option {
	return func(c *Client) { c.merger = m }
}

// WithScopeResolver replaces the canonical scope table.
func WithScopeResolver(r ScopeResolver) Option {
	return func(c *Client) { c.scopes = r }
}

// New creates a new gloss client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		merger: LastWriteWins{},
		scopes: CanonicalScopes{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		l, err := NewLogger(cfg.Debug, cfg.DebugLogPath)
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
		c.logger = l
		c.ownLogger = true
	}
	c.log = c.logger.Component("client")

	store, err := NewStore(cfg.LocalPath)
	if err != nil {
		c.closeLogger()
		return nil, fmt.Errorf("client: %w", err)
	}
	c.store = store

	if c.local == nil {
		c.local = NewLocalCache(store, c.logger.Component("localcache"))
	}

	// A configured account is only trusted for background writes once the
	// snapshot is already bound to it; otherwise StartSession must run first.
	if cfg.AccountID != "" {
		owner, err := c.local.Owner()
		if err != nil {
			_ = store.Close()
			c.closeLogger()
			return nil, fmt.Errorf("client: %w", err)
		}
		if owner == cfg.AccountID {
			c.account = owner
		}
	}

	return c, nil
}

// Account returns the account the client is bound to, or "" before a session.
func (c *Client) Account() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// IsOffline reports whether the client has no shared store attached.
func (c *Client) IsOffline() bool {
	return c.cloud == nil
}

// UpsertBookmark saves a bookmark on the selected range, replacing any
// bookmark already on it. The original creation time is preserved.
func (c *Client) UpsertBookmark(ctx context.Context, p BookmarkParams) (*BookmarkEntry, error) {
	scope, r, err := c.resolve(p.Selection)
	if err != nil {
		return nil, err
	}

	entry := BookmarkEntry{
		ID:             RangeID(scope, r),
		Scope:          scope,
		VerseRange:     r,
		ReferenceLabel: strings.TrimSpace(p.ReferenceLabel),
		Excerpt:        p.Excerpt,
		CreatedAt:      c.stamp(),
	}

	_, err = c.local.Mutate(func(s *PersonalStore) error {
		s.Bookmarks = upsertEntry(s.Bookmarks, &entry, func(old BookmarkEntry) bool {
			return sameRange(old.ID, old.Scope, old.VerseRange, entry.ID, scope, r)
		}, func(old BookmarkEntry, e *BookmarkEntry) { e.CreatedAt = earliest(old.CreatedAt, e.CreatedAt) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.push("upsert bookmark", func(ctx context.Context, account string) error {
		return c.cloud.UpsertBookmark(ctx, account, entry)
	})
	return &entry, nil
}

// UpsertHighlight colors the selected range, replacing any highlight
// already on it. An empty color means DefaultHighlightColor.
func (c *Client) UpsertHighlight(ctx context.Context, p HighlightParams) (*HighlightEntry, error) {
	scope, r, err := c.resolve(p.Selection)
	if err != nil {
		return nil, err
	}

	color := strings.TrimSpace(p.Color)
	if color == "" {
		color = DefaultHighlightColor
	}

	entry := HighlightEntry{
		ID:             RangeID(scope, r),
		Scope:          scope,
		VerseRange:     r,
		Color:          color,
		ReferenceLabel: strings.TrimSpace(p.ReferenceLabel),
		Excerpt:        p.Excerpt,
		CreatedAt:      c.stamp(),
	}

	_, err = c.local.Mutate(func(s *PersonalStore) error {
		s.Highlights = upsertEntry(s.Highlights, &entry, func(old HighlightEntry) bool {
			return sameRange(old.ID, old.Scope, old.VerseRange, entry.ID, scope, r)
		}, func(old HighlightEntry, e *HighlightEntry) { e.CreatedAt = earliest(old.CreatedAt, e.CreatedAt) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.push("upsert highlight", func(ctx context.Context, account string) error {
		return c.cloud.UpsertHighlight(ctx, account, entry)
	})
	return &entry, nil
}

// UpsertNote saves note text on the selected range. The text is trimmed
// and must not be empty; use RemoveNote to delete.
func (c *Client) UpsertNote(ctx context.Context, p NoteParams) (*NoteEntry, error) {
	scope, r, err := c.resolve(p.Selection)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(p.Note)
	if text == "" {
		return nil, &UserInputError{Field: "note", Message: "must not be empty"}
	}

	now := c.stamp()
	entry := NoteEntry{
		ID:             RangeID(scope, r),
		Scope:          scope,
		VerseRange:     r,
		Note:           text,
		ReferenceLabel: strings.TrimSpace(p.ReferenceLabel),
		Excerpt:        p.Excerpt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = c.local.Mutate(func(s *PersonalStore) error {
		s.Notes = upsertEntry(s.Notes, &entry, func(old NoteEntry) bool {
			return sameRange(old.ID, old.Scope, old.VerseRange, entry.ID, scope, r)
		}, func(old NoteEntry, e *NoteEntry) { e.CreatedAt = earliest(old.CreatedAt, e.CreatedAt) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.push("upsert note", func(ctx context.Context, account string) error {
		return c.cloud.UpsertNote(ctx, account, entry)
	})
	return &entry, nil
}

// RemoveBookmark deletes the bookmark on the selected range.
// It reports whether anything was removed locally.
func (c *Client) RemoveBookmark(ctx context.Context, sel Selection) (bool, error) {
	scope, r, err := c.resolve(sel)
	if err != nil {
		return false, err
	}
	id := RangeID(scope, r)

	var removed []string
	_, err = c.local.Mutate(func(s *PersonalStore) error {
		s.Bookmarks, removed = removeEntries(s.Bookmarks, func(e BookmarkEntry) (string, bool) {
			return e.ID, sameRange(e.ID, e.Scope, e.VerseRange, id, scope, r)
		})
		return nil
	})
	if err != nil {
		return false, err
	}

	for _, rid := range withID(removed, id) {
		c.push("remove bookmark", func(ctx context.Context, account string) error {
			return c.cloud.RemoveBookmark(ctx, account, rid)
		})
	}
	return len(removed) > 0, nil
}

// RemoveHighlight clears the highlight on the selected range.
func (c *Client) RemoveHighlight(ctx context.Context, sel Selection) (bool, error) {
	scope, r, err := c.resolve(sel)
	if err != nil {
		return false, err
	}
	id := RangeID(scope, r)

	var removed []string
	_, err = c.local.Mutate(func(s *PersonalStore) error {
		s.Highlights, removed = removeEntries(s.Highlights, func(e HighlightEntry) (string, bool) {
			return e.ID, sameRange(e.ID, e.Scope, e.VerseRange, id, scope, r)
		})
		return nil
	})
	if err != nil {
		return false, err
	}

	for _, rid := range withID(removed, id) {
		c.push("remove highlight", func(ctx context.Context, account string) error {
			return c.cloud.RemoveHighlight(ctx, account, rid)
		})
	}
	return len(removed) > 0, nil
}

// RemoveNote deletes the note on the selected range.
func (c *Client) RemoveNote(ctx context.Context, sel Selection) (bool, error) {
	scope, r, err := c.resolve(sel)
	if err != nil {
		return false, err
	}
	id := RangeID(scope, r)

	var removed []string
	_, err = c.local.Mutate(func(s *PersonalStore) error {
		s.Notes, removed = removeEntries(s.Notes, func(e NoteEntry) (string, bool) {
			return e.ID, sameRange(e.ID, e.Scope, e.VerseRange, id, scope, r)
		})
		return nil
	})
	if err != nil {
		return false, err
	}

	for _, rid := range withID(removed, id) {
		c.push("remove note", func(ctx context.Context, account string) error {
			return c.cloud.RemoveNote(ctx, account, rid)
		})
	}
	return len(removed) > 0, nil
}

// MarkPlanDayCompleted adds dateKey (YYYY-MM-DD) to the plan's completed
// days. Marking a day twice is a no-op apart from the completion time.
func (c *Client) MarkPlanDayCompleted(ctx context.Context, planID, dateKey string) (*PlanProgress, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, &UserInputError{Field: "plan_id", Message: "must not be empty"}
	}
	dateKey = strings.TrimSpace(dateKey)
	if _, err := time.Parse(DateKeyLayout, dateKey); err != nil {
		return nil, &UserInputError{Field: "date", Message: fmt.Sprintf("%q is not a %s date", dateKey, DateKeyLayout)}
	}

	now := c.stamp()
	var progress PlanProgress
	_, err := c.local.Mutate(func(s *PersonalStore) error {
		p := s.PlanProgress[planID]
		p.PlanID = planID
		p.CompletedDates = NormalizeDates(append(p.CompletedDates, dateKey))
		p.LastCompletedAt = &now
		s.PlanProgress[planID] = p
		progress = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.push("upsert plan progress", func(ctx context.Context, account string) error {
		return c.cloud.UpsertPlanProgress(ctx, account, progress)
	})
	return &progress, nil
}

// Snapshot returns a copy of the current local store.
func (c *Client) Snapshot() (PersonalStore, error) {
	return c.local.Load()
}

// ChapterAnnotations lists the annotations touching one chapter of the
// edition the raw language and version resolve to, ordered by first verse.
func (c *Client) ChapterAnnotations(language, version, bookID string, chapter int) (*ChapterAnnotations, error) {
	scope := c.scopes.Resolve(language, version)
	if err := ValidateBookID(bookID); err != nil {
		return nil, inputError(err)
	}
	if chapter <= 0 {
		return nil, &UserInputError{Field: "chapter", Message: "must be positive"}
	}

	s, err := c.local.Load()
	if err != nil {
		return nil, err
	}

	in := func(sc Scope, r VerseRange) bool {
		return CanonicalizeScope(sc) == scope && r.BookID == bookID && r.Chapter == chapter
	}

	out := &ChapterAnnotations{
		Scope:      scope,
		BookID:     bookID,
		Chapter:    chapter,
		Bookmarks:  []BookmarkEntry{},
		Highlights: []HighlightEntry{},
		Notes:      []NoteEntry{},
	}
	for _, e := range s.Bookmarks {
		if in(e.Scope, e.VerseRange) {
			out.Bookmarks = append(out.Bookmarks, e)
		}
	}
	for _, e := range s.Highlights {
		if in(e.Scope, e.VerseRange) {
			out.Highlights = append(out.Highlights, e)
		}
	}
	for _, e := range s.Notes {
		if in(e.Scope, e.VerseRange) {
			out.Notes = append(out.Notes, e)
		}
	}

	sortByVerse(out.Bookmarks, func(e BookmarkEntry) VerseRange { return e.VerseRange })
	sortByVerse(out.Highlights, func(e HighlightEntry) VerseRange { return e.VerseRange })
	sortByVerse(out.Notes, func(e NoteEntry) VerseRange { return e.VerseRange })
	return out, nil
}

// Stats returns store statistics.
func (c *Client) Stats() (*StoreStats, error) {
	owner, err := c.local.Owner()
	if err != nil {
		return nil, err
	}
	s, err := c.local.Load()
	if err != nil {
		return nil, err
	}
	version, err := c.store.SchemaVersion()
	if err != nil {
		return nil, err
	}

	stats := &StoreStats{Owner: owner, Counts: s.Counts(), SchemaVersion: version}
	run, err := c.store.LastSyncRun()
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		stats.LastSync = run
	}
	return stats, nil
}

// SyncRuns returns the most recent session syncs, newest first.
func (c *Client) SyncRuns(limit int) ([]SyncRun, error) {
	return c.store.SyncRuns(limit)
}

// Close waits briefly for in-flight cloud writes, then closes the store.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		c.log.Warn().Msg("closing with cloud writes still in flight")
	}

	err := c.store.Close()
	c.closeLogger()
	return err
}

func (c *Client) closeLogger() {
	if c.ownLogger {
		_ = c.logger.Close()
	}
}

// resolve canonicalizes the selection's scope and validates its range.
func (c *Client) resolve(sel Selection) (Scope, VerseRange, error) {
	scope := c.scopes.Resolve(sel.Language, sel.Version)
	r := sel.VerseRange
	r.BookID = strings.TrimSpace(r.BookID)
	if err := r.Validate(); err != nil {
		return Scope{}, VerseRange{}, inputError(err)
	}
	return scope, r, nil
}

func (c *Client) stamp() time.Time {
	return c.now().UTC()
}

// push runs a cloud write in the background against the bound account.
// Failures are logged; the local write has already succeeded.
func (c *Client) push(op string, fn func(ctx context.Context, account string) error) {
	if c.cloud == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	if c.account == "" {
		c.log.Debug().Str("op", op).Msg("no session, cloud write skipped")
		return
	}

	account := c.account
	timeout := c.config.SyncTimeout
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := fn(ctx, account); err != nil {
			c.log.Warn().Err(err).Str("op", op).Msg("cloud write failed")
			return
		}
		c.log.Debug().Str("op", op).Msg("cloud write ok")
	}()
}

func (c *Client) bind(account string) {
	c.mu.Lock()
	c.account = account
	c.mu.Unlock()
}

// inputError converts a validation failure on caller input to *UserInputError.
func inputError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &UserInputError{Field: ve.Field, Message: ve.Message}
	}
	return err
}

// sameRange matches an existing entry by id, or by scope and exact range so
// entries saved under older id formats are replaced rather than duplicated.
func sameRange(oldID string, oldScope Scope, oldRange VerseRange, id string, scope Scope, r VerseRange) bool {
	if oldID == id {
		return true
	}
	return CanonicalizeScope(oldScope) == scope && oldRange == r
}

// upsertEntry replaces every entry matching same with e, in place of the
// first match, or appends e when nothing matches.
func upsertEntry[T any](entries []T, e *T, same func(T) bool, carry func(old T, e *T)) []T {
	out := make([]T, 0, len(entries)+1)
	at := -1
	for _, x := range entries {
		if !same(x) {
			out = append(out, x)
			continue
		}
		carry(x, e)
		if at < 0 {
			at = len(out)
			out = append(out, *e)
		}
	}
	if at < 0 {
		return append(out, *e)
	}
	out[at] = *e
	return out
}

func removeEntries[T any](entries []T, match func(T) (string, bool)) ([]T, []string) {
	out := make([]T, 0, len(entries))
	var removed []string
	for _, x := range entries {
		if id, ok := match(x); ok {
			removed = append(removed, id)
			continue
		}
		out = append(out, x)
	}
	return out, removed
}

// withID returns ids with id added if absent.
func withID(ids []string, id string) []string {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

func earliest(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}

func sortByVerse[T any](entries []T, rangeOf func(T) VerseRange) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := rangeOf(entries[i]), rangeOf(entries[j])
		if a.VerseStart != b.VerseStart {
			return a.VerseStart < b.VerseStart
		}
		return a.VerseEnd < b.VerseEnd
	})
}
