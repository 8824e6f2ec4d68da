package gloss

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Keys of the local key/value store.
const (
	KeyStoreV2 = "personal-store:v2"
	KeyStoreV1 = "personal-store:v1"
	KeyOwner   = "personal-store:owner"
)

// LocalStore is the device-local, owner-scoped snapshot of every annotation
// collection. It is authoritative for the running device.
type LocalStore interface {
	Load() (PersonalStore, error)
	Save(PersonalStore) error
	// Mutate runs a read-modify-write as one step and returns the saved snapshot.
	Mutate(func(*PersonalStore) error) (PersonalStore, error)
	Owner() (string, error)
	SetOwner(accountID string) error
	Clear() error
}

// LocalCache implements LocalStore as a versioned JSON blob over a KeyValueStore.
type LocalCache struct {
	kv  KeyValueStore
	mu  sync.Mutex
	log zerolog.Logger
}

// NewLocalCache creates a local cache over kv.
func NewLocalCache(kv KeyValueStore, log zerolog.Logger) *LocalCache {
	return &LocalCache{kv: kv, log: log}
}

// Load returns the current snapshot. A legacy v1 blob is migrated to v2 the
// first time it is read. Invalid entries are dropped, never fatal.
func (c *LocalCache) Load() (PersonalStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Save overwrites the snapshot.
func (c *LocalCache) Save(s PersonalStore) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(s)
}

// Mutate implements LocalStore.
func (c *LocalCache) Mutate(fn func(*PersonalStore) error) (PersonalStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.load()
	if err != nil {
		return PersonalStore{}, err
	}
	if err := fn(&s); err != nil {
		return PersonalStore{}, err
	}
	if err := c.save(s); err != nil {
		return PersonalStore{}, err
	}
	return s.Clone(), nil
}

// Owner returns the account id the snapshot belongs to, or "" if unbound.
func (c *LocalCache) Owner() (string, error) {
	raw, err := c.kv.Get(KeyOwner)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetOwner binds the snapshot to an account. An empty id unbinds it.
func (c *LocalCache) SetOwner(accountID string) error {
	if accountID == "" {
		return c.kv.Delete(KeyOwner)
	}
	return c.kv.Set(KeyOwner, []byte(accountID))
}

// Clear drops the snapshot, including any unmigrated legacy blob.
func (c *LocalCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Delete(KeyStoreV2); err != nil {
		return err
	}
	return c.kv.Delete(KeyStoreV1)
}

func (c *LocalCache) load() (PersonalStore, error) {
	raw, err := c.kv.Get(KeyStoreV2)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return PersonalStore{}, fmt.Errorf("local cache: read %s: %w", KeyStoreV2, err)
	}
	if len(raw) > 0 {
		return c.decode(raw, KeyStoreV2), nil
	}

	raw, err = c.kv.Get(KeyStoreV1)
	if errors.Is(err, ErrNotFound) || (err == nil && len(raw) == 0) {
		return NewPersonalStore(), nil
	}
	if err != nil {
		return PersonalStore{}, fmt.Errorf("local cache: read %s: %w", KeyStoreV1, err)
	}

	s := c.decode(raw, KeyStoreV1)
	if !s.IsEmpty() {
		if err := c.save(s); err != nil {
			return PersonalStore{}, fmt.Errorf("local cache: migrate legacy store: %w", err)
		}
		c.log.Info().Int("entries", s.Counts().Total()).Msg("migrated legacy personal store")
	}
	return s, nil
}

func (c *LocalCache) save(s PersonalStore) error {
	data, err := json.Marshal(withCollections(s))
	if err != nil {
		return fmt.Errorf("local cache: encode: %w", err)
	}
	if err := c.kv.Set(KeyStoreV2, data); err != nil {
		return fmt.Errorf("local cache: write: %w", err)
	}
	return nil
}

// storedBlob defers entry decoding so one malformed entry cannot spoil the rest.
type storedBlob struct {
	Bookmarks    []json.RawMessage          `json:"bookmarks"`
	Highlights   []json.RawMessage          `json:"highlights"`
	Notes        []json.RawMessage          `json:"notes"`
	PlanProgress map[string]json.RawMessage `json:"plan_progress"`
}

// storedEntry is the union of every entry layout ever persisted. Old blobs
// carry a single verse and no scope.
type storedEntry struct {
	ID             string `json:"id"`
	LanguageCode   string `json:"language_code"`
	VersionCode    string `json:"version_code"`
	BookID         string `json:"book_id"`
	Chapter        int    `json:"chapter"`
	Verse          int    `json:"verse"`
	VerseStart     int    `json:"verse_start"`
	VerseEnd       int    `json:"verse_end"`
	Color          string `json:"color"`
	Note           string `json:"note"`
	ReferenceLabel string `json:"reference_label"`
	Excerpt        string `json:"excerpt"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func (e storedEntry) scopeAndRange() (Scope, VerseRange, error) {
	r := VerseRange{
		BookID:     strings.TrimSpace(e.BookID),
		Chapter:    e.Chapter,
		VerseStart: e.VerseStart,
		VerseEnd:   e.VerseEnd,
	}
	if r.VerseStart == 0 && e.Verse > 0 {
		r.VerseStart = e.Verse
	}
	if r.VerseEnd == 0 {
		r.VerseEnd = r.VerseStart
	}
	if err := r.Validate(); err != nil {
		return Scope{}, VerseRange{}, err
	}
	return ResolveScope(e.LanguageCode, e.VersionCode), r, nil
}

func (e storedEntry) id(scope Scope, r VerseRange) string {
	if e.ID != "" {
		return e.ID
	}
	return RangeID(scope, r)
}

func (c *LocalCache) decode(raw []byte, key string) PersonalStore {
	var blob storedBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("unreadable personal store, starting empty")
		return NewPersonalStore()
	}
	return decodeBlob(blob, c.log)
}

// decodeBlob keeps every valid entry of blob and drops the rest.
func decodeBlob(blob storedBlob, log zerolog.Logger) PersonalStore {
	out := NewPersonalStore()

	for _, msg := range blob.Bookmarks {
		e, scope, r, ok := decodeEntry(log, msg, "bookmark")
		if !ok {
			continue
		}
		out.Bookmarks = append(out.Bookmarks, BookmarkEntry{
			ID:             e.id(scope, r),
			Scope:          scope,
			VerseRange:     r,
			ReferenceLabel: e.ReferenceLabel,
			Excerpt:        e.Excerpt,
			CreatedAt:      parseStoredTime(e.CreatedAt),
		})
	}

	for _, msg := range blob.Highlights {
		e, scope, r, ok := decodeEntry(log, msg, "highlight")
		if !ok {
			continue
		}
		color := strings.TrimSpace(e.Color)
		if color == "" {
			color = DefaultHighlightColor
		}
		out.Highlights = append(out.Highlights, HighlightEntry{
			ID:             e.id(scope, r),
			Scope:          scope,
			VerseRange:     r,
			Color:          color,
			ReferenceLabel: e.ReferenceLabel,
			Excerpt:        e.Excerpt,
			CreatedAt:      parseStoredTime(e.CreatedAt),
		})
	}

	for _, msg := range blob.Notes {
		e, scope, r, ok := decodeEntry(log, msg, "note")
		if !ok {
			continue
		}
		text := strings.TrimSpace(e.Note)
		if text == "" {
			log.Debug().Str("family", "note").Str("id", e.ID).Msg("dropping note with empty body")
			continue
		}
		out.Notes = append(out.Notes, NoteEntry{
			ID:             e.id(scope, r),
			Scope:          scope,
			VerseRange:     r,
			Note:           text,
			ReferenceLabel: e.ReferenceLabel,
			Excerpt:        e.Excerpt,
			CreatedAt:      parseStoredTime(e.CreatedAt),
			UpdatedAt:      parseStoredTime(e.UpdatedAt),
		})
	}

	for planID, msg := range blob.PlanProgress {
		p, ok := decodePlan(planID, msg)
		if !ok {
			log.Debug().Str("plan_id", planID).Msg("dropping unreadable plan progress")
			continue
		}
		out.PlanProgress[p.PlanID] = p
	}

	out.Bookmarks = dedupeNewest(out.Bookmarks, BookmarkEntry.key)
	out.Highlights = dedupeNewest(out.Highlights, HighlightEntry.key)
	out.Notes = dedupeNewest(out.Notes, NoteEntry.key)
	return out
}

func decodeEntry(log zerolog.Logger, msg json.RawMessage, family string) (storedEntry, Scope, VerseRange, bool) {
	var e storedEntry
	if err := json.Unmarshal(msg, &e); err != nil {
		log.Debug().Err(err).Str("family", family).Msg("dropping undecodable entry")
		return storedEntry{}, Scope{}, VerseRange{}, false
	}
	scope, r, err := e.scopeAndRange()
	if err != nil {
		log.Debug().Err(err).Str("family", family).Str("id", e.ID).Msg("dropping invalid entry")
		return storedEntry{}, Scope{}, VerseRange{}, false
	}
	return e, scope, r, true
}

// decodePlan accepts the current object layout and the legacy bare list of dates.
func decodePlan(planID string, msg json.RawMessage) (PlanProgress, bool) {
	var dates []string
	if err := json.Unmarshal(msg, &dates); err == nil {
		return PlanProgress{PlanID: planID, CompletedDates: NormalizeDates(dates)}, planID != ""
	}

	var stored struct {
		PlanID          string   `json:"plan_id"`
		CompletedDates  []string `json:"completed_dates"`
		LastCompletedAt string   `json:"last_completed_at"`
	}
	if err := json.Unmarshal(msg, &stored); err != nil {
		return PlanProgress{}, false
	}

	p := PlanProgress{PlanID: stored.PlanID, CompletedDates: NormalizeDates(stored.CompletedDates)}
	if p.PlanID == "" {
		p.PlanID = planID
	}
	if t := parseStoredTime(stored.LastCompletedAt); !t.IsZero() {
		p.LastCompletedAt = &t
	}
	return p, p.PlanID != ""
}

// NormalizeDates de-duplicates and sorts date keys, dropping malformed ones.
func NormalizeDates(dates []string) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if _, err := time.Parse(DateKeyLayout, d); err != nil {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func parseStoredTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// dedupeNewest keeps, per identity, the entry with the latest timestamp; the first
// occurrence wins ties. Order of first appearance is kept.
func dedupeNewest[T any](entries []T, key func(T) (string, time.Time)) []T {
	index := make(map[string]int, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		id, ts := key(e)
		if i, ok := index[id]; ok {
			if _, cur := key(out[i]); ts.After(cur) {
				out[i] = e
			}
			continue
		}
		index[id] = len(out)
		out = append(out, e)
	}
	return out
}

func withCollections(s PersonalStore) PersonalStore {
	if s.Bookmarks == nil {
		s.Bookmarks = []BookmarkEntry{}
	}
	if s.Highlights == nil {
		s.Highlights = []HighlightEntry{}
	}
	if s.Notes == nil {
		s.Notes = []NoteEntry{}
	}
	if s.PlanProgress == nil {
		s.PlanProgress = map[string]PlanProgress{}
	}
	return s
}
