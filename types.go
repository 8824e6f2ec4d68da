package gloss

import (
	"fmt"
	"time"
)

// Language is a canonical text language code.
type Language string

const (
	LanguageIndonesian Language = "id"
	LanguageEnglish    Language = "en"
)

// Canonical version codes.
const (
	VersionTB1 = "TB1"
	VersionTB2 = "TB2"
	VersionEN1 = "EN1"
)

// Scope identifies the text edition an annotation belongs to.
// Only values produced by a ScopeResolver are stored.
type Scope struct {
	Language Language `json:"language_code"`
	Version  string   `json:"version_code"`
}

func (s Scope) String() string {
	return string(s.Language) + "/" + s.Version
}

// VerseRange addresses one verse or a contiguous span within one chapter of one book.
type VerseRange struct {
	BookID     string `json:"book_id"`
	Chapter    int    `json:"chapter"`
	VerseStart int    `json:"verse_start"`
	VerseEnd   int    `json:"verse_end"`
}

// Validate checks the range shape. Returns *ValidationError.
func (r VerseRange) Validate() error {
	if err := ValidateBookID(r.BookID); err != nil {
		return err
	}
	if r.Chapter <= 0 {
		return &ValidationError{Field: "chapter", Message: "must be positive"}
	}
	if r.VerseStart <= 0 {
		return &ValidationError{Field: "verse_start", Message: "must be positive"}
	}
	if r.VerseEnd < r.VerseStart {
		return &ValidationError{Field: "verse_end", Message: "must not precede verse_start"}
	}
	return nil
}

// Verses lists every verse number the range covers.
func (r VerseRange) Verses() []int {
	if r.VerseEnd < r.VerseStart {
		return nil
	}
	out := make([]int, 0, r.VerseEnd-r.VerseStart+1)
	for v := r.VerseStart; v <= r.VerseEnd; v++ {
		out = append(out, v)
	}
	return out
}

// Overlaps reports whether two ranges share a verse.
func (r VerseRange) Overlaps(o VerseRange) bool {
	return r.BookID == o.BookID && r.Chapter == o.Chapter &&
		r.VerseStart <= o.VerseEnd && o.VerseStart <= r.VerseEnd
}

func (r VerseRange) String() string {
	if r.VerseStart == r.VerseEnd {
		return fmt.Sprintf("%s %d:%d", r.BookID, r.Chapter, r.VerseStart)
	}
	return fmt.Sprintf("%s %d:%d-%d", r.BookID, r.Chapter, r.VerseStart, r.VerseEnd)
}

// BookmarkEntry is a saved pointer to a range.
type BookmarkEntry struct {
	ID string `json:"id"`
	Scope
	VerseRange
	ReferenceLabel string    `json:"reference_label,omitempty"`
	Excerpt        string    `json:"excerpt,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Timestamp is the merge precedence time.
func (e BookmarkEntry) Timestamp() time.Time { return e.CreatedAt }

// HighlightEntry is a colored span.
type HighlightEntry struct {
	ID string `json:"id"`
	Scope
	VerseRange
	Color          string    `json:"color"`
	ReferenceLabel string    `json:"reference_label,omitempty"`
	Excerpt        string    `json:"excerpt,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Timestamp is the merge precedence time.
func (e HighlightEntry) Timestamp() time.Time { return e.CreatedAt }

// NoteEntry is a free-text reflection on a range.
type NoteEntry struct {
	ID string `json:"id"`
	Scope
	VerseRange
	Note           string    `json:"note"`
	ReferenceLabel string    `json:"reference_label,omitempty"`
	Excerpt        string    `json:"excerpt,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Timestamp is the merge precedence time: updated_at, falling back to created_at.
func (e NoteEntry) Timestamp() time.Time {
	if !e.UpdatedAt.IsZero() {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

// DateKeyLayout is the layout of plan completion date keys.
const DateKeyLayout = "2006-01-02"

// PlanProgress is the completion record of one reading plan.
type PlanProgress struct {
	PlanID          string     `json:"plan_id"`
	CompletedDates  []string   `json:"completed_dates"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// PersonalStore is the aggregate of every annotation collection of one account.
type PersonalStore struct {
	Bookmarks    []BookmarkEntry         `json:"bookmarks"`
	Highlights   []HighlightEntry        `json:"highlights"`
	Notes        []NoteEntry             `json:"notes"`
	PlanProgress map[string]PlanProgress `json:"plan_progress"`
}

// NewPersonalStore returns an empty store with non-nil collections.
func NewPersonalStore() PersonalStore {
	return PersonalStore{
		Bookmarks:    []BookmarkEntry{},
		Highlights:   []HighlightEntry{},
		Notes:        []NoteEntry{},
		PlanProgress: map[string]PlanProgress{},
	}
}

// IsEmpty reports whether the store holds no annotations at all.
func (s PersonalStore) IsEmpty() bool {
	return len(s.Bookmarks) == 0 && len(s.Highlights) == 0 &&
		len(s.Notes) == 0 && len(s.PlanProgress) == 0
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s PersonalStore) Clone() PersonalStore {
	out := PersonalStore{
		Bookmarks:    append([]BookmarkEntry{}, s.Bookmarks...),
		Highlights:   append([]HighlightEntry{}, s.Highlights...),
		Notes:        append([]NoteEntry{}, s.Notes...),
		PlanProgress: make(map[string]PlanProgress, len(s.PlanProgress)),
	}
	for id, p := range s.PlanProgress {
		p.CompletedDates = append([]string{}, p.CompletedDates...)
		if p.LastCompletedAt != nil {
			t := *p.LastCompletedAt
			p.LastCompletedAt = &t
		}
		out.PlanProgress[id] = p
	}
	return out
}

// Counts summarizes the store per collection.
func (s PersonalStore) Counts() FamilyCounts {
	return FamilyCounts{
		Bookmarks:  len(s.Bookmarks),
		Highlights: len(s.Highlights),
		Notes:      len(s.Notes),
		Plans:      len(s.PlanProgress),
	}
}

// FamilyCounts holds one number per annotation family.
type FamilyCounts struct {
	Bookmarks  int `json:"bookmarks"`
	Highlights int `json:"highlights"`
	Notes      int `json:"notes"`
	Plans      int `json:"plans"`
}

// Total sums every family.
func (c FamilyCounts) Total() int {
	return c.Bookmarks + c.Highlights + c.Notes + c.Plans
}

// Selection is the reader's current selection: a raw (language, version)
// pair as known to the reader UI plus the selected range.
type Selection struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	VerseRange
}

// BookmarkParams contains parameters for saving a bookmark.
type BookmarkParams struct {
	Selection
	ReferenceLabel string `json:"reference_label,omitempty"`
	Excerpt        string `json:"excerpt,omitempty"`
}

// HighlightParams contains parameters for highlighting a range.
type HighlightParams struct {
	Selection
	Color          string `json:"color,omitempty"`
	ReferenceLabel string `json:"reference_label,omitempty"`
	Excerpt        string `json:"excerpt,omitempty"`
}

// DefaultHighlightColor is used when a highlight is saved without a color.
const DefaultHighlightColor = "yellow"

// NoteParams contains parameters for saving a note.
type NoteParams struct {
	Selection
	Note           string `json:"note"`
	ReferenceLabel string `json:"reference_label,omitempty"`
	Excerpt        string `json:"excerpt,omitempty"`
}

// ChapterAnnotations groups the annotations overlapping one chapter of one edition.
type ChapterAnnotations struct {
	Scope      Scope            `json:"scope"`
	BookID     string           `json:"book_id"`
	Chapter    int              `json:"chapter"`
	Bookmarks  []BookmarkEntry  `json:"bookmarks"`
	Highlights []HighlightEntry `json:"highlights"`
	Notes      []NoteEntry      `json:"notes"`
}

// CloudStatus describes how the cloud side of a session sync went.
type CloudStatus string

const (
	CloudOK          CloudStatus = "ok"
	CloudOffline     CloudStatus = "offline"
	CloudUnsupported CloudStatus = "unsupported"
	CloudFailed      CloudStatus = "failed"
)

// SyncReport describes one write-back of a local snapshot to the cloud.
type SyncReport struct {
	Written          FamilyCounts `json:"written"`
	Deleted          FamilyCounts `json:"deleted"`
	MobileFallback   []string     `json:"mobile_fallback,omitempty"`
	ReconcileSkipped bool         `json:"reconcile_skipped"`
	SkipReason       string       `json:"skip_reason,omitempty"`
}

// SessionResult describes a session bootstrap.
type SessionResult struct {
	RunID        string        `json:"run_id"`
	AccountID    string        `json:"account_id"`
	OwnerChanged bool          `json:"owner_changed"`
	Cloud        CloudStatus   `json:"cloud"`
	Local        FamilyCounts  `json:"local"`
	Remote       FamilyCounts  `json:"remote"`
	Merged       FamilyCounts  `json:"merged"`
	Sync         *SyncReport   `json:"sync,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// StoreStats contains statistics about the local store.
type StoreStats struct {
	Owner         string       `json:"owner"`
	Counts        FamilyCounts `json:"counts"`
	LastSync      *SyncRun     `json:"last_sync,omitempty"`
	SchemaVersion string       `json:"schema_version"`
}
