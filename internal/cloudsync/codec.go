package cloudsync

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/internal/cloud"
)

// shape names a cloud schema layout.
type shape string

const (
	shapeScoped shape = "scoped"
	shapeLegacy shape = "legacy"
	shapeMobile shape = "mobile"
)

// probeOrder is the order shapes are tried on read.
var probeOrder = []shape{shapeScoped, shapeLegacy, shapeMobile}

// family describes one annotation table.
type family struct {
	table   string
	payload []string
	// groupKey is the payload part of the mobile collapse key.
	groupKey func(record) string
}

var (
	bookmarks = family{
		table:    "bookmarks",
		groupKey: func(record) string { return "" },
	}
	highlights = family{
		table:    "highlights",
		payload:  []string{"color"},
		groupKey: func(r record) string { return r.Color },
	}
	notes = family{
		table:    "notes",
		payload:  []string{"note", "updated_at"},
		groupKey: func(r record) string { return r.Note },
	}
	families = []family{bookmarks, highlights, notes}
)

const planTable = "plan_progress"

var (
	scopedColumns = []string{
		"id", "user_id", "book_id", "chapter", "verse_start", "verse_end",
		"language_code", "version_code", "reference_label", "excerpt", "created_at",
	}
	legacyColumns = []string{
		"id", "user_id", "book_id", "chapter", "verse_start", "verse_end",
		"reference_label", "excerpt", "created_at",
	}
	mobileColumns = []string{
		"user_id", "book_id", "chapter_number", "verse_number",
		"language_code", "version_code", "reference_label", "excerpt", "created_at",
	}
	scopedConflict = []string{"id"}
	mobileConflict = []string{"user_id", "language_code", "version_code", "book_id", "chapter_number", "verse_number"}
	planColumns    = []string{"user_id", "plan_id", "completed_dates", "last_completed_at"}
	planConflict   = []string{"user_id", "plan_id"}
)

func (f family) columns(s shape) []string {
	var base []string
	switch s {
	case shapeScoped:
		base = scopedColumns
	case shapeLegacy:
		base = legacyColumns
	default:
		base = mobileColumns
	}
	return append(append([]string{}, base...), f.payload...)
}

// record is the family-independent form of an annotation.
type record struct {
	ID             string
	Scope          gloss.Scope
	Range          gloss.VerseRange
	ReferenceLabel string
	Excerpt        string
	CreatedAt      time.Time
	Color          string
	Note           string
	UpdatedAt      time.Time
}

func fromBookmark(e gloss.BookmarkEntry) record {
	return record{ID: e.ID, Scope: e.Scope, Range: e.VerseRange, ReferenceLabel: e.ReferenceLabel, Excerpt: e.Excerpt, CreatedAt: e.CreatedAt}
}

func fromHighlight(e gloss.HighlightEntry) record {
	return record{ID: e.ID, Scope: e.Scope, Range: e.VerseRange, ReferenceLabel: e.ReferenceLabel, Excerpt: e.Excerpt, CreatedAt: e.CreatedAt, Color: e.Color}
}

func fromNote(e gloss.NoteEntry) record {
	return record{ID: e.ID, Scope: e.Scope, Range: e.VerseRange, ReferenceLabel: e.ReferenceLabel, Excerpt: e.Excerpt, CreatedAt: e.CreatedAt, Note: e.Note, UpdatedAt: e.UpdatedAt}
}

func (r record) bookmark() gloss.BookmarkEntry {
	return gloss.BookmarkEntry{ID: r.ID, Scope: r.Scope, VerseRange: r.Range, ReferenceLabel: r.ReferenceLabel, Excerpt: r.Excerpt, CreatedAt: r.CreatedAt}
}

func (r record) highlight() gloss.HighlightEntry {
	return gloss.HighlightEntry{ID: r.ID, Scope: r.Scope, VerseRange: r.Range, Color: r.Color, ReferenceLabel: r.ReferenceLabel, Excerpt: r.Excerpt, CreatedAt: r.CreatedAt}
}

func (r record) note() gloss.NoteEntry {
	return gloss.NoteEntry{ID: r.ID, Scope: r.Scope, VerseRange: r.Range, Note: r.Note, ReferenceLabel: r.ReferenceLabel, Excerpt: r.Excerpt, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// canonical resolves the scope and recomputes the id from scope and range.
func (r record) canonical() record {
	r.Scope = gloss.CanonicalizeScope(r.Scope)
	r.ID = gloss.RangeID(r.Scope, r.Range)
	return r
}

// validate applies the same rules the local cache applies on load.
func (r record) validate(f family) error {
	if err := r.Range.Validate(); err != nil {
		return err
	}
	if f.table == notes.table && strings.TrimSpace(r.Note) == "" {
		return &gloss.ValidationError{Field: "note", Message: "empty"}
	}
	return nil
}

// encodeScoped renders a record as one range row.
func encodeScoped(f family, userID string, r record) cloud.Row {
	r = r.canonical()
	row := cloud.Row{
		"id":              r.ID,
		"user_id":         userID,
		"book_id":         r.Range.BookID,
		"chapter":         r.Range.Chapter,
		"verse_start":     r.Range.VerseStart,
		"verse_end":       r.Range.VerseEnd,
		"language_code":   string(r.Scope.Language),
		"version_code":    r.Scope.Version,
		"reference_label": r.ReferenceLabel,
		"excerpt":         r.Excerpt,
		"created_at":      r.CreatedAt.UTC(),
	}
	addPayload(f, row, r)
	return row
}

// expandMobile renders a record as one row per verse.
func expandMobile(f family, userID string, r record) []cloud.Row {
	r = r.canonical()
	verses := r.Range.Verses()
	rows := make([]cloud.Row, 0, len(verses))
	for _, v := range verses {
		row := cloud.Row{
			"user_id":         userID,
			"book_id":         r.Range.BookID,
			"chapter_number":  r.Range.Chapter,
			"verse_number":    v,
			"language_code":   string(r.Scope.Language),
			"version_code":    r.Scope.Version,
			"reference_label": r.ReferenceLabel,
			"excerpt":         r.Excerpt,
			"created_at":      r.CreatedAt.UTC(),
		}
		addPayload(f, row, r)
		rows = append(rows, row)
	}
	return rows
}

func addPayload(f family, row cloud.Row, r record) {
	switch f.table {
	case highlights.table:
		color := r.Color
		if color == "" {
			color = gloss.DefaultHighlightColor
		}
		row["color"] = color
	case notes.table:
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = r.CreatedAt
		}
		row["note"] = r.Note
		row["updated_at"] = updated.UTC()
	}
}

// decodeRange reads a scoped or legacy row. Legacy rows have no scope
// columns and fall back to the resolver defaults.
func decodeRange(f family, row cloud.Row) record {
	start := asInt(row["verse_start"])
	end := asInt(row["verse_end"])
	if end == 0 {
		end = start
	}
	r := record{
		Scope: gloss.ResolveScope(asString(row["language_code"]), asString(row["version_code"])),
		Range: gloss.VerseRange{
			BookID:     strings.TrimSpace(asString(row["book_id"])),
			Chapter:    asInt(row["chapter"]),
			VerseStart: start,
			VerseEnd:   end,
		},
	}
	return decodeCommon(f, row, r)
}

// decodeVerse reads a mobile row as a one-verse record.
func decodeVerse(f family, row cloud.Row) record {
	v := asInt(row["verse_number"])
	r := record{
		Scope: gloss.ResolveScope(asString(row["language_code"]), asString(row["version_code"])),
		Range: gloss.VerseRange{
			BookID:     strings.TrimSpace(asString(row["book_id"])),
			Chapter:    asInt(row["chapter_number"]),
			VerseStart: v,
			VerseEnd:   v,
		},
	}
	return decodeCommon(f, row, r)
}

func decodeCommon(f family, row cloud.Row, r record) record {
	r.ReferenceLabel = asString(row["reference_label"])
	r.Excerpt = asString(row["excerpt"])
	r.CreatedAt = asTime(row["created_at"])
	switch f.table {
	case highlights.table:
		r.Color = strings.TrimSpace(asString(row["color"]))
		if r.Color == "" {
			r.Color = gloss.DefaultHighlightColor
		}
	case notes.table:
		r.Note = strings.TrimSpace(asString(row["note"]))
		r.UpdatedAt = asTime(row["updated_at"])
	}
	return r.canonical()
}

// collapse merges one-verse records that share scope, book, chapter, payload
// and creation time into ranges, one per contiguous run of verses.
func collapse(f family, verses []record) []record {
	groups := make(map[string][]record)
	var order []string
	for _, r := range verses {
		k := strings.Join([]string{
			r.Scope.String(),
			r.Range.BookID,
			strconv.Itoa(r.Range.Chapter),
			f.groupKey(r),
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}, "\x00")
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var out []record
	for _, k := range order {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return g[i].Range.VerseStart < g[j].Range.VerseStart })

		run := g[0]
		for _, r := range g[1:] {
			switch {
			case r.Range.VerseStart <= run.Range.VerseEnd:
				// duplicate verse
			case r.Range.VerseStart == run.Range.VerseEnd+1:
				run.Range.VerseEnd = r.Range.VerseStart
			default:
				out = append(out, run.canonical())
				run = r
				continue
			}
			if r.UpdatedAt.After(run.UpdatedAt) {
				run.UpdatedAt = r.UpdatedAt
			}
		}
		out = append(out, run.canonical())
	}
	return out
}

func encodePlan(userID string, p gloss.PlanProgress) cloud.Row {
	dates := gloss.NormalizeDates(p.CompletedDates)
	row := cloud.Row{
		"user_id":           userID,
		"plan_id":           p.PlanID,
		"completed_dates":   dates,
		"last_completed_at": nil,
	}
	if p.LastCompletedAt != nil {
		row["last_completed_at"] = p.LastCompletedAt.UTC()
	}
	return row
}

func decodePlan(row cloud.Row) (gloss.PlanProgress, bool) {
	p := gloss.PlanProgress{
		PlanID:         strings.TrimSpace(asString(row["plan_id"])),
		CompletedDates: gloss.NormalizeDates(asStrings(row["completed_dates"])),
	}
	if t := asTime(row["last_completed_at"]); !t.IsZero() {
		p.LastCompletedAt = &t
	}
	return p, p.PlanID != ""
}

// Row values arrive as whatever the transport decoded: JSON numbers and
// strings over REST, native Go types over SQL.

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint32:
		return int(x)
	case float32:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		n, _ := x.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(x))
		return n
	default:
		return 0
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return time.Time{}
		}
		return x.UTC()
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, asString(e))
		}
		return out
	case string:
		s := strings.TrimSpace(x)
		if strings.HasPrefix(s, "[") {
			var out []string
			_ = json.Unmarshal([]byte(s), &out)
			return out
		}
		// Postgres array literal: {2024-01-01,2024-01-02}
		s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
		if s == "" {
			return nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.Trim(parts[i], `" `)
		}
		return parts
	default:
		return nil
	}
}
