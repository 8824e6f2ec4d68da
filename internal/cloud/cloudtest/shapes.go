package cloudtest

var (
	scopedBase = []string{
		"id", "user_id", "book_id", "chapter", "verse_start", "verse_end",
		"language_code", "version_code", "reference_label", "excerpt", "created_at",
	}
	legacyBase = []string{
		"id", "user_id", "book_id", "chapter", "verse_start", "verse_end",
		"reference_label", "excerpt", "created_at",
	}
	mobileBase = []string{
		"user_id", "book_id", "chapter_number", "verse_number",
		"language_code", "version_code", "reference_label", "excerpt", "created_at",
	}
	mobileConflict = []string{"user_id", "language_code", "version_code", "book_id", "chapter_number", "verse_number"}
)

// payload columns per annotation table.
var payload = map[string][]string{
	"bookmarks":  nil,
	"highlights": {"color"},
	"notes":      {"note", "updated_at"},
}

// PlanTable is the plan progress table every shape shares.
func PlanTable() Table {
	return Table{
		Name:     "plan_progress",
		Columns:  []string{"user_id", "plan_id", "completed_dates", "last_completed_at"},
		Conflict: []string{"user_id", "plan_id"},
	}
}

// ScopedShape declares the range-based tables carrying scope columns.
func ScopedShape() []Table {
	return shape(scopedBase, []string{"id"})
}

// LegacyShape declares range-based tables without scope columns.
func LegacyShape() []Table {
	return shape(legacyBase, []string{"id"})
}

// MobileShape declares per-verse tables keyed by scope and verse.
func MobileShape() []Table {
	return shape(mobileBase, mobileConflict)
}

func shape(base, conflict []string) []Table {
	tables := make([]Table, 0, len(payload)+1)
	for _, name := range []string{"bookmarks", "highlights", "notes"} {
		cols := append(append([]string{}, base...), payload[name]...)
		tables = append(tables, Table{Name: name, Columns: cols, Conflict: conflict})
	}
	return append(tables, PlanTable())
}
