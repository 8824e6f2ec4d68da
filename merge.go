package gloss

import (
	"sort"
	"time"
)

// MergeEngine reconciles two independently mutated snapshots into one.
type MergeEngine interface {
	Merge(local, cloud PersonalStore) PersonalStore
}

// LastWriteWins merges entries per identity by timestamp and plan progress by
// set union. Entries are grouped by the id their scope and range derive, so a
// legacy id and its canonical id collapse into one entry carrying the
// canonical id. Ties keep the local entry. Merge(x, x) == x and the result
// never loses an identity present on either side.
type LastWriteWins struct{}

// Merge implements MergeEngine. Neither input is modified.
func (LastWriteWins) Merge(local, cloud PersonalStore) PersonalStore {
	return PersonalStore{
		Bookmarks:    mergeEntries(local.Bookmarks, cloud.Bookmarks, BookmarkEntry.key, BookmarkEntry.withID),
		Highlights:   mergeEntries(local.Highlights, cloud.Highlights, HighlightEntry.key, HighlightEntry.withID),
		Notes:        mergeEntries(local.Notes, cloud.Notes, NoteEntry.key, NoteEntry.withID),
		PlanProgress: mergePlans(local.PlanProgress, cloud.PlanProgress),
	}
}

func (e BookmarkEntry) key() (string, time.Time) {
	return identityKey(e.ID, e.Scope, e.VerseRange), e.Timestamp()
}
func (e HighlightEntry) key() (string, time.Time) {
	return identityKey(e.ID, e.Scope, e.VerseRange), e.Timestamp()
}
func (e NoteEntry) key() (string, time.Time) {
	return identityKey(e.ID, e.Scope, e.VerseRange), e.Timestamp()
}

func (e BookmarkEntry) withID(id string) BookmarkEntry   { e.ID = id; return e }
func (e HighlightEntry) withID(id string) HighlightEntry { e.ID = id; return e }
func (e NoteEntry) withID(id string) NoteEntry           { e.ID = id; return e }

// identityKey is the canonical id of an entry with a valid range, else its
// stored id.
func identityKey(id string, scope Scope, r VerseRange) string {
	if r.Validate() != nil {
		return id
	}
	return RangeID(scope, r)
}

func mergeEntries[T any](local, cloud []T, key func(T) (string, time.Time), withID func(T, string) T) []T {
	winners := make(map[string]T, len(local)+len(cloud))
	for _, e := range local {
		id, ts := key(e)
		if cur, ok := winners[id]; ok {
			if _, curTS := key(cur); !ts.After(curTS) {
				continue
			}
		}
		winners[id] = e
	}
	for _, e := range cloud {
		id, ts := key(e)
		if cur, ok := winners[id]; ok {
			if _, curTS := key(cur); !ts.After(curTS) {
				continue
			}
		}
		winners[id] = e
	}

	out := make([]T, 0, len(winners))
	for id, e := range winners {
		out = append(out, withID(e, id))
	}
	sort.Slice(out, func(i, j int) bool {
		idI, tsI := key(out[i])
		idJ, tsJ := key(out[j])
		if !tsI.Equal(tsJ) {
			return tsI.After(tsJ)
		}
		return idI < idJ
	})
	return out
}

func mergePlans(local, cloud map[string]PlanProgress) map[string]PlanProgress {
	out := make(map[string]PlanProgress, len(local)+len(cloud))
	for id, p := range local {
		out[id] = mergePlan(id, p, out[id])
	}
	for id, p := range cloud {
		out[id] = mergePlan(id, out[id], p)
	}
	return out
}

func mergePlan(id string, a, b PlanProgress) PlanProgress {
	dates := make([]string, 0, len(a.CompletedDates)+len(b.CompletedDates))
	dates = append(dates, a.CompletedDates...)
	dates = append(dates, b.CompletedDates...)

	p := PlanProgress{PlanID: id, CompletedDates: NormalizeDates(dates)}
	last := laterTime(a.LastCompletedAt, b.LastCompletedAt)
	if last != nil {
		t := *last
		p.LastCompletedAt = &t
	}
	return p
}

func laterTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
