package gloss

import (
	"fmt"
	"strconv"
	"strings"
)

// IDDelimiter joins the identity fields of an entry. Book ids must never
// contain it, otherwise ParseID cannot recover the range.
const IDDelimiter = ":"

// BuildID derives the identity of an annotation from its scope and range.
// The scope is resolved first, so raw reader values and canonical values
// yield the same id.
func BuildID(scope Scope, bookID string, chapter, verseStart, verseEnd int) string {
	s := CanonicalizeScope(scope)
	return strings.Join([]string{
		string(s.Language),
		s.Version,
		bookID,
		strconv.Itoa(chapter),
		strconv.Itoa(verseStart),
		strconv.Itoa(verseEnd),
	}, IDDelimiter)
}

// RangeID is BuildID for a VerseRange.
func RangeID(scope Scope, r VerseRange) string {
	return BuildID(scope, r.BookID, r.Chapter, r.VerseStart, r.VerseEnd)
}

// ParseID reverses BuildID. The first two fields are the scope, the last
// three are chapter, verse start and verse end; everything in between is the
// book id.
func ParseID(id string) (Scope, VerseRange, error) {
	parts := strings.Split(id, IDDelimiter)
	if len(parts) < 6 {
		return Scope{}, VerseRange{}, fmt.Errorf("%w: %q has %d fields", ErrInvalidID, id, len(parts))
	}

	n := len(parts)
	nums := make([]int, 3)
	for i, raw := range parts[n-3:] {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return Scope{}, VerseRange{}, fmt.Errorf("%w: %q: bad number %q", ErrInvalidID, id, raw)
		}
		nums[i] = v
	}

	r := VerseRange{
		BookID:     strings.Join(parts[2:n-3], IDDelimiter),
		Chapter:    nums[0],
		VerseStart: nums[1],
		VerseEnd:   nums[2],
	}
	if r.BookID == "" || r.VerseEnd < r.VerseStart {
		return Scope{}, VerseRange{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return ResolveScope(parts[0], parts[1]), r, nil
}

// ValidateBookID rejects book ids that would make ids ambiguous.
func ValidateBookID(bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return &ValidationError{Field: "book_id", Message: "required"}
	}
	if strings.Contains(bookID, IDDelimiter) {
		return &ValidationError{Field: "book_id", Message: fmt.Sprintf("must not contain %q", IDDelimiter)}
	}
	return nil
}
