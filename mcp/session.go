package mcp

import (
	"fmt"
	"sync"

	"github.com/hyperengineering/gloss"
)

// Entry kinds accepted by gloss_remove.
const (
	KindBookmark  = "bookmark"
	KindHighlight = "highlight"
	KindNote      = "note"
)

// EntryRef locates an annotation listed earlier in the session.
type EntryRef struct {
	Kind      string
	ID        string
	Selection gloss.Selection
}

// RefSession hands out short references (B1, H2, N3...) for annotations shown
// to the agent, so later calls can address them without repeating the range.
// One counter is shared by every kind.
type RefSession struct {
	mu      sync.Mutex
	refs    map[string]EntryRef
	reverse map[string]string // kind + id -> ref
	counter int
}

// NewRefSession creates an empty session.
func NewRefSession() *RefSession {
	return &RefSession{
		refs:    make(map[string]EntryRef),
		reverse: make(map[string]string),
	}
}

// Track returns the reference for an entry, assigning a new one the first
// time the entry is seen.
func (s *RefSession) Track(kind, id string, scope gloss.Scope, r gloss.VerseRange) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := kind + "|" + id
	if ref, ok := s.reverse[key]; ok {
		return ref
	}

	s.counter++
	ref := fmt.Sprintf("%s%d", prefix(kind), s.counter)
	s.refs[ref] = EntryRef{
		Kind: kind,
		ID:   id,
		Selection: gloss.Selection{
			Language:   string(scope.Language),
			Version:    scope.Version,
			VerseRange: r,
		},
	}
	s.reverse[key] = ref
	return ref
}

// Resolve returns the entry a reference points to.
func (s *RefSession) Resolve(ref string) (EntryRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.refs[ref]
	return e, ok
}

// Len returns how many entries are tracked.
func (s *RefSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

// Clear forgets every reference and restarts the counter. Called when the
// bound account changes.
func (s *RefSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs = make(map[string]EntryRef)
	s.reverse = make(map[string]string)
	s.counter = 0
}

func prefix(kind string) string {
	switch kind {
	case KindBookmark:
		return "B"
	case KindHighlight:
		return "H"
	case KindNote:
		return "N"
	default:
		return "E"
	}
}
