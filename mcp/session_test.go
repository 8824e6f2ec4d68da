package mcp_test

import (
	"sync"
	"testing"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/mcp"
)

var (
	tb1   = gloss.Scope{Language: gloss.LanguageIndonesian, Version: gloss.VersionTB1}
	jn316 = gloss.VerseRange{BookID: "JHN", Chapter: 3, VerseStart: 16, VerseEnd: 16}
)

func TestRefSession_Track_SharedCounter(t *testing.T) {
	s := mcp.NewRefSession()

	refs := []string{
		s.Track(mcp.KindHighlight, "h1", tb1, jn316),
		s.Track(mcp.KindNote, "n1", tb1, jn316),
		s.Track(mcp.KindBookmark, "b1", tb1, jn316),
	}
	want := []string{"H1", "N2", "B3"}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("ref %d = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestRefSession_Track_SameEntrySameRef(t *testing.T) {
	s := mcp.NewRefSession()

	first := s.Track(mcp.KindNote, "n1", tb1, jn316)
	again := s.Track(mcp.KindNote, "n1", tb1, jn316)
	if first != again {
		t.Errorf("re-tracking returned %q, want %q", again, first)
	}

	// Same id under another kind is a different entry.
	if other := s.Track(mcp.KindHighlight, "n1", tb1, jn316); other == first {
		t.Errorf("kinds share ref %q", other)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestRefSession_Resolve(t *testing.T) {
	s := mcp.NewRefSession()
	ref := s.Track(mcp.KindHighlight, "id:TB1:JHN:3:16:16", tb1, jn316)

	got, ok := s.Resolve(ref)
	if !ok {
		t.Fatalf("Resolve(%q) not found", ref)
	}
	if got.Kind != mcp.KindHighlight || got.Selection.VerseRange != jn316 || got.Selection.Version != "TB1" {
		t.Errorf("Resolve(%q) = %+v", ref, got)
	}

	if _, ok := s.Resolve("H99"); ok {
		t.Error("Resolve of unknown ref succeeded")
	}
}

func TestRefSession_Clear(t *testing.T) {
	s := mcp.NewRefSession()
	s.Track(mcp.KindNote, "n1", tb1, jn316)
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d", s.Len())
	}
	if ref := s.Track(mcp.KindNote, "n2", tb1, jn316); ref != "N1" {
		t.Errorf("counter not reset: got %q", ref)
	}
}

func TestRefSession_Concurrent(t *testing.T) {
	s := mcp.NewRefSession()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := jn316
			r.VerseStart, r.VerseEnd = i+1, i+1
			s.Track(mcp.KindHighlight, gloss.RangeID(tb1, r), tb1, r)
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
}
