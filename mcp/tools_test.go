package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperengineering/gloss"
	glossmcp "github.com/hyperengineering/gloss/mcp"
)

type fakeRegistry struct {
	tools map[string]glossmcp.Tool
}

func (r *fakeRegistry) Register(tool glossmcp.Tool) {
	if r.tools == nil {
		r.tools = make(map[string]glossmcp.Tool)
	}
	r.tools[tool.Name] = tool
}

func (r *fakeRegistry) invoke(t *testing.T, name, params string) (any, error) {
	t.Helper()
	tool, ok := r.tools[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	return tool.Handler(context.Background(), json.RawMessage(params))
}

func TestRegisterTools_Schemas(t *testing.T) {
	registry := &fakeRegistry{}
	glossmcp.RegisterTools(registry, newTestClient(t))

	for _, name := range []string{"gloss_bookmark", "gloss_highlight", "gloss_note", "gloss_plan_complete"} {
		if _, ok := registry.tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}

	note := registry.tools["gloss_note"]
	for _, param := range []string{"book_id", "chapter", "verse_start", "note"} {
		if !note.Parameters[param].Required {
			t.Errorf("gloss_note parameter %q should be required", param)
		}
	}
	if note.Parameters["verse_end"].Required {
		t.Error("verse_end should be optional")
	}
}

func TestRegisterTools_Handlers(t *testing.T) {
	client := newTestClient(t)
	registry := &fakeRegistry{}
	glossmcp.RegisterTools(registry, client)

	got, err := registry.invoke(t, "gloss_highlight", `{"book_id":"JHN","chapter":3,"verse_start":16,"color":"pink"}`)
	if err != nil {
		t.Fatalf("highlight handler returned error: %v", err)
	}
	h, ok := got.(*gloss.HighlightEntry)
	if !ok {
		t.Fatalf("handler returned %T, want *gloss.HighlightEntry", got)
	}
	if h.ID != "id:TB1:JHN:3:16:16" || h.Color != "pink" {
		t.Errorf("highlight = %+v", h)
	}

	if _, err := registry.invoke(t, "gloss_bookmark", `{"book_id":"JHN","chapter":3,"verse_start":16,"verse_end":18,"language":"en"}`); err != nil {
		t.Fatalf("bookmark handler returned error: %v", err)
	}

	got, err = registry.invoke(t, "gloss_plan_complete", `{"plan_id":"p1","date":"2024-05-01"}`)
	if err != nil {
		t.Fatalf("plan handler returned error: %v", err)
	}
	if p := got.(*gloss.PlanProgress); len(p.CompletedDates) != 1 {
		t.Errorf("plan = %+v", p)
	}

	_, err = registry.invoke(t, "gloss_note", `{"book_id":"JHN","chapter":3,"verse_start":16,"note":""}`)
	var uie *gloss.UserInputError
	if !errors.As(err, &uie) || uie.Field != "note" {
		t.Errorf("empty note: err = %v, want UserInputError on note", err)
	}

	if _, err := registry.invoke(t, "gloss_note", `{not json`); err == nil {
		t.Error("malformed params should fail")
	}

	s, err := client.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() returned error: %v", err)
	}
	if len(s.Highlights) != 1 || len(s.Bookmarks) != 1 || len(s.Notes) != 0 {
		t.Errorf("counts = %+v", s.Counts())
	}
}
