// Package mcp exposes gloss annotations as MCP (Model Context Protocol) tools.
//
// Two integration styles are offered:
//
//  1. NewServer (server.go) is a complete stdio MCP server built on mcp-go.
//  2. RegisterTools (this file) registers the mutation tools with a registry
//     you provide, for agent frameworks that already run their own MCP stack.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/gloss"
)

// Registry is an interface for MCP tool registration.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Handler is a function that handles tool invocations.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

func rangeSchema(extra Schema) Schema {
	s := Schema{
		"language":    {Type: "string", Description: "Text language", Default: "id", Enum: []string{"id", "en"}},
		"version":     {Type: "string", Description: "Text version", Default: gloss.VersionTB1},
		"book_id":     {Type: "string", Description: "Book id, e.g. JHN", Required: true},
		"chapter":     {Type: "integer", Description: "Chapter number", Required: true},
		"verse_start": {Type: "integer", Description: "First verse", Required: true},
		"verse_end":   {Type: "integer", Description: "Last verse (default: verse_start)"},
	}
	for k, v := range extra {
		s[k] = v
	}
	return s
}

// RegisterTools registers the gloss mutation tools with an MCP registry.
// Handlers return the saved entry as their result.
func RegisterTools(registry Registry, client *gloss.Client) {
	registry.Register(Tool{
		Name:        "gloss_bookmark",
		Description: "Bookmark a verse range",
		Parameters: rangeSchema(Schema{
			"reference_label": {Type: "string", Description: "Human-readable reference"},
			"excerpt":         {Type: "string", Description: "Verse text"},
		}),
		Handler: makeBookmarkHandler(client),
	})

	registry.Register(Tool{
		Name:        "gloss_highlight",
		Description: "Highlight a verse range",
		Parameters: rangeSchema(Schema{
			"color":           {Type: "string", Description: "Highlight color", Default: gloss.DefaultHighlightColor},
			"reference_label": {Type: "string", Description: "Human-readable reference"},
			"excerpt":         {Type: "string", Description: "Verse text"},
		}),
		Handler: makeHighlightHandler(client),
	})

	registry.Register(Tool{
		Name:        "gloss_note",
		Description: "Write a note on a verse range",
		Parameters: rangeSchema(Schema{
			"note":            {Type: "string", Description: "Note text", Required: true},
			"reference_label": {Type: "string", Description: "Human-readable reference"},
			"excerpt":         {Type: "string", Description: "Verse text"},
		}),
		Handler: makeNoteHandler(client),
	})

	registry.Register(Tool{
		Name:        "gloss_plan_complete",
		Description: "Mark a reading plan day as completed",
		Parameters: Schema{
			"plan_id": {Type: "string", Description: "Reading plan id", Required: true},
			"date":    {Type: "string", Description: "Day as YYYY-MM-DD", Required: true},
		},
		Handler: makePlanHandler(client),
	})
}

// rangeParams is the selection part of every range tool's parameters.
type rangeParams struct {
	Language   string `json:"language"`
	Version    string `json:"version"`
	BookID     string `json:"book_id"`
	Chapter    int    `json:"chapter"`
	VerseStart int    `json:"verse_start"`
	VerseEnd   int    `json:"verse_end"`
}

func (p rangeParams) selection() gloss.Selection {
	end := p.VerseEnd
	if end == 0 {
		end = p.VerseStart
	}
	return gloss.Selection{
		Language: p.Language,
		Version:  p.Version,
		VerseRange: gloss.VerseRange{
			BookID:     p.BookID,
			Chapter:    p.Chapter,
			VerseStart: p.VerseStart,
			VerseEnd:   end,
		},
	}
}

type bookmarkParams struct {
	rangeParams
	ReferenceLabel string `json:"reference_label"`
	Excerpt        string `json:"excerpt"`
}

func makeBookmarkHandler(client *gloss.Client) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (any, error) {
		var params bookmarkParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		return client.UpsertBookmark(ctx, gloss.BookmarkParams{
			Selection:      params.selection(),
			ReferenceLabel: params.ReferenceLabel,
			Excerpt:        params.Excerpt,
		})
	}
}

type highlightParams struct {
	rangeParams
	Color          string `json:"color"`
	ReferenceLabel string `json:"reference_label"`
	Excerpt        string `json:"excerpt"`
}

func makeHighlightHandler(client *gloss.Client) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (any, error) {
		var params highlightParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		return client.UpsertHighlight(ctx, gloss.HighlightParams{
			Selection:      params.selection(),
			Color:          params.Color,
			ReferenceLabel: params.ReferenceLabel,
			Excerpt:        params.Excerpt,
		})
	}
}

type noteParams struct {
	rangeParams
	Note           string `json:"note"`
	ReferenceLabel string `json:"reference_label"`
	Excerpt        string `json:"excerpt"`
}

func makeNoteHandler(client *gloss.Client) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (any, error) {
		var params noteParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		return client.UpsertNote(ctx, gloss.NoteParams{
			Selection:      params.selection(),
			Note:           params.Note,
			ReferenceLabel: params.ReferenceLabel,
			Excerpt:        params.Excerpt,
		})
	}
}

type planParams struct {
	PlanID string `json:"plan_id"`
	Date   string `json:"date"`
}

func makePlanHandler(client *gloss.Client) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (any, error) {
		var params planParams
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		return client.MarkPlanDayCompleted(ctx, params.PlanID, params.Date)
	}
}
