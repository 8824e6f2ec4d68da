package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hyperengineering/gloss"
)

// Server wraps the MCP server with gloss tools.
type Server struct {
	client    *gloss.Client
	mcpServer *server.MCPServer
	session   *RefSession
	now       func() time.Time
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with gloss tools registered.
func NewServer(client *gloss.Client) *Server {
	s := &Server{
		client:  client,
		session: NewRefSession(),
		now:     time.Now,
	}

	s.mcpServer = server.NewMCPServer(
		"gloss",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "gloss_bookmark", Description: "Bookmark a verse range"},
		{Name: "gloss_highlight", Description: "Highlight a verse range with a color"},
		{Name: "gloss_note", Description: "Write a note on a verse range"},
		{Name: "gloss_remove", Description: "Remove a bookmark, highlight or note"},
		{Name: "gloss_plan_complete", Description: "Mark a reading plan day as completed"},
		{Name: "gloss_chapter", Description: "List annotations on one chapter"},
		{Name: "gloss_sync", Description: "Merge the local annotations with the cloud copy for an account"},
		{Name: "gloss_stats", Description: "Show local store statistics and the last sync"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "gloss_bookmark":
		return s.handleBookmark(ctx, args)
	case "gloss_highlight":
		return s.handleHighlight(ctx, args)
	case "gloss_note":
		return s.handleNote(ctx, args)
	case "gloss_remove":
		return s.handleRemove(ctx, args)
	case "gloss_plan_complete":
		return s.handlePlanComplete(ctx, args)
	case "gloss_chapter":
		return s.handleChapter(ctx, args)
	case "gloss_sync":
		return s.handleSync(ctx, args)
	case "gloss_stats":
		return s.handleStats(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

// selectionOptions are the parameters shared by every tool addressing a range.
func selectionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("book",
			mcp.Description("Book id, e.g. JHN, GEN, 1CO"),
			mcp.Required(),
		),
		mcp.WithNumber("chapter",
			mcp.Description("Chapter number"),
			mcp.Required(),
		),
		mcp.WithNumber("verse_start",
			mcp.Description("First verse of the range"),
			mcp.Required(),
		),
		mcp.WithNumber("verse_end",
			mcp.Description("Last verse of the range (default: verse_start)"),
		),
		mcp.WithString("language",
			mcp.Description("Text language: id or en (default: id)"),
		),
		mcp.WithString("version",
			mcp.Description("Text version: TB1 or TB2 for id, EN1 for en (default: TB1)"),
		),
	}
}

func tool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(tool("gloss_bookmark",
		"Bookmark a verse range. Bookmarking the same range again replaces the label but keeps the original date.",
		append(selectionOptions(),
			mcp.WithString("reference_label", mcp.Description("Human-readable reference, e.g. \"John 3:16\"")),
			mcp.WithString("excerpt", mcp.Description("Verse text to show with the bookmark")),
		)...,
	), s.wrap(s.handleBookmark))

	s.mcpServer.AddTool(tool("gloss_highlight",
		"Highlight a verse range. Highlighting the exact same range again changes its color.",
		append(selectionOptions(),
			mcp.WithString("color", mcp.Description("Highlight color (default: yellow)")),
			mcp.WithString("reference_label", mcp.Description("Human-readable reference")),
			mcp.WithString("excerpt", mcp.Description("Verse text")),
		)...,
	), s.wrap(s.handleHighlight))

	s.mcpServer.AddTool(tool("gloss_note",
		"Write or replace the note on a verse range.",
		append(selectionOptions(),
			mcp.WithString("note", mcp.Description("Note text"), mcp.Required()),
			mcp.WithString("reference_label", mcp.Description("Human-readable reference")),
			mcp.WithString("excerpt", mcp.Description("Verse text")),
		)...,
	), s.wrap(s.handleNote))

	s.mcpServer.AddTool(tool("gloss_remove",
		"Remove a bookmark, highlight or note. Pass a ref (B1, H2, N3) from gloss_chapter, or kind plus the range.",
		append(selectionOptionsOptional(),
			mcp.WithString("ref", mcp.Description("Reference from gloss_chapter output")),
			mcp.WithString("kind", mcp.Description("bookmark, highlight or note (required without ref)")),
		)...,
	), s.wrap(s.handleRemove))

	s.mcpServer.AddTool(tool("gloss_plan_complete",
		"Mark one day of a reading plan as completed.",
		mcp.WithString("plan_id", mcp.Description("Reading plan id"), mcp.Required()),
		mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD (default: today)")),
	), s.wrap(s.handlePlanComplete))

	s.mcpServer.AddTool(tool("gloss_chapter",
		"List bookmarks, highlights and notes on one chapter. Entries get refs (B1, H2, N3) usable with gloss_remove.",
		mcp.WithString("book", mcp.Description("Book id"), mcp.Required()),
		mcp.WithNumber("chapter", mcp.Description("Chapter number"), mcp.Required()),
		mcp.WithString("language", mcp.Description("Text language (default: id)")),
		mcp.WithString("version", mcp.Description("Text version (default: TB1)")),
	), s.wrap(s.handleChapter))

	s.mcpServer.AddTool(tool("gloss_sync",
		"Merge local annotations with the cloud copy of an account and write the result back. Requires a configured cloud store.",
		mcp.WithString("account", mcp.Description("Account id (default: the account the store is bound to)")),
	), s.wrap(s.handleSync))

	s.mcpServer.AddTool(tool("gloss_stats",
		"Show local annotation counts, the bound account and the last sync. Read-only.",
	), s.wrap(s.handleStats))
}

func selectionOptionsOptional() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("book", mcp.Description("Book id")),
		mcp.WithNumber("chapter", mcp.Description("Chapter number")),
		mcp.WithNumber("verse_start", mcp.Description("First verse of the range")),
		mcp.WithNumber("verse_end", mcp.Description("Last verse of the range (default: verse_start)")),
		mcp.WithString("language", mcp.Description("Text language (default: id)")),
		mcp.WithString("version", mcp.Description("Text version (default: TB1)")),
	}
}

func (s *Server) wrap(h func(context.Context, map[string]any) (*ToolResult, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// Internal handlers

func (s *Server) handleBookmark(ctx context.Context, args map[string]any) (*ToolResult, error) {
	sel, errResult := selectionArg(args)
	if errResult != nil {
		return errResult, nil
	}

	b, err := s.client.UpsertBookmark(ctx, gloss.BookmarkParams{
		Selection:      sel,
		ReferenceLabel: stringArg(args, "reference_label"),
		Excerpt:        stringArg(args, "excerpt"),
	})
	if err != nil {
		return failure("bookmark", err), nil
	}
	ref := s.session.Track(KindBookmark, b.ID, b.Scope, b.VerseRange)
	return &ToolResult{Content: fmt.Sprintf("Bookmarked [%s] %s (%s)", ref, b.VerseRange, b.Scope)}, nil
}

func (s *Server) handleHighlight(ctx context.Context, args map[string]any) (*ToolResult, error) {
	sel, errResult := selectionArg(args)
	if errResult != nil {
		return errResult, nil
	}

	h, err := s.client.UpsertHighlight(ctx, gloss.HighlightParams{
		Selection:      sel,
		Color:          stringArg(args, "color"),
		ReferenceLabel: stringArg(args, "reference_label"),
		Excerpt:        stringArg(args, "excerpt"),
	})
	if err != nil {
		return failure("highlight", err), nil
	}
	ref := s.session.Track(KindHighlight, h.ID, h.Scope, h.VerseRange)
	return &ToolResult{Content: fmt.Sprintf("Highlighted [%s] %s (%s) in %s", ref, h.VerseRange, h.Scope, h.Color)}, nil
}

func (s *Server) handleNote(ctx context.Context, args map[string]any) (*ToolResult, error) {
	sel, errResult := selectionArg(args)
	if errResult != nil {
		return errResult, nil
	}

	n, err := s.client.UpsertNote(ctx, gloss.NoteParams{
		Selection:      sel,
		Note:           stringArg(args, "note"),
		ReferenceLabel: stringArg(args, "reference_label"),
		Excerpt:        stringArg(args, "excerpt"),
	})
	if err != nil {
		return failure("note", err), nil
	}
	ref := s.session.Track(KindNote, n.ID, n.Scope, n.VerseRange)
	return &ToolResult{Content: fmt.Sprintf("Saved note [%s] on %s (%s): %s", ref, n.VerseRange, n.Scope, truncate(n.Note, 100))}, nil
}

func (s *Server) handleRemove(ctx context.Context, args map[string]any) (*ToolResult, error) {
	var (
		kind = strings.ToLower(stringArg(args, "kind"))
		sel  gloss.Selection
	)

	if ref := strings.ToUpper(stringArg(args, "ref")); ref != "" {
		entry, ok := s.session.Resolve(ref)
		if !ok {
			return &ToolResult{Content: fmt.Sprintf("unknown ref %q; list the chapter with gloss_chapter first", ref), IsError: true}, nil
		}
		kind, sel = entry.Kind, entry.Selection
	} else {
		var errResult *ToolResult
		if sel, errResult = selectionArg(args); errResult != nil {
			return errResult, nil
		}
	}

	var (
		removed bool
		err     error
	)
	switch kind {
	case KindBookmark:
		removed, err = s.client.RemoveBookmark(ctx, sel)
	case KindHighlight:
		removed, err = s.client.RemoveHighlight(ctx, sel)
	case KindNote:
		removed, err = s.client.RemoveNote(ctx, sel)
	default:
		return &ToolResult{Content: "kind must be bookmark, highlight or note", IsError: true}, nil
	}
	if err != nil {
		return failure("remove", err), nil
	}
	if !removed {
		return &ToolResult{Content: fmt.Sprintf("No %s on %s", kind, sel.VerseRange)}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Removed %s on %s", kind, sel.VerseRange)}, nil
}

func (s *Server) handlePlanComplete(ctx context.Context, args map[string]any) (*ToolResult, error) {
	planID := stringArg(args, "plan_id")
	if planID == "" {
		return &ToolResult{Content: "plan_id is required", IsError: true}, nil
	}
	date := stringArg(args, "date")
	if date == "" {
		date = s.now().Format(gloss.DateKeyLayout)
	}

	p, err := s.client.MarkPlanDayCompleted(ctx, planID, date)
	if err != nil {
		return failure("plan", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Plan %s: %s done (%d days completed)", p.PlanID, date, len(p.CompletedDates))}, nil
}

func (s *Server) handleChapter(ctx context.Context, args map[string]any) (*ToolResult, error) {
	book := stringArg(args, "book")
	if book == "" {
		return &ToolResult{Content: "book is required", IsError: true}, nil
	}
	chapter, ok := intArg(args, "chapter")
	if !ok {
		return &ToolResult{Content: "chapter is required", IsError: true}, nil
	}

	list, err := s.client.ChapterAnnotations(stringArg(args, "language"), stringArg(args, "version"), book, chapter)
	if err != nil {
		return failure("chapter", err), nil
	}
	return &ToolResult{Content: s.formatChapter(list)}, nil
}

func (s *Server) handleSync(ctx context.Context, args map[string]any) (*ToolResult, error) {
	account := stringArg(args, "account")
	if account == "" {
		account = s.client.Account()
	}
	if account == "" {
		return &ToolResult{Content: "account is required: the store is not bound to an account yet", IsError: true}, nil
	}
	if s.client.IsOffline() {
		return &ToolResult{Content: "Sync unavailable: no cloud store configured (offline mode)", IsError: true}, nil
	}

	res, err := s.client.StartSession(ctx, account)
	if err != nil {
		return failure("sync", err), nil
	}
	if res.OwnerChanged {
		s.session.Clear()
	}
	return &ToolResult{Content: formatSession(res), IsError: res.Cloud == gloss.CloudFailed}, nil
}

// Formatting functions

func (s *Server) formatChapter(list *gloss.ChapterAnnotations) string {
	total := len(list.Bookmarks) + len(list.Highlights) + len(list.Notes)
	if total == 0 {
		return fmt.Sprintf("No annotations on %s %d (%s).", list.BookID, list.Chapter, list.Scope)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d (%s): %d annotations\n\n", list.BookID, list.Chapter, list.Scope, total)

	for _, b := range list.Bookmarks {
		ref := s.session.Track(KindBookmark, b.ID, b.Scope, b.VerseRange)
		fmt.Fprintf(&sb, "[%s] bookmark %s", ref, b.VerseRange)
		if b.ReferenceLabel != "" {
			fmt.Fprintf(&sb, " %q", b.ReferenceLabel)
		}
		sb.WriteString("\n")
	}
	for _, h := range list.Highlights {
		ref := s.session.Track(KindHighlight, h.ID, h.Scope, h.VerseRange)
		fmt.Fprintf(&sb, "[%s] highlight %s %s\n", ref, h.VerseRange, h.Color)
	}
	for _, n := range list.Notes {
		ref := s.session.Track(KindNote, n.ID, n.Scope, n.VerseRange)
		fmt.Fprintf(&sb, "[%s] note %s: %s\n", ref, n.VerseRange, truncate(n.Note, 100))
	}

	sb.WriteString("\nUse gloss_remove with a ref to delete an entry.")
	return sb.String()
}

func formatSession(res *gloss.SessionResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sync %s for %s (cloud: %s)\n", res.RunID, res.AccountID, res.Cloud)
	if res.OwnerChanged {
		sb.WriteString("  Local data of the previous account was cleared.\n")
	}
	fmt.Fprintf(&sb, "  Local: %d  Remote: %d  Merged: %d\n", res.Local.Total(), res.Remote.Total(), res.Merged.Total())
	if res.Sync != nil {
		fmt.Fprintf(&sb, "  Written: %d  Deleted: %d\n", res.Sync.Written.Total(), res.Sync.Deleted.Total())
		if res.Sync.ReconcileSkipped {
			fmt.Fprintf(&sb, "  Cleanup skipped: %s\n", res.Sync.SkipReason)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(&sb, "  Error: %s\n", res.Error)
	}
	return sb.String()
}

// failure reports input problems plainly and everything else with its context.
func failure(op string, err error) *ToolResult {
	var uie *gloss.UserInputError
	if errors.As(err, &uie) {
		return &ToolResult{Content: uie.Error(), IsError: true}
	}
	return &ToolResult{Content: fmt.Sprintf("%s failed: %v", op, err), IsError: true}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Argument helpers. JSON numbers arrive as float64.

func selectionArg(args map[string]any) (gloss.Selection, *ToolResult) {
	book := stringArg(args, "book")
	if book == "" {
		return gloss.Selection{}, &ToolResult{Content: "book is required", IsError: true}
	}
	chapter, ok := intArg(args, "chapter")
	if !ok {
		return gloss.Selection{}, &ToolResult{Content: "chapter is required", IsError: true}
	}
	start, ok := intArg(args, "verse_start")
	if !ok {
		return gloss.Selection{}, &ToolResult{Content: "verse_start is required", IsError: true}
	}
	end, ok := intArg(args, "verse_end")
	if !ok {
		end = start
	}

	return gloss.Selection{
		Language: stringArg(args, "language"),
		Version:  stringArg(args, "version"),
		VerseRange: gloss.VerseRange{
			BookID:     book,
			Chapter:    chapter,
			VerseStart: start,
			VerseEnd:   end,
		},
	}, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}
