package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss"
)

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark <book> <chapter:verse[-verse]>",
	Short: "Bookmark a verse range",
	Long: `Bookmark a verse range. Bookmarking the same range again keeps the
original date.

Example:
  gloss bookmark JHN 3:16
  gloss bookmark PSA 23:1-6 --lang en --label "Psalm 23"`,
	Args: cobra.ExactArgs(2),
	RunE: runBookmark,
}

var highlightCmd = &cobra.Command{
	Use:   "highlight <book> <chapter:verse[-verse]>",
	Short: "Highlight a verse range",
	Long: `Highlight a verse range. Highlighting the exact same range again
changes its color.

Example:
  gloss highlight ROM 8:28 --color green`,
	Args: cobra.ExactArgs(2),
	RunE: runHighlight,
}

var noteCmd = &cobra.Command{
	Use:   "note <book> <chapter:verse[-verse]> <text>",
	Short: "Write a note on a verse range",
	Long: `Write or replace the note on a verse range. Markdown is rendered
when listing.

Example:
  gloss note JHN 1:1-5 "In the beginning **was** the Word"`,
	Args: cobra.ExactArgs(3),
	RunE: runNote,
}

var removeCmd = &cobra.Command{
	Use:   "rm <bookmark|highlight|note> <book> <chapter:verse[-verse]>",
	Short: "Remove a bookmark, highlight or note",
	Long: `Remove the annotation of the given kind on a range. Entries saved
under an older id format for the same range are removed too.

Example:
  gloss rm highlight ROM 8:28`,
	Args: cobra.ExactArgs(3),
	RunE: runRemove,
}

var (
	selLanguage string
	selVersion  string
	entryLabel  string
	entryText   string
	entryColor  string
)

func init() {
	for _, c := range []*cobra.Command{bookmarkCmd, highlightCmd, noteCmd, removeCmd} {
		c.Flags().StringVar(&selLanguage, "lang", "", "Text language: id or en (default: id)")
		c.Flags().StringVar(&selVersion, "version", "", "Text version: TB1, TB2 or EN1 (default: TB1)")
	}
	for _, c := range []*cobra.Command{bookmarkCmd, highlightCmd, noteCmd} {
		c.Flags().StringVar(&entryLabel, "label", "", "Human-readable reference label")
		c.Flags().StringVar(&entryText, "excerpt", "", "Verse text to keep with the entry")
	}
	highlightCmd.Flags().StringVar(&entryColor, "color", gloss.DefaultHighlightColor, "Highlight color")

	rootCmd.AddCommand(bookmarkCmd, highlightCmd, noteCmd, removeCmd)
}

// parseSelection turns "JHN" "3:16-17" plus the --lang/--version flags into
// a selection. A single verse is a range of one.
func parseSelection(book, ref string) (gloss.Selection, error) {
	chapterPart, versePart, ok := strings.Cut(ref, ":")
	if !ok {
		return gloss.Selection{}, fmt.Errorf("reference %q must look like 3:16 or 3:16-18", ref)
	}
	chapter, err := strconv.Atoi(chapterPart)
	if err != nil {
		return gloss.Selection{}, fmt.Errorf("chapter %q is not a number", chapterPart)
	}

	startPart, endPart, isRange := strings.Cut(versePart, "-")
	start, err := strconv.Atoi(startPart)
	if err != nil {
		return gloss.Selection{}, fmt.Errorf("verse %q is not a number", startPart)
	}
	end := start
	if isRange {
		if end, err = strconv.Atoi(endPart); err != nil {
			return gloss.Selection{}, fmt.Errorf("verse %q is not a number", endPart)
		}
	}

	return gloss.Selection{
		Language: selLanguage,
		Version:  selVersion,
		VerseRange: gloss.VerseRange{
			BookID:     strings.ToUpper(book),
			Chapter:    chapter,
			VerseStart: start,
			VerseEnd:   end,
		},
	}, nil
}

func runBookmark(cmd *cobra.Command, args []string) error {
	sel, err := parseSelection(args[0], args[1])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.client.UpsertBookmark(cmd.Context(), gloss.BookmarkParams{
		Selection:      sel,
		ReferenceLabel: entryLabel,
		Excerpt:        entryText,
	})
	if err != nil {
		return fmt.Errorf("bookmark: %w", err)
	}
	return outputEntry(cmd, "Bookmarked", EntryOutput{
		Kind: "bookmark", ID: b.ID, Scope: b.Scope.String(), Range: b.VerseRange.String(),
		Label: b.ReferenceLabel, CreatedAt: b.CreatedAt,
	})
}

func runHighlight(cmd *cobra.Command, args []string) error {
	sel, err := parseSelection(args[0], args[1])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.client.UpsertHighlight(cmd.Context(), gloss.HighlightParams{
		Selection:      sel,
		Color:          entryColor,
		ReferenceLabel: entryLabel,
		Excerpt:        entryText,
	})
	if err != nil {
		return fmt.Errorf("highlight: %w", err)
	}
	return outputEntry(cmd, "Highlighted", EntryOutput{
		Kind: "highlight", ID: h.ID, Scope: h.Scope.String(), Range: h.VerseRange.String(),
		Color: h.Color, Label: h.ReferenceLabel, CreatedAt: h.CreatedAt,
	})
}

func runNote(cmd *cobra.Command, args []string) error {
	sel, err := parseSelection(args[0], args[1])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.client.UpsertNote(cmd.Context(), gloss.NoteParams{
		Selection:      sel,
		Note:           args[2],
		ReferenceLabel: entryLabel,
		Excerpt:        entryText,
	})
	if err != nil {
		return fmt.Errorf("note: %w", err)
	}
	return outputEntry(cmd, "Saved note on", EntryOutput{
		Kind: "note", ID: n.ID, Scope: n.Scope.String(), Range: n.VerseRange.String(),
		Note: n.Note, Label: n.ReferenceLabel, CreatedAt: n.CreatedAt,
	})
}

// RemoveResult for JSON output.
type RemoveResult struct {
	Kind    string `json:"kind"`
	Range   string `json:"range"`
	Removed bool   `json:"removed"`
}

func runRemove(cmd *cobra.Command, args []string) error {
	kind := strings.ToLower(args[0])
	sel, err := parseSelection(args[1], args[2])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var removed bool
	switch kind {
	case "bookmark":
		removed, err = a.client.RemoveBookmark(cmd.Context(), sel)
	case "highlight":
		removed, err = a.client.RemoveHighlight(cmd.Context(), sel)
	case "note":
		removed, err = a.client.RemoveNote(cmd.Context(), sel)
	default:
		return fmt.Errorf("unknown kind %q: must be bookmark, highlight or note", args[0])
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", kind, err)
	}

	if outputJSON {
		return outputAsJSON(cmd, RemoveResult{Kind: kind, Range: sel.VerseRange.String(), Removed: removed})
	}
	out := cmd.OutOrStdout()
	if !removed {
		printMuted(out, "No %s on %s", kind, sel.VerseRange)
		return nil
	}
	printSuccess(out, "Removed %s on %s", kind, sel.VerseRange)
	return nil
}
