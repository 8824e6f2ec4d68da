package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var chapterCmd = &cobra.Command{
	Use:     "chapter <book> <chapter>",
	Aliases: []string{"list"},
	Short:   "List annotations on one chapter",
	Long: `List the bookmarks, highlights and notes on one chapter of the
selected text edition, ordered by verse.

Example:
  gloss chapter JHN 3
  gloss list PSA 23 --lang en --json`,
	Args: cobra.ExactArgs(2),
	RunE: runChapter,
}

func init() {
	chapterCmd.Flags().StringVar(&selLanguage, "lang", "", "Text language: id or en (default: id)")
	chapterCmd.Flags().StringVar(&selVersion, "version", "", "Text version (default: TB1)")
	rootCmd.AddCommand(chapterCmd)
}

func runChapter(cmd *cobra.Command, args []string) error {
	chapter, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("chapter %q is not a number", args[1])
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.client.ChapterAnnotations(selLanguage, selVersion, strings.ToUpper(args[0]), chapter)
	if err != nil {
		return fmt.Errorf("chapter: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, list)
	}

	out := cmd.OutOrStdout()
	total := len(list.Bookmarks) + len(list.Highlights) + len(list.Notes)
	if total == 0 {
		printMuted(out, "No annotations on %s %d (%s).", list.BookID, list.Chapter, list.Scope)
		return nil
	}

	printInfo(out, "%s %d (%s): %d annotations", list.BookID, list.Chapter, list.Scope, total)

	if len(list.Bookmarks) > 0 || len(list.Highlights) > 0 {
		var rows [][]string
		for _, b := range list.Bookmarks {
			rows = append(rows, []string{"bookmark", b.VerseRange.String(), b.ReferenceLabel})
		}
		for _, h := range list.Highlights {
			rows = append(rows, []string{"highlight", h.VerseRange.String(), swatch(h.Color)})
		}
		fmt.Fprintln(out, renderTable([]string{"KIND", "RANGE", "DETAIL"}, rows))
	}

	for _, n := range list.Notes {
		fmt.Fprintln(out)
		printField(out, n.VerseRange.String(), "%s", formatRelativeTime(n.Timestamp(), nowFunc()))
		fmt.Fprintln(out, renderMarkdown(n.Note))
	}
	return nil
}
