package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerRuleStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	bannerMarkStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryLight).Italic(true)
)

// renderBanner draws the title between margin rules, like a glossed page.
func renderBanner() string {
	rule := bannerRuleStyle.Render("│")
	mark := bannerMarkStyle.Render("¶")
	lines := []string{
		"  " + rule + "              " + rule,
		"  " + rule + "  " + mark + " " + bannerTitleStyle.Render("GLOSS") + "     " + rule,
		"  " + rule + "              " + rule,
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("  notes in the margin, everywhere")
	return strings.Join([]string{renderBanner(), tagline}, "\n")
}
