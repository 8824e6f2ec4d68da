package main

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	helpHeaderStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	helpCmdStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
)

// Command groups shown in root help. Commands without a group are listed
// under "Other Commands".
var helpGroups = []*cobra.Group{
	{ID: "annotate", Title: "Annotate:"},
	{ID: "read", Title: "Read:"},
	{ID: "sync", Title: "Sync & Data:"},
}

var helpGroupOf = map[string]string{
	"bookmark":  "annotate",
	"highlight": "annotate",
	"note":      "annotate",
	"rm":        "annotate",
	"plan":      "annotate",
	"chapter":   "read",
	"stats":     "read",
	"sync":      "sync",
	"schema":    "sync",
	"export":    "sync",
	"import":    "sync",
}

// helpEnv lists the variables ConfigFromEnv reads, in the order shown.
var helpEnv = [][2]string{
	{"GLOSS_DB_PATH", "local database (default ~/.gloss/gloss.db)"},
	{"GLOSS_CLOUD_URL", "row API of the shared store"},
	{"GLOSS_CLOUD_API_KEY", "project key for the row API"},
	{"GLOSS_ACCESS_TOKEN", "bearer token of the signed-in account"},
	{"GLOSS_CLOUD_DSN", "direct Postgres connection instead of the row API"},
	{"GLOSS_ACCOUNT_ID", "account bound at sync"},
	{"GLOSS_SYNC_TIMEOUT", "bound on each cloud call (default 30s)"},
	{"GLOSS_DEBUG", "debug logging"},
	{"GLOSS_DEBUG_LOG", "log file instead of stderr"},
}

var helpTemplateFuncs = template.FuncMap{
	"header": func(s string) string {
		if isTTY() {
			return helpHeaderStyle.Render(s)
		}
		return s
	},
	"cmd": func(s string) string {
		if isTTY() {
			return helpCmdStyle.Render(s)
		}
		return s
	},
	"muted": func(s string) string {
		if isTTY() {
			return mutedStyle.Render(s)
		}
		return s
	},
	"envHelp": renderEnvHelp,
}

const helpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{header "Usage:"}}
  {{cmd .UseLine}}{{if .HasAvailableSubCommands}} {{muted "[command]"}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}{{header "Commands:"}}
{{range $cmds}}{{if .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{else}}{{range $group := .Groups}}{{header $group.Title}}
{{range $cmds}}{{if and (eq .GroupID $group.ID) .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{if not .AllChildCommandsHaveGroup}}{{header "Other Commands:"}}
{{range $cmds}}{{if and (eq .GroupID "") .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}{{header "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}{{header "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if not .HasParent}}{{header "Environment:"}}
{{envHelp}}

{{end}}{{if .HasAvailableSubCommands}}{{muted "Use"}} {{cmd (printf "%s [command] --help" .CommandPath)}} {{muted "for more information."}}
{{end}}`

func renderEnvHelp() string {
	width := 0
	for _, kv := range helpEnv {
		width = max(width, len(kv[0]))
	}
	var b strings.Builder
	for i, kv := range helpEnv {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  %-*s  %s", width, kv[0], kv[1])
	}
	return b.String()
}

// initHelp groups the root's subcommands and installs the styled help
// template on cmd and every subcommand.
func initHelp(cmd *cobra.Command) {
	for name, fn := range helpTemplateFuncs {
		cobra.AddTemplateFunc(name, fn)
	}
	cmd.AddGroup(helpGroups...)
	for _, sub := range cmd.Commands() {
		if id, ok := helpGroupOf[sub.Name()]; ok {
			sub.GroupID = id
		}
	}
	applyHelpTemplate(cmd)
}

func applyHelpTemplate(cmd *cobra.Command) {
	cmd.SetHelpTemplate(helpTemplate)
	for _, sub := range cmd.Commands() {
		applyHelpTemplate(sub)
	}
}
