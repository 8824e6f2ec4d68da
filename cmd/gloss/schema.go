package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss/internal/cloud/pgstore"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show which schema shape the cloud store answers in",
	Long: `Probe each cloud table and report the shape it answers in: scoped
(ranges with language and version), legacy (ranges without scope) or mobile
(one row per verse). Tables that answer in no known shape are "missing".

With --apply and a Postgres DSN, create the reference tables instead.

Example:
  gloss schema --account 6f1c...
  gloss schema --apply --cloud-dsn postgres://...`,
	RunE: runSchema,
}

var schemaApply bool

func init() {
	schemaCmd.Flags().BoolVar(&schemaApply, "apply", false, "Create the reference tables (requires --cloud-dsn)")
	rootCmd.AddCommand(schemaCmd)
}

// SchemaResult for JSON output.
type SchemaResult struct {
	Account string            `json:"account,omitempty"`
	Tables  map[string]string `json:"tables,omitempty"`
	Applied bool              `json:"applied,omitempty"`
}

func runSchema(cmd *cobra.Command, args []string) error {
	if schemaApply {
		return runSchemaApply(cmd)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.adapter == nil {
		return fmt.Errorf("no cloud store configured: set --cloud-url or --cloud-dsn")
	}
	if a.cfg.AccountID == "" {
		return fmt.Errorf("account is required: pass --account or set GLOSS_ACCOUNT_ID")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.SyncTimeout)
	defer cancel()

	var shapes map[string]string
	err = runWithSpinner(cmd.ErrOrStderr(), "Probing cloud tables", func() error {
		var err error
		shapes, err = a.adapter.Shapes(ctx, a.cfg.AccountID)
		return err
	})
	if err != nil {
		return fmt.Errorf("probe schema: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, SchemaResult{Account: a.cfg.AccountID, Tables: shapes})
	}

	tables := make([]string, 0, len(shapes))
	for t := range shapes {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, []string{t, shapes[t]})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"TABLE", "SHAPE"}, rows))
	return nil
}

func runSchemaApply(cmd *cobra.Command) error {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	if cfg.CloudDSN == "" {
		return fmt.Errorf("--apply needs a Postgres DSN: pass --cloud-dsn or set GLOSS_CLOUD_DSN")
	}

	s, err := pgstore.Open(cmd.Context(), cfg.CloudDSN)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ApplySchema(cmd.Context()); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, SchemaResult{Applied: true})
	}
	printSuccess(cmd.OutOrStdout(), "Reference tables created")
	return nil
}
