package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bind the local store to an account and sync with the cloud",
	Long: `Start a session for an account: the local store is bound to the
account (clearing it first if it belonged to a different account), merged
with the account's cloud copy, and the merged result is written back.

Cloud problems do not fail the command; they are reported and recorded in
the sync journal (see 'gloss stats').

Example:
  gloss sync --account 6f1c...   # or GLOSS_ACCOUNT_ID
  gloss sync --json`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	account := strings.TrimSpace(a.cfg.AccountID)
	if account == "" {
		return fmt.Errorf("account is required: pass --account or set GLOSS_ACCOUNT_ID")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*a.cfg.SyncTimeout)
	defer cancel()

	var res *gloss.SessionResult
	err = runWithSpinner(cmd.ErrOrStderr(), "Syncing "+account, func() error {
		var err error
		res, err = a.client.StartSession(ctx, account)
		return err
	})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return outputSession(cmd, res)
}
