// ABOUTME: Sync CLI commands
// ABOUTME: Triggers provider sync runs and reports watermark status
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/models"
	"github.com/harperreed/revos/providers"
	"github.com/harperreed/revos/sync"
)

// SyncCommand runs a sync for one provider, or every connected provider
// with --all.
func SyncCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	account := fs.String("account", defaultAccountID, "Account to sync")
	all := fs.Bool("all", false, "Sync every connected provider")
	_ = fs.Parse(args)

	orch := sync.NewOrchestrator(database, providers.DefaultRegistry(), providers.NewRefresher(database))
	ctx := context.Background()

	if *all {
		results, err := orch.SyncAll(ctx, *account)
		for _, r := range results {
			fmt.Printf("  %s: %s (%d imported, %d updated)\n", r.Provider, r.Status, r.Imported, r.Updated)
		}
		return err
	}

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: sync [--account <id>] <provider> (or --all)")
	}

	_, err := orch.Sync(ctx, *account, fs.Arg(0))
	return err
}

// SyncStatusCommand prints the watermark for every provider of an account.
func SyncStatusCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync-status", flag.ExitOnError)
	account := fs.String("account", defaultAccountID, "Account to inspect")
	_ = fs.Parse(args)

	states, err := db.GetAllSyncStates(database, *account)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Println("No syncs recorded yet.")
		return nil
	}

	fmt.Printf("Sync status (%d providers):\n", len(states))
	for _, state := range states {
		line := fmt.Sprintf("  %-12s %-12s", state.Provider, state.Status)
		if state.LastRunAt != nil {
			line += " last run " + state.LastRunAt.Format("2006-01-02 15:04")
		}
		if state.Cursor != "" {
			line += " (resumable)"
		}
		fmt.Println(line)
		if state.Status == models.SyncStatusFailed && state.ErrorMessage != "" {
			fmt.Printf("               ✗ %s\n", state.ErrorMessage)
		}
	}
	return nil
}
