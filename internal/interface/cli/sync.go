package cli

import (
	"fmt"

	"github.com/neilberkman/groupsum/internal/core/chat/bridge"
	"github.com/neilberkman/groupsum/internal/core/reconcile"
	"github.com/spf13/cobra"
)

var (
	syncForce   bool
	syncAccount string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the group list with the chat session",
	Long: `Fetch the room list through the bridge and bring the groups table up
to date. Skipped when the last completed sync is newer than
reconcile.freshness unless --force is given.

The account defaults to the one the bridge is logged in as.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Ignore the freshness window")
	syncCmd.Flags().StringVar(&syncAccount, "account", "", "Account id (default: the logged-in account)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	client := bridge.New(bridge.Config{BaseURL: cfg.Bridge.URL, Token: cfg.Bridge.Token, Logger: logger})

	account := syncAccount
	if account == "" {
		me, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to read logged-in account: %w", err)
		}
		account = me.ID
	}

	syncer, err := reconcile.New(database, reconcile.Config{
		Freshness:            cfg.Reconcile.Freshness,
		DefaultAvatarPattern: cfg.Reconcile.DefaultAvatarPattern,
	}, reconcile.WithLogger(logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Syncing groups for %s via %s\n", account, cfg.Bridge.URL)

	stats, err := syncer.SyncRoomList(ctx, client, account, syncForce)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if stats.Skipped {
		fmt.Fprintln(out, "Skipped: last sync is still fresh (use --force to sync anyway)")
		return nil
	}
	fmt.Fprintf(out, "✓ %d rooms seen, %d inserted, %d updated\n", stats.Seen, stats.Inserted, stats.Updated)
	return nil
}
