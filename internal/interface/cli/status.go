package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusAccount string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database statistics and recent syncs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusAccount, "account", "", "Show sync history of this account")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	stats, err := database.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Database Statistics")
	fmt.Fprintln(out, "===================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Groups:            %d (%d managed, %d pending sync)\n", stats.TotalGroups, stats.ManagedGroups, stats.PendingGroups)
	fmt.Fprintf(out, "Messages:          %s\n", humanize.Comma(int64(stats.TotalMessages)))
	fmt.Fprintf(out, "Summaries:         %d\n", stats.TotalSummaries)
	if stats.TotalMessages > 0 {
		fmt.Fprintf(out, "Oldest Message:    %s\n", stats.OldestMessage.Local().Format("Jan 2, 2006 3:04 PM"))
		fmt.Fprintf(out, "Newest Message:    %s (%s)\n", stats.NewestMessage.Local().Format("Jan 2, 2006 3:04 PM"), humanize.Time(stats.NewestMessage))
	}
	if stats.BusiestRoom != "" {
		fmt.Fprintf(out, "Busiest Group:     %s (%d messages)\n", stats.BusiestRoom, stats.BusiestRoomSize)
	}
	if !stats.LastSync.IsZero() {
		fmt.Fprintf(out, "Last Sync:         %s, %s\n", humanize.Time(stats.LastSync), stats.LastSyncStatus)
	} else {
		fmt.Fprintf(out, "Last Sync:         never\n")
	}
	fmt.Fprintln(out)

	account, err := resolveAccount(ctx, database, statusAccount)
	if err == nil {
		logs, err := database.ListSyncLogs(ctx, account, 5)
		if err != nil {
			return fmt.Errorf("failed to read sync history: %w", err)
		}
		if len(logs) > 0 {
			fmt.Fprintf(out, "Recent syncs for %s:\n", account)
			for _, l := range logs {
				fmt.Fprintf(out, "  %-10s %-9s %-9s seen %d, +%d, ~%d", humanize.Time(l.SyncedAt), l.Type, l.Status,
					l.GroupsSeen, l.GroupsInserted, l.GroupsUpdated)
				if l.ErrorMessage != "" {
					fmt.Fprintf(out, "  (%s)", truncate(l.ErrorMessage, 60))
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out)
		}
	}

	fmt.Fprintf(out, "Database Location: %s\n", cfg.DB.Path)
	if fi, err := os.Stat(cfg.DB.Path); err == nil {
		fmt.Fprintf(out, "Database Size:     %s\n", humanize.Bytes(uint64(fi.Size())))
	}
	return nil
}
