package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/spf13/cobra"
)

var (
	groupsAll     bool
	groupsAccount string
	groupsQuery   string
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List recorded groups",
	Long: `List the groups the session belongs to, by name.

Examples:
  groupsum groups
  groupsum groups --all
  groupsum groups --query hiking`,
	Args: cobra.NoArgs,
	RunE: runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.Flags().BoolVar(&groupsAll, "all", false, "Include groups the session has left")
	groupsCmd.Flags().StringVar(&groupsAccount, "account", "", "Only groups of this account")
	groupsCmd.Flags().StringVarP(&groupsQuery, "query", "q", "", "Filter by name or room id")
}

func runGroups(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	groups, err := database.ListGroups(cmd.Context(), db.GroupFilter{
		AccountID:        groupsAccount,
		IncludeUnmanaged: groupsAll,
		Query:            groupsQuery,
	})
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(groups) == 0 {
		fmt.Fprintln(out, "No groups found. Run 'groupsum sync' or start the daemon.")
		return nil
	}

	fmt.Fprintf(out, "Showing %d group(s)\n\n", len(groups))
	for i, g := range groups {
		fmt.Fprintf(out, "[%d] %s\n", i+1, g.Name)
		fmt.Fprintf(out, "    Room:    %s\n", g.RoomID)
		fmt.Fprintf(out, "    Members: %d\n", g.MemberCount)
		if g.Summarized() {
			fmt.Fprintf(out, "    Summary: %s\n", humanize.Time(g.LastSummaryTime))
		} else {
			fmt.Fprintf(out, "    Summary: never\n")
		}
		if !g.Managed {
			fmt.Fprintf(out, "    Left:    yes\n")
		}
		if g.IsPlaceholder() {
			fmt.Fprintf(out, "    Pending: waiting for the next sync\n")
		}
		fmt.Fprintln(out)
	}
	return nil
}
