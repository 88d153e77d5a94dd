package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/neilberkman/groupsum/internal/core/datefilter"
	"github.com/neilberkman/groupsum/internal/core/search"
	"github.com/spf13/cobra"
)

var (
	searchRoom    string
	searchAccount string
	searchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search recorded group messages",
	Long: `Search message content across all groups, newest first.

The query may carry since:<date> and before:<date> tokens.

Examples:
  groupsum search "north gate"
  groupsum search 集合 since:yesterday
  groupsum search headlamps --room 12345@chatroom`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchRoom, "room", "", "Only messages of this room id")
	searchCmd.Flags().StringVar(&searchAccount, "account", "", "Only messages of this account")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	f := datefilter.ParseQuery(strings.Join(args, " "), time.Now())

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	results, err := search.Search(cmd.Context(), database, search.Filters{
		Query:     f.Query,
		AccountID: searchAccount,
		RoomID:    searchRoom,
		Since:     f.Since,
		Before:    f.Before,
		Limit:     searchLimit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "No messages match %q\n", f.Query)
		return nil
	}
	fmt.Fprintf(out, "Found %d message(s)\n\n", len(results))
	for _, r := range results {
		group := r.GroupName
		if group == "" {
			group = r.RoomID
		}
		fmt.Fprintf(out, "%s  %s  %s\n", group, r.SenderName, humanize.Time(r.Timestamp))
		fmt.Fprintf(out, "    %s\n\n", truncate(r.Snippet, 120))
	}
	return nil
}
