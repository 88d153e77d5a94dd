package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/neilberkman/groupsum/internal/core/datefilter"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/spf13/cobra"
)

var (
	summariesRoom  string
	summariesSince string
	summariesLimit int
	showCopy       bool
)

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "List generated summaries, newest first",
	Long: `List stored summaries.

--since accepts dates ("2025-04-01") and phrases ("yesterday", "last week").

Examples:
  groupsum summaries
  groupsum summaries --room 12345@chatroom --limit 5
  groupsum summaries --since "last week"`,
	Args: cobra.NoArgs,
	RunE: runSummaries,
}

var summariesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummariesShow,
}

func init() {
	rootCmd.AddCommand(summariesCmd)
	summariesCmd.AddCommand(summariesShowCmd)
	summariesCmd.Flags().StringVar(&summariesRoom, "room", "", "Only summaries of this room id")
	summariesCmd.Flags().StringVar(&summariesSince, "since", "", "Only summaries created since this date")
	summariesCmd.Flags().IntVar(&summariesLimit, "limit", 20, "Maximum number of summaries to display")
	summariesShowCmd.Flags().BoolVar(&showCopy, "copy", false, "Copy the summary text to the clipboard")
}

func runSummaries(cmd *cobra.Command, args []string) error {
	f := db.SummaryFilter{RoomID: summariesRoom, Limit: summariesLimit}
	if summariesSince != "" {
		t, err := datefilter.Parse(summariesSince, time.Now())
		if err != nil {
			return err
		}
		f.Since = t
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	list, err := database.ListSummaries(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("failed to list summaries: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No summaries found.")
		return nil
	}
	for _, s := range list {
		fmt.Fprintf(out, "#%d  %s  %s\n", s.ID, s.RoomID, humanize.Time(s.CreatedAt))
		fmt.Fprintf(out, "    %d messages, %s to %s, %s\n", s.MessageCount,
			s.StartTime.Local().Format("Jan 2 15:04"), s.EndTime.Local().Format("Jan 2 15:04"), s.Model)
		fmt.Fprintf(out, "    %s\n\n", truncate(s.Text, 80))
	}
	return nil
}

func runSummariesShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid summary id %q", args[0])
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	s, err := database.GetSummary(cmd.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("summary %d not found", id)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Summary #%d for %s\n", s.ID, s.RoomID)
	fmt.Fprintf(out, "Window:   %s to %s (%d messages)\n",
		s.StartTime.Local().Format(time.DateTime), s.EndTime.Local().Format(time.DateTime), s.MessageCount)
	fmt.Fprintf(out, "Model:    %s\n", s.Model)
	fmt.Fprintf(out, "Hash:     %s\n\n", s.Hash)
	fmt.Fprintln(out, s.Text)

	if showCopy {
		if err := clipboard.WriteAll(s.Text); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "✓ Copied to clipboard")
	}
	return nil
}

// truncate flattens whitespace and shortens s at a word boundary.
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}

	cut := string(r[:maxLen])
	if i := strings.LastIndex(cut, " "); i > len(cut)-20 && i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
