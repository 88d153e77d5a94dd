package cli

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/neilberkman/groupsum/internal/core/chat/bridge"
	"github.com/neilberkman/groupsum/internal/core/llm"
	"github.com/neilberkman/groupsum/internal/core/summarization"
	"github.com/spf13/cobra"
)

var (
	summarizeAccount string
	summarizeSend    bool
	summarizeCopy    bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <room-id>",
	Short: "Summarize a group's messages since its last summary",
	Long: `Generate a summary for one group, exactly as the chat trigger does:
every message after the group's watermark is sent to the configured model
and the watermark advances to the newest message covered.

Examples:
  groupsum summarize 12345@chatroom
  groupsum summarize 12345@chatroom --send
  groupsum summarize 12345@chatroom --copy`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().StringVar(&summarizeAccount, "account", "", "Account id (default: the only recorded account)")
	summarizeCmd.Flags().BoolVar(&summarizeSend, "send", false, "Also post the summary to the group through the bridge")
	summarizeCmd.Flags().BoolVar(&summarizeCopy, "copy", false, "Copy the summary to the clipboard")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	roomID := args[0]

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	account, err := resolveAccount(ctx, database, summarizeAccount)
	if err != nil {
		return err
	}

	provider, err := llm.FromConfig(ctx, cfg.Summary)
	if err != nil {
		return fmt.Errorf("failed to set up %s provider: %w", cfg.Summary.Provider, err)
	}
	summarizer := summarization.New(database, provider, summarization.Config{
		Model:          cfg.Summary.Model,
		Temperature:    cfg.Summary.Temperature,
		MaxTokens:      cfg.Summary.MaxTokens,
		Timeout:        cfg.Summary.Timeout,
		PromptTemplate: cfg.Summary.PromptTemplate,
	}, logger)

	sp := newSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Summarizing %s with %s...", roomID, provider.Name()))
	sp.Start()
	res, err := summarizer.GenerateSummary(ctx, roomID, account)
	sp.Stop()

	if errors.Is(err, summarization.ErrGroupNotFound) {
		return fmt.Errorf("unknown group %s for account %s (run 'groupsum sync' first)", roomID, account)
	}
	if err != nil {
		return fmt.Errorf("summary failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if res.Empty {
		fmt.Fprintln(out, "No new messages since the last summary.")
		return nil
	}

	fmt.Fprintf(out, "Summary #%d: %d messages, %s to %s\n\n", res.SummaryID, res.MessageCount,
		res.WindowStart.Local().Format("Jan 2 15:04"), res.WindowEnd.Local().Format("Jan 2 15:04"))
	fmt.Fprintln(out, res.Text)

	if summarizeCopy {
		if err := clipboard.WriteAll(res.Text); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "✓ Copied to clipboard")
	}
	if summarizeSend {
		client := bridge.New(bridge.Config{BaseURL: cfg.Bridge.URL, Token: cfg.Bridge.Token, Logger: logger})
		if err := client.Send(ctx, roomID, res.Text); err != nil {
			return fmt.Errorf("summary saved but sending failed: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "✓ Sent to group")
	}
	return nil
}
