package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/neilberkman/groupsum/internal/core/summarization"
	"github.com/spf13/cobra"
)

var (
	debugPromptAccount string
	debugPromptAll     bool
	debugPromptOut     string
)

var debugPromptCmd = &cobra.Command{
	Use:   "debug-prompt <room-id>",
	Short: "Show the summary request that would be sent for a group",
	Long: `Build the exact request a summary of this group would send to the model
(system prompt, user prompt, model and temperature) and print it as JSON.
Nothing is sent and the watermark does not move.

Examples:
  groupsum debug-prompt 12345@chatroom
  groupsum debug-prompt 12345@chatroom --all --out request.json`,
	Args: cobra.ExactArgs(1),
	RunE: runDebugPrompt,
}

func init() {
	rootCmd.AddCommand(debugPromptCmd)
	debugPromptCmd.Flags().StringVar(&debugPromptAccount, "account", "", "Account id (default: the only recorded account)")
	debugPromptCmd.Flags().BoolVar(&debugPromptAll, "all", false, "Use the group's whole history instead of messages after the watermark")
	debugPromptCmd.Flags().StringVarP(&debugPromptOut, "out", "o", "", "Write the request JSON to this file")
}

func runDebugPrompt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	roomID := args[0]

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	account, err := resolveAccount(ctx, database, debugPromptAccount)
	if err != nil {
		return err
	}

	summarizer := summarization.New(database, nil, summarization.Config{
		Model:          cfg.Summary.Model,
		Temperature:    cfg.Summary.Temperature,
		MaxTokens:      cfg.Summary.MaxTokens,
		PromptTemplate: cfg.Summary.PromptTemplate,
	}, logger)
	w, err := summarizer.PrepareRequest(ctx, roomID, account, debugPromptAll)
	if errors.Is(err, summarization.ErrGroupNotFound) {
		return fmt.Errorf("unknown group %s for account %s (run 'groupsum sync' first)", roomID, account)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	watermark := "never"
	if !w.Group.LastSummaryTime.IsZero() {
		watermark = fmt.Sprintf("%s (%s)", w.Group.LastSummaryTime.Local().Format("2006-01-02 15:04:05"),
			humanize.Time(w.Group.LastSummaryTime))
	}
	fmt.Fprintln(out, "=== GROUP ===")
	fmt.Fprintf(out, "Room:      %s\n", roomID)
	fmt.Fprintf(out, "Name:      %s\n", w.Group.Name)
	fmt.Fprintf(out, "Account:   %s\n", account)
	fmt.Fprintf(out, "Watermark: %s\n", watermark)

	if len(w.Messages) == 0 {
		fmt.Fprintln(out)
		if debugPromptAll {
			fmt.Fprintln(out, "No messages stored for this group.")
		} else {
			fmt.Fprintln(out, "No messages after the watermark (use --all for the whole history).")
		}
		return nil
	}
	fmt.Fprintf(out, "Window:    %d messages, %s to %s\n", len(w.Messages),
		w.Start().Local().Format("2006-01-02 15:04:05"), w.End().Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Digest:    %s\n", w.Digest)

	data, err := json.MarshalIndent(w.Request, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if debugPromptOut != "" {
		if err := os.WriteFile(debugPromptOut, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", debugPromptOut, err)
		}
		fmt.Fprintf(out, "\nWrote request to %s\n", debugPromptOut)
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== REQUEST ===")
	fmt.Fprintln(out, string(data))
	return nil
}
