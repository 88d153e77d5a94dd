package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neilberkman/groupsum/internal/core/daemon"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watchdog and chat session in the foreground",
	Long: `Start the daemon: supervise the chat process, log the session in,
record group messages and answer the summary trigger.

Stops on SIGINT or SIGTERM. Changing log.level in the config file takes
effect without a restart.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	d, err := daemon.New(ctx, cfg, database, daemon.Deps{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to set up daemon: %w", err)
	}
	if daemon.WatchLogLevel(v, levelVar, logger) {
		logger.Debug("watching config file", "file", v.ConfigFileUsed())
	}
	return d.Run(ctx)
}
