package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/neilberkman/groupsum/internal/core/config"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	dbPath      string
	logLevel    string
	versionInfo string

	v        = viper.New()
	cfg      *config.Config
	logger   *slog.Logger
	levelVar = new(slog.LevelVar)
	closeLog = func() error { return nil }
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	err := rootCmd.Execute()
	_ = closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "groupsum",
	Short: "Group chat watchdog and summarizer",
	Long: `groupsum - keep a chat session alive, record its group messages and
summarize them on demand.

Run 'groupsum run' to start the daemon. Every other command works on the
local database and can be used while the daemon is running.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to TUI if no subcommand specified
		return tuiCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default "+config.Dir()+"/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides db.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides log.level)")
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("log-level") {
		v.Set("log.level", logLevel)
	}
	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.DB.Path = dbPath
	}
	l, closer, err := logging.New(logging.Options{
		Level:    c.Log.Level,
		Format:   c.Log.Format,
		File:     c.Log.File,
		LevelVar: levelVar,
	})
	if err != nil {
		return err
	}
	cfg, logger, closeLog = c, l, closer
	return nil
}

func openDB() (*db.DB, error) {
	database, err := db.Open(cfg.DB.Path, db.Options{WAL: cfg.DB.WAL})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// resolveAccount returns flag when set, otherwise the only account found in
// the database.
func resolveAccount(ctx context.Context, database *db.DB, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	ids, err := database.ListAccounts(ctx)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no account recorded yet; pass --account")
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("several accounts recorded (%v); pass --account", ids)
	}
}
