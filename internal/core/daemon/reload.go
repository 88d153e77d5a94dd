package daemon

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/spf13/viper"
)

// WatchLogLevel re-reads log.level whenever the config file changes and
// applies it to lv. Other settings need a restart. It does nothing when v
// was not loaded from a file.
func WatchLogLevel(v *viper.Viper, lv *slog.LevelVar, logger *slog.Logger) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	logger = logging.OrDiscard(logger)
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level, err := logging.ParseLevel(v.GetString("log.level"))
		if err != nil {
			logger.Warn("config reload: keeping log level", "file", e.Name, "error", err)
			return
		}
		if level != lv.Level() {
			lv.Set(level)
			logger.Info("config reload: log level changed", "level", level)
		}
	})
	v.WatchConfig()
	return true
}
