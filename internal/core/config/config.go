package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// DefaultPromptTemplate renders the user half of the summarization prompt.
const DefaultPromptTemplate = `Analyse the chat history of the group "{{{room}}}" from {{start}} to {{end}} ({{count}} messages):

{{{transcript}}}`

type Config struct {
	DB        DBConfig        `toml:"db" mapstructure:"db"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
	Process   ProcessConfig   `toml:"process" mapstructure:"process"`
	Watchdog  WatchdogConfig  `toml:"watchdog" mapstructure:"watchdog"`
	Session   SessionConfig   `toml:"session" mapstructure:"session"`
	Bridge    BridgeConfig    `toml:"bridge" mapstructure:"bridge"`
	Ingest    IngestConfig    `toml:"ingest" mapstructure:"ingest"`
	Reconcile ReconcileConfig `toml:"reconcile" mapstructure:"reconcile"`
	Summary   SummaryConfig   `toml:"summary" mapstructure:"summary"`
}

type DBConfig struct {
	Path string `toml:"path" mapstructure:"path"`
	WAL  bool   `toml:"wal" mapstructure:"wal"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
	File   string `toml:"file" mapstructure:"file"`
}

type ProcessConfig struct {
	Name             string `toml:"name" mapstructure:"name"`
	Executable       string `toml:"executable" mapstructure:"executable"`
	FixupInterpreter string `toml:"fixup_interpreter" mapstructure:"fixup_interpreter"`
	FixupScript      string `toml:"fixup_script" mapstructure:"fixup_script"`
}

type WatchdogConfig struct {
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	MaxRetries   int           `toml:"max_retries" mapstructure:"max_retries"`
	LoginTimeout time.Duration `toml:"login_timeout" mapstructure:"login_timeout"`
	SettleDelay  time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	StartupDelay time.Duration `toml:"startup_delay" mapstructure:"startup_delay"`
}

type SessionConfig struct {
	LoginSettle time.Duration `toml:"login_settle" mapstructure:"login_settle"`
}

type BridgeConfig struct {
	URL   string `toml:"url" mapstructure:"url"`
	Token string `toml:"token" mapstructure:"token"`
}

type IngestConfig struct {
	TriggerPhrase  string        `toml:"trigger_phrase" mapstructure:"trigger_phrase"`
	RoomReadyDelay time.Duration `toml:"room_ready_delay" mapstructure:"room_ready_delay"`
	ResyncDelay    time.Duration `toml:"resync_delay" mapstructure:"resync_delay"`
	ReplySummary   bool          `toml:"reply_summary" mapstructure:"reply_summary"`
}

type ReconcileConfig struct {
	Freshness            time.Duration `toml:"freshness" mapstructure:"freshness"`
	DefaultAvatarPattern string        `toml:"default_avatar_pattern" mapstructure:"default_avatar_pattern"`
}

type SummaryConfig struct {
	Provider       string        `toml:"provider" mapstructure:"provider"`
	Endpoint       string        `toml:"endpoint" mapstructure:"endpoint"`
	APIKey         string        `toml:"api_key" mapstructure:"api_key"`
	Model          string        `toml:"model" mapstructure:"model"`
	Temperature    float64       `toml:"temperature" mapstructure:"temperature"`
	MaxTokens      int           `toml:"max_tokens" mapstructure:"max_tokens"`
	Timeout        time.Duration `toml:"timeout" mapstructure:"timeout"`
	Interval       time.Duration `toml:"interval" mapstructure:"interval"`
	PromptTemplate string        `toml:"prompt_template" mapstructure:"prompt_template"`
	BedrockRegion  string        `toml:"bedrock_region" mapstructure:"bedrock_region"`
}

// Dir returns ~/.config/groupsum, or the XDG equivalent when set.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "groupsum")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	return filepath.Join(home, ".config", "groupsum")
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db.path", filepath.Join(Dir(), "groupsum.db"))
	v.SetDefault("db.wal", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	name, exe := defaultProcess()
	v.SetDefault("process.name", name)
	v.SetDefault("process.executable", exe)
	v.SetDefault("process.fixup_interpreter", "python")
	v.SetDefault("process.fixup_script", "./change_version.py")

	v.SetDefault("watchdog.poll_interval", 30*time.Second)
	v.SetDefault("watchdog.max_retries", 3)
	v.SetDefault("watchdog.login_timeout", 5*time.Minute)
	v.SetDefault("watchdog.settle_delay", time.Second)
	v.SetDefault("watchdog.startup_delay", 5*time.Second)

	v.SetDefault("session.login_settle", 3*time.Second)

	v.SetDefault("bridge.url", "http://127.0.0.1:8788")
	v.SetDefault("bridge.token", "")

	v.SetDefault("ingest.trigger_phrase", "#summary")
	v.SetDefault("ingest.room_ready_delay", 2*time.Second)
	v.SetDefault("ingest.resync_delay", 30*time.Second)
	v.SetDefault("ingest.reply_summary", true)

	v.SetDefault("reconcile.freshness", 7*24*time.Hour)
	v.SetDefault("reconcile.default_avatar_pattern", "(?i)default")

	v.SetDefault("summary.provider", "openai")
	v.SetDefault("summary.endpoint", "https://api.deepseek.com/v1")
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.model", "deepseek-chat")
	v.SetDefault("summary.temperature", 0.3)
	v.SetDefault("summary.max_tokens", 2048)
	v.SetDefault("summary.timeout", 60*time.Second)
	v.SetDefault("summary.interval", time.Duration(0))
	v.SetDefault("summary.prompt_template", DefaultPromptTemplate)
	v.SetDefault("summary.bedrock_region", "us-east-1")
}

func defaultProcess() (name, exe string) {
	if runtime.GOOS == "windows" {
		return "WeChat.exe", `C:\Program Files\Tencent\WeChat\WeChat.exe`
	}
	return "wechat", "/usr/bin/wechat"
}

// Load reads config into v from file (when non-empty) or config.toml in
// Dir(), applies GROUPSUM_* environment overrides and decodes the result.
// A missing default config file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix("groupsum")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DB.Path = expandHome(cfg.DB.Path)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is empty"))
	}
	if c.Watchdog.PollInterval <= 0 {
		errs = append(errs, errors.New("watchdog.poll_interval must be positive"))
	}
	if c.Watchdog.MaxRetries < 1 {
		errs = append(errs, errors.New("watchdog.max_retries must be at least 1"))
	}
	if c.Watchdog.LoginTimeout <= 0 {
		errs = append(errs, errors.New("watchdog.login_timeout must be positive"))
	}
	if c.Reconcile.Freshness < 0 {
		errs = append(errs, errors.New("reconcile.freshness must not be negative"))
	}
	if c.Summary.Timeout <= 0 {
		errs = append(errs, errors.New("summary.timeout must be positive"))
	}
	if c.Summary.Interval < 0 {
		errs = append(errs, errors.New("summary.interval must not be negative"))
	}
	switch c.Summary.Provider {
	case "openai", "bedrock":
	default:
		errs = append(errs, fmt.Errorf("summary.provider %q is not one of openai, bedrock", c.Summary.Provider))
	}
	if strings.TrimSpace(c.Ingest.TriggerPhrase) == "" {
		errs = append(errs, errors.New("ingest.trigger_phrase is empty"))
	}
	return errors.Join(errs...)
}

// Encode writes c as TOML. The API key is masked.
func (c Config) Encode(w io.Writer) error {
	if c.Summary.APIKey != "" {
		c.Summary.APIKey = "********"
	}
	if c.Bridge.Token != "" {
		c.Bridge.Token = "********"
	}
	return toml.NewEncoder(w).Encode(c)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
