package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "RITUAL"
	DirName        = ".ritual"
	FileName       = "config.toml"
	channelURLBase = "https://discord.com/"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	ChannelURL string          `mapstructure:"channel_url"`
	AdsPower   AdsPowerConfig  `mapstructure:"adspower"`
	Pacing     PacingConfig    `mapstructure:"pacing"`
	Timing     TimingConfig    `mapstructure:"timing"`
	Execution  ExecutionConfig `mapstructure:"execution"`
	Blocking   BlockingConfig  `mapstructure:"blocking"`
	State      StateConfig     `mapstructure:"state"`
	Accounts   AccountsConfig  `mapstructure:"accounts"`
	Secrets    SecretsConfig   `mapstructure:"secrets"`
	Sheets     SheetsConfig    `mapstructure:"sheets"`
	Smart      SmartConfig     `mapstructure:"smart"`
	Log        LogConfig       `mapstructure:"log"`
	Daemon     DaemonConfig    `mapstructure:"daemon"`
}

type AdsPowerConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	APIKey       string        `mapstructure:"api_key"`
	APIKeyRef    string        `mapstructure:"api_key_ref"`
	RatePerSec   float64       `mapstructure:"rate_per_sec"`
	StartRetries int           `mapstructure:"start_retries"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopRetries  int           `mapstructure:"stop_retries"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

type PacingConfig struct {
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	ActionDelayMin   time.Duration `mapstructure:"action_delay_min"`
	ActionDelayMax   time.Duration `mapstructure:"action_delay_max"`
	AccountDelayMin  time.Duration `mapstructure:"account_delay_min"`
	AccountDelayMax  time.Duration `mapstructure:"account_delay_max"`
	ExtraPauseChance float64       `mapstructure:"extra_pause_chance"`
	ExtraPauseMin    time.Duration `mapstructure:"extra_pause_min"`
	ExtraPauseMax    time.Duration `mapstructure:"extra_pause_max"`
}

type TimingConfig struct {
	TypingDelayMin    time.Duration `mapstructure:"typing_delay_min"`
	TypingDelayMax    time.Duration `mapstructure:"typing_delay_max"`
	AutocompleteWait  time.Duration `mapstructure:"autocomplete_wait"`
	CommandSubmitWait time.Duration `mapstructure:"command_submit_wait"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

type ExecutionConfig struct {
	Parallel             bool `mapstructure:"parallel"`
	MaxConcurrent        int  `mapstructure:"max_concurrent"`
	MaxActionsPerSession int  `mapstructure:"max_actions_per_session"`
	MaxActions           int  `mapstructure:"max_actions"`
}

// BlockingConfig turns off recording of new unauthorized and channel blocks.
// Accounts already on a block list stay skipped.
type BlockingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

type AccountsConfig struct {
	Path string `mapstructure:"path"`
}

// SecretsConfig locates the file fallback used when pass is unavailable.
type SecretsConfig struct {
	Dir string `mapstructure:"dir"`
}

type SheetsConfig struct {
	URL string `mapstructure:"url"`
}

// SmartConfig overrides persisted settings for smart runs; nil leaves them alone.
type SmartConfig struct {
	DailyLimit  *int `mapstructure:"daily_limit"`
	TargetBless *int `mapstructure:"target_bless"`
	TargetCurse *int `mapstructure:"target_curse"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type DaemonConfig struct {
	Cron string `mapstructure:"cron"`
}

// Dir is the default home for config, roster and state files.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

func SetDefaults(v *viper.Viper, baseDir string) {
	v.SetDefault("channel_url", "")
	v.SetDefault("adspower.api_key", "")
	v.SetDefault("adspower.api_key_ref", "adspower/api_key")
	v.SetDefault("adspower.api_url", "http://localhost:50325")
	v.SetDefault("adspower.rate_per_sec", 1.0)
	v.SetDefault("adspower.start_retries", 3)
	v.SetDefault("adspower.start_timeout", 30*time.Second)
	v.SetDefault("adspower.stop_retries", 2)
	v.SetDefault("adspower.stop_timeout", 15*time.Second)

	v.SetDefault("pacing.settle_delay", 5*time.Second)
	v.SetDefault("pacing.action_delay_min", 4*time.Second)
	v.SetDefault("pacing.action_delay_max", 7*time.Second)
	v.SetDefault("pacing.account_delay_min", 8*time.Second)
	v.SetDefault("pacing.account_delay_max", 15*time.Second)
	v.SetDefault("pacing.extra_pause_chance", 0.1)
	v.SetDefault("pacing.extra_pause_min", 20*time.Second)
	v.SetDefault("pacing.extra_pause_max", 60*time.Second)

	v.SetDefault("timing.typing_delay_min", 50*time.Millisecond)
	v.SetDefault("timing.typing_delay_max", 150*time.Millisecond)
	v.SetDefault("timing.autocomplete_wait", 2*time.Second)
	v.SetDefault("timing.command_submit_wait", 3*time.Second)
	v.SetDefault("timing.navigation_timeout", 45*time.Second)

	v.SetDefault("execution.parallel", false)
	v.SetDefault("execution.max_concurrent", 3)
	v.SetDefault("execution.max_actions_per_session", 0)
	v.SetDefault("execution.max_actions", 0)
	v.SetDefault("blocking.enabled", true)

	v.SetDefault("state.dir", baseDir)
	v.SetDefault("accounts.path", filepath.Join(baseDir, "accounts.toml"))
	v.SetDefault("secrets.dir", filepath.Join(baseDir, "secrets"))
	v.SetDefault("sheets.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("daemon.cron", "0 */6 * * *")
}

// Load reads the config file at path (or the default location when empty),
// layered under RITUAL_* environment variables. A missing default file is fine.
func Load(v *viper.Viper, path string) (Config, error) {
	baseDir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	SetDefaults(v, baseDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"smart.daily_limit", "smart.target_bless", "smart.target_curse"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(baseDir, FileName)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks what a run needs. Commands that never open a browser can
// skip it.
func (c Config) Validate() error {
	var errs []error

	channel := strings.TrimSpace(c.ChannelURL)
	switch {
	case channel == "":
		errs = append(errs, errors.New("channel_url is required"))
	case !strings.HasPrefix(channel, channelURLBase):
		errs = append(errs, fmt.Errorf("channel_url must start with %s", channelURLBase))
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"pacing.settle_delay", c.Pacing.SettleDelay},
		{"pacing.action_delay_min", c.Pacing.ActionDelayMin},
		{"pacing.account_delay_min", c.Pacing.AccountDelayMin},
		{"pacing.extra_pause_min", c.Pacing.ExtraPauseMin},
		{"timing.typing_delay_min", c.Timing.TypingDelayMin},
		{"timing.autocomplete_wait", c.Timing.AutocompleteWait},
		{"timing.command_submit_wait", c.Timing.CommandSubmitWait},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}

	for _, r := range []struct {
		name     string
		min, max time.Duration
	}{
		{"pacing.action_delay", c.Pacing.ActionDelayMin, c.Pacing.ActionDelayMax},
		{"pacing.account_delay", c.Pacing.AccountDelayMin, c.Pacing.AccountDelayMax},
		{"pacing.extra_pause", c.Pacing.ExtraPauseMin, c.Pacing.ExtraPauseMax},
		{"timing.typing_delay", c.Timing.TypingDelayMin, c.Timing.TypingDelayMax},
	} {
		if r.min > r.max {
			errs = append(errs, fmt.Errorf("%s: min %s exceeds max %s", r.name, r.min, r.max))
		}
	}

	if c.Pacing.ExtraPauseChance < 0 || c.Pacing.ExtraPauseChance > 1 {
		errs = append(errs, errors.New("pacing.extra_pause_chance must be between 0 and 1"))
	}
	if c.Execution.MaxConcurrent < 1 {
		errs = append(errs, errors.New("execution.max_concurrent must be at least 1"))
	}
	if c.Execution.MaxActions < 0 || c.Execution.MaxActionsPerSession < 0 {
		errs = append(errs, errors.New("execution limits must not be negative"))
	}
	if c.AdsPower.StartRetries < 1 || c.AdsPower.StopRetries < 1 {
		errs = append(errs, errors.New("adspower retries must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
