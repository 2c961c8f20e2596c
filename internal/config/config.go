package config

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/deckfanctl/internal/controller"
	"codeberg.org/mutker/deckfanctl/internal/ec"
	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"codeberg.org/mutker/deckfanctl/internal/metrics"
	"codeberg.org/mutker/deckfanctl/internal/pid"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/deckfanctl.toml"
	defaultEnvPrefix  = "DECKFANCTL"
	defaultInterval   = time.Second
	defaultMode       = "default"
	defaultLogLevel   = LogLevelWarning
	defaultFailures   = 3
)

type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	Mode     string        `mapstructure:"mode"`
	Monitor  bool          `mapstructure:"monitor"`
	LogLevel LogLevel      `mapstructure:"log_level"`
	Debug    bool          `mapstructure:"debug"`
	Verbose  bool          `mapstructure:"verbose"`
	PIDFile  string        `mapstructure:"pid_file"`
	// MaxFailures is the number of consecutive failed passes after which
	// fan control is handed back to the embedded controller.
	MaxFailures int `mapstructure:"max_failures"`

	Metrics     metrics.Config   `mapstructure:"metrics"`
	EC          ec.Config        `mapstructure:"ec"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Zones       []fan.ZoneConfig `mapstructure:"zones"`
	DirectFeeds []DirectFeed     `mapstructure:"direct_feeds"`
}

type TelemetryConfig struct {
	Hwmon bool `mapstructure:"hwmon"`
	NVML  bool `mapstructure:"nvml"`
}

// DirectFeed feeds a zone from a source outside the hardware topology.
type DirectFeed struct {
	Zone   string `mapstructure:"zone"`
	Source string `mapstructure:"source"`
}

// Loader reads configuration from a TOML file, the environment and flags,
// in increasing order of precedence.
type Loader struct {
	v     *viper.Viper
	flags *pflag.FlagSet
	opts  options
	mu    sync.Mutex
}

func NewLoader(opts ...Option) (*Loader, error) {
	o := options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
		}
	}

	l := &Loader{
		v:     viper.New(),
		flags: pflag.NewFlagSet("deckfanctl", pflag.ContinueOnError),
		opts:  o,
	}
	l.setDefaults()
	l.defineFlags()

	return l, nil
}

// Load parses args and reads every configuration source.
func Load(args []string, opts ...Option) (*Config, error) {
	l, err := NewLoader(opts...)
	if err != nil {
		return nil, err
	}

	return l.Load(args)
}

// Flags exposes the flag set, mainly for usage output.
func (l *Loader) Flags() *pflag.FlagSet {
	return l.flags
}

// ConfigFile returns the configuration file in use, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) Load(args []string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	errFactory := errors.New()

	if err := l.flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	for key, name := range flagKeys {
		if err := l.v.BindPFlag(key, l.flags.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	l.v.SetEnvPrefix(l.opts.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.readFile(); err != nil {
		return nil, err
	}

	return l.decode()
}

// Watch reloads the file on every change and hands valid results to
// callback. Invalid files are logged and ignored. Nothing is watched when
// no file was read.
func (l *Loader) Watch(ctx context.Context, callback func(*Config)) error {
	if l.v.ConfigFileUsed() == "" {
		return nil
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}

		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration change")
			return
		}

		logger.Debug().Str("file", e.Name).Str("op", e.Op.String()).Msg("Configuration reloaded")
		callback(cfg)
	})
	l.v.WatchConfig()

	return nil
}

func (l *Loader) readFile() error {
	errFactory := errors.New()

	path := l.opts.configPath
	explicit := path != ""
	if flagPath, _ := l.flags.GetString("config"); flagPath != "" {
		path, explicit = flagPath, true
	} else if envPath := l.v.GetString("config"); envPath != "" && !explicit {
		path, explicit = envPath, true
	}
	if path == "" {
		path = DefaultConfigPath
	}

	l.v.SetConfigFile(path)
	l.v.SetConfigType("toml")

	if err := l.v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			logger.Debug().Str("file", path).Msg("No configuration file, using defaults")
			l.v.SetConfigFile("")
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err).WithData(path)
	}

	return nil
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	if len(cfg.Zones) == 0 {
		cfg.Zones = fan.DefaultZones()
		if len(cfg.DirectFeeds) == 0 {
			cfg.DirectFeeds = DefaultDirectFeeds()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("interval", defaultInterval)
	l.v.SetDefault("mode", defaultMode)
	l.v.SetDefault("monitor", false)
	l.v.SetDefault("log_level", string(defaultLogLevel))
	l.v.SetDefault("debug", false)
	l.v.SetDefault("verbose", false)
	l.v.SetDefault("pid_file", pid.DefaultPath)
	l.v.SetDefault("max_failures", defaultFailures)

	m := metrics.DefaultConfig()
	l.v.SetDefault("metrics.enabled", m.Enabled)
	l.v.SetDefault("metrics.db_path", m.DBPath)
	l.v.SetDefault("metrics.backup_dir", m.BackupDir)
	l.v.SetDefault("metrics.batch_size", m.BatchSize)
	l.v.SetDefault("metrics.batch_timeout", m.BatchTimeout)

	e := ec.DefaultConfig()
	l.v.SetDefault("ec.hwmon_root", e.HwmonRoot)
	l.v.SetDefault("ec.driver", e.Driver)

	l.v.SetDefault("telemetry.hwmon", true)
	l.v.SetDefault("telemetry.nvml", false)
}

// flagKeys maps configuration keys to the flags overriding them.
var flagKeys = map[string]string{
	"interval":        "interval",
	"mode":            "mode",
	"monitor":         "monitor",
	"log_level":       "log-level",
	"debug":           "debug",
	"verbose":         "verbose",
	"pid_file":        "pid-file",
	"metrics.enabled": "metrics",
	"telemetry.nvml":  "nvml",
}

func (l *Loader) defineFlags() {
	f := l.flags
	f.String("config", "", "Configuration file (default "+DefaultConfigPath+")")
	f.Duration("interval", defaultInterval, "Time between sampling passes")
	f.String("mode", defaultMode, "Fan mode: default, assisted or max")
	f.Bool("monitor", false, "Only monitor temperatures and fan speed, never control the fan")
	f.String("log-level", string(defaultLogLevel), "Log level: debug, info, warning or error")
	f.Bool("debug", false, "Enable debugging mode")
	f.Bool("verbose", false, "Enable verbose logging")
	f.String("pid-file", pid.DefaultPath, "PID file")
	f.Bool("metrics", false, "Record pass history to the metrics database")
	f.Bool("nvml", false, "Read NVIDIA GPU temperatures through NVML")
}

// DefaultDirectFeeds feeds the default battery zone from the embedded controller.
func DefaultDirectFeeds() []DirectFeed {
	return []DirectFeed{{Zone: "Batt", Source: string(controller.SourceECBattery)}}
}

// Validate checks every field and builds the zone table once to verify curves.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.Wrap(errors.ErrInvalidInterval,
			&fieldError{field: "interval", value: c.Interval, reason: "must be positive"})
	}
	if _, err := fan.ParseMode(c.Mode); err != nil {
		return errFactory.Wrap(errors.ErrInvalidMode,
			&fieldError{field: "mode", value: c.Mode, reason: "must be default, assisted or max"})
	}
	if !LogLevel(strings.ToLower(string(c.LogLevel))).IsValid() {
		return errFactory.Wrap(errors.ErrInvalidLogLevel,
			&fieldError{field: "log_level", value: c.LogLevel, reason: "must be debug, info, warning or error"})
	}
	if c.MaxFailures < 0 {
		return errFactory.Wrap(errors.ErrInvalidConfig,
			&fieldError{field: "max_failures", value: c.MaxFailures, reason: "must not be negative"})
	}
	if !c.Telemetry.Hwmon && !c.Telemetry.NVML {
		return errFactory.Wrap(errors.ErrInvalidConfig,
			&fieldError{field: "telemetry", value: c.Telemetry, reason: "no telemetry provider enabled"})
	}
	if err := c.Metrics.Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if err := c.EC.Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if _, err := fan.NewRegistryFromConfig(c.Zones); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	zones := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		zones[strings.TrimSpace(z.ID)] = true
	}
	seen := make(map[string]bool, len(c.DirectFeeds))
	for i, f := range c.DirectFeeds {
		field := fmt.Sprintf("direct_feeds[%d]", i)
		if !zones[f.Zone] {
			return errFactory.Wrap(fan.ErrUnknownZone, &fieldError{field: field, value: f.Zone, reason: "unknown zone"})
		}
		if seen[f.Zone] {
			return errFactory.Wrap(errors.ErrInvalidConfig, &fieldError{field: field, value: f.Zone, reason: "zone fed twice"})
		}
		seen[f.Zone] = true
		if _, err := controller.ParseSource(f.Source); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	return nil
}

// FanMode returns the configured initial mode.
func (c *Config) FanMode() fan.Mode {
	mode, _ := fan.ParseMode(c.Mode)
	return mode
}

// Level returns the effective log level. Debug and Verbose take precedence
// over LogLevel.
func (c *Config) Level() logger.LogLevel {
	switch {
	case c.Debug:
		return logger.DebugLevel
	case c.Verbose:
		return logger.InfoLevel
	}

	level, err := logger.ParseLevel(string(c.LogLevel))
	if err != nil {
		return logger.WarnLevel
	}

	return level
}

// Feeds returns the direct feeds keyed by zone.
func (c *Config) Feeds() map[string]string {
	out := make(map[string]string, len(c.DirectFeeds))
	for _, f := range c.DirectFeeds {
		out[f.Zone] = f.Source
	}

	return out
}
