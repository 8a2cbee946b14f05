package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel      = "info"
	DefaultListen        = "127.0.0.1:7412"
	DefaultConfigName    = "perfd"
	DefaultConfigDir     = "/etc"
	DefaultEnvPrefix     = "PERFD"
	DefaultProbeInterval = 10 * time.Second
	DefaultHistoryDB     = "/var/lib/perfd/history.db"
	DefaultBatchSize     = 32
	DefaultBatchTimeout  = 5 * time.Second

	configEnv = "PERFD_CONFIG"
)

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type Config struct {
	LogLevel          string        `mapstructure:"log_level"`
	Listen            string        `mapstructure:"listen"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	PublishThrottle   time.Duration `mapstructure:"publish_throttle"`
	FrameWindow       int           `mapstructure:"frame_window"`
	LatencyWindow     int           `mapstructure:"latency_window"`
	SlowLatency       time.Duration `mapstructure:"slow_latency"`
	SpikeLatency      time.Duration `mapstructure:"spike_latency"`
	ConsecutiveIssues int           `mapstructure:"consecutive_issues"`
	InitialMode       string        `mapstructure:"initial_mode"`
	NetworkClass      string        `mapstructure:"network_class"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval"`
	SysfsRoot         string        `mapstructure:"sysfs_root"`
	ProcfsRoot        string        `mapstructure:"procfs_root"`
	GPUProbe          bool          `mapstructure:"gpu_probe"`
	PIDFile           string        `mapstructure:"pid_file"`
	History           HistoryConfig `mapstructure:"history"`

	v *viper.Viper
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":             "log_level",
	"listen":                "listen",
	"tick-interval":         "tick_interval",
	"initial-delay":         "initial_delay",
	"cooldown":              "cooldown",
	"publish-throttle":      "publish_throttle",
	"consecutive-issues":    "consecutive_issues",
	"initial-mode":          "initial_mode",
	"network-class":         "network_class",
	"gpu-probe":             "gpu_probe",
	"pid-file":              "pid_file",
	"history":               "history.enabled",
	"history-db":            "history.db",
	"history-batch-size":    "history.batch_size",
	"history-batch-timeout": "history.batch_timeout",
}

// RegisterFlags defines the command-line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("listen", DefaultListen, "Address of the telemetry and metrics listener")
	fs.Duration("tick-interval", perf.DefaultTickInterval, "Interval between controller evaluations")
	fs.Duration("initial-delay", perf.DefaultInitialDelay, "Delay before the first evaluation of a session")
	fs.Duration("cooldown", perf.DefaultCooldown, "Minimum time between two mode changes")
	fs.Duration("publish-throttle", perf.DefaultPublishThrottle, "Minimum time between frame rate publishes")
	fs.Int("consecutive-issues", perf.DefaultConsecutiveIssues, "Evaluations suggesting a lower tier before degrading")
	fs.String("initial-mode", perf.ModeAuto.String(), "Mode selected when a session starts")
	fs.String("network-class", "", "Effective network type of this host (slow-2g, 2g, 3g, 4g)")
	fs.Bool("gpu-probe", false, "Read memory pressure from the NVIDIA GPU when available")
	fs.String("pid-file", DefaultPIDFile(), "Path of the PID file guarding against a second instance")
	fs.Bool("history", false, "Record mode changes to the history database")
	fs.String("history-db", DefaultHistoryDB, "Path to the history database")
	fs.Int("history-batch-size", DefaultBatchSize, "Records buffered before a history flush")
	fs.Duration("history-batch-timeout", DefaultBatchTimeout, "Maximum time between history flushes")
}

func DefaultPIDFile() string {
	return filepath.Join(os.TempDir(), "perfd.pid")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("tick_interval", perf.DefaultTickInterval)
	v.SetDefault("initial_delay", perf.DefaultInitialDelay)
	v.SetDefault("cooldown", perf.DefaultCooldown)
	v.SetDefault("publish_throttle", perf.DefaultPublishThrottle)
	v.SetDefault("frame_window", perf.DefaultFrameWindow)
	v.SetDefault("latency_window", perf.DefaultLatencyWindow)
	v.SetDefault("slow_latency", perf.DefaultSlowLatency)
	v.SetDefault("spike_latency", perf.DefaultSpikeLatency)
	v.SetDefault("consecutive_issues", perf.DefaultConsecutiveIssues)
	v.SetDefault("initial_mode", perf.ModeAuto.String())
	v.SetDefault("network_class", "")
	v.SetDefault("probe_interval", DefaultProbeInterval)
	v.SetDefault("sysfs_root", "/sys")
	v.SetDefault("procfs_root", "/proc")
	v.SetDefault("gpu_probe", false)
	v.SetDefault("pid_file", DefaultPIDFile())
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db", DefaultHistoryDB)
	v.SetDefault("history.batch_size", DefaultBatchSize)
	v.SetDefault("history.batch_timeout", DefaultBatchTimeout)
}

// Load reads the configuration from defaults, the config file, the
// environment and fs, in increasing order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed && o.configPath == "" {
			o.configPath = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrBindFlags, err)
				}
			}
		}
	}

	if o.configPath == "" {
		o.configPath = os.Getenv(configEnv)
	}

	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(DefaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field string, value any, reason string) {
		errs = append(errs, &fieldError{field: field, value: value, reason: reason})
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		add("log_level", c.LogLevel, string(errors.ErrInvalidLogLevel))
	}
	if c.TickInterval <= 0 {
		add("tick_interval", c.TickInterval, string(errors.ErrInvalidInterval))
	}
	if c.InitialDelay < 0 {
		add("initial_delay", c.InitialDelay, string(errors.ErrInvalidInterval))
	}
	if c.Cooldown < 0 {
		add("cooldown", c.Cooldown, string(errors.ErrInvalidInterval))
	}
	if c.PublishThrottle < 0 {
		add("publish_throttle", c.PublishThrottle, string(errors.ErrInvalidInterval))
	}
	if c.ProbeInterval <= 0 {
		add("probe_interval", c.ProbeInterval, string(errors.ErrInvalidInterval))
	}
	if c.FrameWindow < 1 {
		add("frame_window", c.FrameWindow, "must be at least 1")
	}
	if c.LatencyWindow < 1 {
		add("latency_window", c.LatencyWindow, "must be at least 1")
	}
	if c.ConsecutiveIssues < 1 {
		add("consecutive_issues", c.ConsecutiveIssues, "must be at least 1")
	}
	if c.SlowLatency <= 0 {
		add("slow_latency", c.SlowLatency, "must be positive")
	}
	if c.SpikeLatency <= 0 {
		add("spike_latency", c.SpikeLatency, "must be positive")
	}
	if _, err := perf.ParseMode(c.InitialMode); err != nil {
		add("initial_mode", c.InitialMode, string(errors.ErrInvalidMode))
	}
	switch c.NetworkClass {
	case "", perf.NetworkSlow2G, perf.Network2G, perf.Network3G, perf.Network4G:
	default:
		add("network_class", c.NetworkClass, "unknown network class")
	}
	if c.PIDFile == "" {
		add("pid_file", c.PIDFile, "must not be empty")
	}
	if c.History.Enabled {
		if c.History.DBPath == "" {
			add("history.db", c.History.DBPath, "required when history is enabled")
		}
		if c.History.BatchSize < 1 {
			add("history.batch_size", c.History.BatchSize, "must be at least 1")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Policy returns the controller policy described by the configuration.
func (c *Config) Policy() perf.Policy {
	return perf.Policy{
		Cooldown:          c.Cooldown,
		TickInterval:      c.TickInterval,
		InitialDelay:      c.InitialDelay,
		ConsecutiveIssues: c.ConsecutiveIssues,
		SlowLatency:       c.SlowLatency,
		SpikeLatency:      c.SpikeLatency,
	}
}

// Sampler returns the sampler sizing described by the configuration.
func (c *Config) Sampler() perf.SamplerConfig {
	return perf.SamplerConfig{
		FrameWindow:     c.FrameWindow,
		LatencyWindow:   c.LatencyWindow,
		PublishThrottle: c.PublishThrottle,
		SlowLatency:     c.SlowLatency,
	}
}

// Mode returns the parsed initial mode. Validate guarantees it parses.
func (c *Config) Mode() perf.Mode {
	m, err := perf.ParseMode(c.InitialMode)
	if err != nil {
		return perf.ModeAuto
	}
	return m
}

// ConfigFile returns the path of the file the configuration was read from.
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch calls fn with the reloaded configuration whenever the config file
// changes. Reloads that fail validation are passed to onError and skipped.
// Watch returns once ctx is done.
func (c *Config) Watch(ctx context.Context, fn func(*Config), onError func(error)) error {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return errors.New().WithMessage(errors.ErrInvalidConfig, "no config file to watch")
	}

	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		cfg, err := decode(c.v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		fn(cfg)
	})
	c.v.WatchConfig()

	<-ctx.Done()
	return nil
}
