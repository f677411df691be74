package config

import (
	"net"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "EXCAVATORCTL"
	DefaultConfigPath = "/etc/excavatorctl.toml"
	DefaultLogLevel   = LogLevelWarning

	defaultAPIAddress     = "127.0.0.1:3456"
	defaultRequestTimeout = 5 * time.Second
	defaultPollInterval   = 30 * time.Second
	defaultTickInterval   = 10 * time.Second
	defaultBenchmarkGrace = 5 * time.Second
	defaultAlgorithm      = "daggerhashimoto"
)

// Config is the fully resolved configuration.
type Config struct {
	APIAddress      string                `mapstructure:"api_address"`
	RequestTimeout  time.Duration         `mapstructure:"request_timeout"`
	PollInterval    time.Duration         `mapstructure:"poll_interval"`
	TickInterval    time.Duration         `mapstructure:"tick_interval"`
	BenchmarkGrace  time.Duration         `mapstructure:"benchmark_grace"`
	MaxTicksEnabled bool                  `mapstructure:"max_ticks_enabled"`
	Algorithms      []string              `mapstructure:"algorithms"`
	Devices         []string              `mapstructure:"devices"`
	Tiers           map[string]TierConfig `mapstructure:"tiers"`
	LogLevel        string                `mapstructure:"log_level"`
	MetricsAddress  string                `mapstructure:"metrics_address"`
	Power           bool                  `mapstructure:"power"`
	PIDFile         string                `mapstructure:"pid_file"`
	WorkerPID       int                   `mapstructure:"worker_pid"`

	// Derived from LogLevel
	Debug   bool `mapstructure:"-"`
	Verbose bool `mapstructure:"-"`
}

// TierConfig overrides one benchmark tier.
type TierConfig struct {
	Duration time.Duration `mapstructure:"duration"`
	Ticks    int           `mapstructure:"ticks"`
}

var defaultTiers = map[string]TierConfig{
	"quick":    {Duration: 20 * time.Second, Ticks: 1},
	"standard": {Duration: 40 * time.Second, Ticks: 3},
	"precise":  {Duration: 60 * time.Second, Ticks: 9},
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"api-address":     "api_address",
	"request-timeout": "request_timeout",
	"poll-interval":   "poll_interval",
	"tick-interval":   "tick_interval",
	"benchmark-grace": "benchmark_grace",
	"max-ticks":       "max_ticks_enabled",
	"algorithms":      "algorithms",
	"devices":         "devices",
	"log-level":       "log_level",
	"metrics-address": "metrics_address",
	"power":           "power",
	"pid-file":        "pid_file",
	"worker-pid":      "worker_pid",
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the configuration file")
	fs.String("api-address", defaultAPIAddress, "Worker API address (host:port)")
	fs.Duration("request-timeout", defaultRequestTimeout, "Timeout for a single API request")
	fs.Duration("poll-interval", defaultPollInterval, "Wait between counter reset and read in the telemetry loop")
	fs.Duration("tick-interval", defaultTickInterval, "Benchmark tick period")
	fs.Duration("benchmark-grace", defaultBenchmarkGrace, "Extra time before a benchmark times out")
	fs.Bool("max-ticks", true, "Stop benchmarks once enough valid ticks were seen")
	fs.StringSlice("algorithms", []string{defaultAlgorithm}, "Algorithms the worker runs")
	fs.StringSlice("devices", nil, "Device UUIDs in worker index order")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("metrics-address", "", "Serve Prometheus metrics on this address")
	fs.Bool("power", true, "Read device power usage through NVML")
	fs.String("pid-file", "", "PID file path")
	fs.Int("worker-pid", 0, "PID of the running worker process")
}

// Load resolves the configuration from defaults, the config file,
// environment variables and the flags in fs, in increasing precedence.
// fs may be nil.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
		if o.configPath == "" {
			if flag := fs.Lookup("config"); flag != nil && flag.Changed {
				o.configPath = flag.Value.String()
			}
		}
	}

	if err := readConfigFile(v, o); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))
	config.Debug = config.LogLevel == string(LogLevelDebug)
	config.Verbose = config.Debug || config.LogLevel == string(LogLevelInfo)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_address", defaultAPIAddress)
	v.SetDefault("request_timeout", defaultRequestTimeout)
	v.SetDefault("poll_interval", defaultPollInterval)
	v.SetDefault("tick_interval", defaultTickInterval)
	v.SetDefault("benchmark_grace", defaultBenchmarkGrace)
	v.SetDefault("max_ticks_enabled", true)
	v.SetDefault("algorithms", []string{defaultAlgorithm})
	v.SetDefault("devices", []string{})
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("metrics_address", "")
	v.SetDefault("power", true)
	v.SetDefault("pid_file", "")
	v.SetDefault("worker_pid", 0)

	for name, tier := range defaultTiers {
		v.SetDefault("tiers."+name+".duration", tier.Duration)
		v.SetDefault("tiers."+name+".ticks", tier.Ticks)
	}
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	return nil
}

// readConfigFile reads an explicit file, then $<PREFIX>_CONFIG, then the
// default path. Only the default path may be missing.
func readConfigFile(v *viper.Viper, o options) error {
	errFactory := errors.New()

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err != nil {
			return nil
		}
		path = DefaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.New(errors.ErrInvalidLogLevel).WithData(c.LogLevel)
	}

	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"request_timeout", c.RequestTimeout},
		{"poll_interval", c.PollInterval},
		{"tick_interval", c.TickInterval},
	}
	for _, interval := range intervals {
		if interval.value <= 0 {
			return errFactory.New(errors.ErrInvalidInterval).WithData(interval.name + " must be positive")
		}
	}
	if c.BenchmarkGrace < 0 {
		return errFactory.New(errors.ErrInvalidInterval).WithData("benchmark_grace must not be negative")
	}

	if _, _, err := net.SplitHostPort(c.APIAddress); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if c.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddress); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	for name, tier := range c.Tiers {
		if tier.Duration <= 0 || tier.Ticks <= 0 {
			return errFactory.WithData(errors.ErrInvalidConfig, "tier "+name+" needs a positive duration and tick count")
		}
	}

	if c.WorkerPID < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "worker_pid must not be negative")
	}

	return nil
}

// MetricsEnabled reports whether a metrics endpoint is configured.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsAddress != ""
}
