package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "TANKCTL"
	DefaultConfigFile = "/etc/tankctl.toml"
	DefaultLogLevel   = LogLevelInfo
)

type HistoryConfig struct {
	Capacity         int `mapstructure:"capacity"`
	VolatileCapacity int `mapstructure:"volatile_capacity"`
	Serve            int `mapstructure:"serve"`
}

type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type KafkaConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	Group       string        `mapstructure:"group"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// Config is the tankctl daemon configuration.
type Config struct {
	Listen       string        `mapstructure:"listen"`
	LogLevel     LogLevel      `mapstructure:"log_level"`
	PIDFile      string        `mapstructure:"pidfile"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	SimIncrement float64       `mapstructure:"sim_increment"`
	Capacity     float64       `mapstructure:"capacity"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`

	History HistoryConfig `mapstructure:"history"`
	Storage StorageConfig `mapstructure:"storage"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("pidfile", "")
	v.SetDefault("tick_interval", 500*time.Millisecond)
	v.SetDefault("stale_after", 3000*time.Millisecond)
	v.SetDefault("sim_increment", 2.0)
	v.SetDefault("capacity", 100.0)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("history.capacity", 500)
	v.SetDefault("history.volatile_capacity", 50)
	v.SetDefault("history.serve", 50)
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.path", "/var/lib/tankctl/history.db")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "tank.readings")
	v.SetDefault("kafka.group", "tankctl")
	v.SetDefault("kafka.poll_timeout", 5*time.Second)
}

func serverFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("tankctl", pflag.ContinueOnError)
	fs.String("config", "", "Path to config file")
	fs.String("listen", ":8080", "HTTP listen address")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("pidfile", "", "PID file path")
	fs.Duration("tick-interval", 500*time.Millisecond, "Simulation tick interval")
	fs.Duration("stale-after", 3000*time.Millisecond, "Age after which sensor data counts as stale")
	fs.Float64("sim-increment", 2.0, "Percentage added per simulation tick")
	fs.Float64("capacity", 100.0, "Tank capacity in level units")
	fs.Int("history-capacity", 500, "Readings kept in durable storage")
	fs.Int("history-serve", 50, "Readings sent to observers")
	fs.Bool("storage", true, "Persist readings to sqlite")
	fs.String("storage-path", "/var/lib/tankctl/history.db", "Sqlite database path")
	fs.Bool("kafka", false, "Consume sensor readings from Kafka")
	fs.StringSlice("kafka-brokers", []string{"localhost:9092"}, "Kafka brokers")
	return fs
}

var serverFlagKeys = map[string]string{
	"listen":           "listen",
	"log-level":        "log_level",
	"pidfile":          "pidfile",
	"tick-interval":    "tick_interval",
	"stale-after":      "stale_after",
	"sim-increment":    "sim_increment",
	"capacity":         "capacity",
	"history-capacity": "history.capacity",
	"history-serve":    "history.serve",
	"storage":          "storage.enabled",
	"storage-path":     "storage.path",
	"kafka":            "kafka.enabled",
	"kafka-brokers":    "kafka.brokers",
}

// Load builds the daemon configuration from defaults, the config file,
// TANKCTL_* environment variables and args, in increasing precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	v, err := newViper(args, serverFlags(), serverFlagKeys, setServerDefaults, opts)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Listen == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "listen address is required")
	}
	if c.TickInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.TickInterval)
	}
	if c.StaleAfter <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.StaleAfter)
	}
	if c.SimIncrement <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sim_increment must be positive")
	}
	if c.Capacity <= 0 {
		return errFactory.WithData(errors.ErrInvalidCapacity, c.Capacity)
	}
	if c.History.Capacity <= 0 || c.History.VolatileCapacity <= 0 || c.History.Serve <= 0 {
		return errFactory.WithData(errors.ErrInvalidCapacity, c.History)
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "storage.path is required when storage is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errFactory.WithMessage(errors.ErrMissingConfig, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

// newViper wires defaults, the optional config file, environment and
// command line flags into a fresh viper instance.
func newViper(
	args []string,
	fs *pflag.FlagSet,
	flagKeys map[string]string,
	defaults func(*viper.Viper),
	opts []Option,
) (*viper.Viper, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(o)
	}

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path, explicit := configPath(fs, o)
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		// Only the system default may be missing.
		if explicit || !os.IsNotExist(err) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return v, nil
}

// configPath resolves the config file: --config, then <PREFIX>_CONFIG,
// then the option, then the system default which may be absent.
func configPath(fs *pflag.FlagSet, o *options) (string, bool) {
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), true
	}
	if p := os.Getenv(o.envPrefix + "_CONFIG"); p != "" {
		return p, true
	}
	if o.configPath != "" {
		return o.configPath, true
	}
	return DefaultConfigFile, false
}
