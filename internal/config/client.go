package config

import (
	"net/url"
	"strings"
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ClientConfig is the tankwatch configuration.
type ClientConfig struct {
	Server         string        `mapstructure:"server"`
	LogLevel       LogLevel      `mapstructure:"log_level"`
	SimIncrement   float64       `mapstructure:"sim_increment"`
	Grace          time.Duration `mapstructure:"grace"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	Capacity       float64       `mapstructure:"capacity"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("sim_increment", 0.5)
	v.SetDefault("grace", 3000*time.Millisecond)
	v.SetDefault("tick_interval", 500*time.Millisecond)
	v.SetDefault("capacity", 100.0)
	v.SetDefault("request_timeout", 5*time.Second)
}

func clientFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("tankwatch", pflag.ContinueOnError)
	fs.String("config", "", "Path to config file")
	fs.String("server", "http://localhost:8080", "tankctl base URL")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.Float64("sim-increment", 0.5, "Percentage added per local simulation tick")
	fs.Duration("grace", 3000*time.Millisecond, "How long to wait for the server before simulating")
	return fs
}

var clientFlagKeys = map[string]string{
	"server":        "server",
	"log-level":     "log_level",
	"sim-increment": "sim_increment",
	"grace":         "grace",
}

// LoadClient builds the tankwatch configuration. It shares the config file
// and environment prefix with the daemon.
func LoadClient(args []string, opts ...Option) (*ClientConfig, error) {
	errFactory := errors.New()

	v, err := newViper(args, clientFlags(), clientFlagKeys, setClientDefaults, opts)
	if err != nil {
		return nil, err
	}

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *ClientConfig) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "server must be an http(s) URL")
	}
	if c.Grace <= 0 || c.TickInterval <= 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}
	if c.SimIncrement <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sim_increment must be positive")
	}
	return nil
}

// WebsocketURL is the push endpoint on Server.
func (c *ClientConfig) WebsocketURL() string {
	u, err := url.Parse(c.Server)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}
