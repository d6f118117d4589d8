package config

// Option adjusts how Load and LoadClient locate their sources.
type Option func(*options)

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile reads path instead of the system config file. A missing
// file is then an error.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithEnvPrefix replaces the TANKCTL environment prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) { o.envPrefix = prefix }
}

// LogLevel is a configured log level name.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	}
	return false
}

func (l LogLevel) String() string {
	return string(l)
}
