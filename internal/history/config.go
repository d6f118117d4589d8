package history

import (
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/tankctl/history.db"

	DefaultCapacity         = 500
	DefaultVolatileCapacity = 50
	DefaultServe            = 50
	DefaultOpenTimeout      = 2 * time.Second
	DefaultOpTimeout        = 2 * time.Second
)

type Config struct {
	// Enabled selects the durable sqlite tier. When false, or when the
	// database cannot be used, readings live in memory only.
	Enabled bool
	DBPath  string

	// Capacity bounds the durable tier, VolatileCapacity the in-memory tier.
	Capacity         int
	VolatileCapacity int

	// Serve is how many of the newest readings observers receive.
	Serve int

	OpenTimeout time.Duration

	// OpTimeout bounds each durable call. Caller cancellation does not reach
	// the durable tier; only this deadline or a backend error degrades it.
	OpTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		DBPath:           defaultDBPath,
		Capacity:         DefaultCapacity,
		VolatileCapacity: DefaultVolatileCapacity,
		Serve:            DefaultServe,
		OpenTimeout:      DefaultOpenTimeout,
		OpTimeout:        DefaultOpTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if the durable tier is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.Capacity <= 0 || c.VolatileCapacity <= 0 || c.Serve <= 0 {
		return errFactory.WithData(ErrInvalidCapacity, struct {
			Capacity         int
			VolatileCapacity int
			Serve            int
		}{c.Capacity, c.VolatileCapacity, c.Serve})
	}
	return nil
}
