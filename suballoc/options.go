package suballoc

import (
	"log/slog"
	"time"
)

// Option configures a Manager.
type Option func(*config)

type config struct {
	name            string
	log             *slog.Logger
	backing         []byte
	reclaimInterval time.Duration
}

// WithName labels the manager in logs and diagnostics.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger sets the logger. Default: logger.L.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithBacking attaches the memory that the managed range describes, so
// Suballocation.Bytes can return the sub-slice for each range. The buffer
// must be at least as large as the managed range.
func WithBacking(buf []byte) Option {
	return func(c *config) { c.backing = buf }
}

// WithBackgroundReclaim starts a goroutine that drains the idle list every
// interval, so deferred frees are reclaimed even when nobody allocates.
// A zero or negative interval disables it (the default).
func WithBackgroundReclaim(interval time.Duration) Option {
	return func(c *config) { c.reclaimInterval = interval }
}
