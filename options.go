package nbmap

import "time"

const (
	defaultInitialCapacity = 4
	defaultReprobeLimit    = 17
	defaultBlockSize       = 1024 * 8
	defaultRetentionWindow = 30 * time.Second
)

// config collects the tunables New accepts through Option, following the
// same functional-options pattern as pb's MapOf (MapConfig / WithPresize /
// WithShrinkEnabled).
type config struct {
	initialCapacity uint32
	reprobeLimit    uint32
	blockSize       uint32
	retention       time.Duration
}

func defaultConfig() config {
	return config{
		initialCapacity: defaultInitialCapacity,
		reprobeLimit:    defaultReprobeLimit,
		blockSize:       defaultBlockSize,
		retention:       defaultRetentionWindow,
	}
}

// Option configures a Map at construction time.
type Option func(*config)

// WithInitialCapacity sets the slot count the map starts with, rounded up
// to the next power of two (minimum 1). The default is 4, matching
// nbhashmap.c's INITIAL_SIZE.
func WithInitialCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.initialCapacity = uint32(n)
		}
	}
}

// WithReprobeLimit sets how many consecutive occupied, non-matching slots a
// probe will visit before triggering a resize. The default is 17, matching
// nbhashmap.c's REPROBE_LIMIT.
func WithReprobeLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.reprobeLimit = uint32(n)
		}
	}
}

// WithBlockSize sets the chunk size a resize divides its zero- and
// copy-work passes into. The default is 8192, matching nbhashmap.c's
// BLOCK_SIZE.
func WithBlockSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.blockSize = uint32(n)
		}
	}
}

// WithRetentionWindow sets how long a superseded table is kept reachable
// after a resize before it becomes eligible for sweeping. The default is 30
// seconds, matching nbhashmap.c's hard-coded quiescence window.
func WithRetentionWindow(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.retention = d
		}
	}
}
