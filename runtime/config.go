package runtime

import "time"

// Config enumerates the runtime's configuration options, per
// SPEC_FULL.md §6. Grounded on internal/runtime/runtime.go's
// RuntimeConfig+functional-options shape, extended from the
// teacher's {ChannelBufferSize, MaxConcurrentCalls, EnableMetrics}
// to the full set the spec calls out by name.
type Config struct {
	// DeactivationInterval is the idle duration after which a live
	// instance is eligible for reaping. Default: 5 minutes.
	DeactivationInterval time.Duration

	// RequestTimeout is the default deadline for unary Channel calls
	// that don't specify their own.
	RequestTimeout time.Duration

	// ReconnectBackoffCap is stored on Config but read by neither the
	// runtime nor any transport binding: httpgw.NewClient takes its own
	// reconnect cap, and the broker binding does not reconnect.
	ReconnectBackoffCap time.Duration

	// DiscoveryAggregateTimeout is stored on Config but not read by the
	// runtime; discovery.Ask takes its aggregation timeout as an
	// argument.
	DiscoveryAggregateTimeout time.Duration

	// DiscoveryMaxReplies is stored on Config but not read by the
	// runtime; discovery.Ask takes its reply cap as an argument.
	DiscoveryMaxReplies int

	// ReaperInterval is how often the idle-reaper scans the live
	// table. Independent of DeactivationInterval so tests can tick
	// fast against a short deactivation window.
	ReaperInterval time.Duration

	// DefaultInboxCapacity bounds new instances' inboxes unless their
	// AgentSpec overrides it. Zero means unbounded.
	DefaultInboxCapacity int

	// EnableMetrics toggles Prometheus instrumentation.
	EnableMetrics bool

	// EnableTracing gates no span: the runtime opens no spans of its
	// own, and transport/local opens its spans regardless of it.
	EnableTracing bool
}

// Option mutates a Config at construction time.
type Option func(*Config)

// DefaultConfig returns the configuration SPEC_FULL.md §6 lists as
// defaults, with reasonable values for the options left unspecified
// there.
func DefaultConfig() Config {
	return Config{
		DeactivationInterval:      5 * time.Minute,
		RequestTimeout:            30 * time.Second,
		ReconnectBackoffCap:       30 * time.Second,
		DiscoveryAggregateTimeout: 2 * time.Second,
		DiscoveryMaxReplies:       0,
		ReaperInterval:            10 * time.Second,
		DefaultInboxCapacity:      0,
		EnableMetrics:             true,
		EnableTracing:             true,
	}
}

func WithDeactivationInterval(d time.Duration) Option {
	return func(c *Config) { c.DeactivationInterval = d }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

func WithReconnectBackoffCap(d time.Duration) Option {
	return func(c *Config) { c.ReconnectBackoffCap = d }
}

func WithDiscoveryAggregateTimeout(d time.Duration) Option {
	return func(c *Config) { c.DiscoveryAggregateTimeout = d }
}

func WithDiscoveryMaxReplies(n int) Option {
	return func(c *Config) { c.DiscoveryMaxReplies = n }
}

func WithReaperInterval(d time.Duration) Option {
	return func(c *Config) { c.ReaperInterval = d }
}

func WithDefaultInboxCapacity(n int) Option {
	return func(c *Config) { c.DefaultInboxCapacity = n }
}

func WithMetrics(enabled bool) Option {
	return func(c *Config) { c.EnableMetrics = enabled }
}

func WithTracing(enabled bool) Option {
	return func(c *Config) { c.EnableTracing = enabled }
}
