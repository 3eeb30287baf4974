// Package config loads the YAML configuration for a deployable
// agentrt process: which transport binding to run, the runtime
// tuning options SPEC_FULL.md §6 enumerates, the ambient HTTP/
// observability surface, and the agent specs to register.
//
// Grounded on pkg/config/config.go's LoadConfig/SaveConfig/Validate
// shape and gopkg.in/yaml.v3 dependency, trimmed from the teacher's
// LLM-provider-key/vector-store fields down to this runtime's own
// options, with environment-variable fallback (AGENTRT_BROKER_ADDR,
// AGENTRT_GATEWAY_URL, AGENTRT_REDIS_URL) for the broker dial address,
// gateway client URL and Redis URL, the way the teacher falls back to
// OPENAI_API_KEY etc.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/agentrt/runtime"
)

// Config is the top-level shape of a process's config file.
type Config struct {
	// Transport selects which binding this process runs: "local",
	// "httpgw", or "broker". Default: "local".
	Transport string `yaml:"transport"`

	HTTPGateway HTTPGatewayConfig `yaml:"http_gateway"`
	Broker      BrokerConfig      `yaml:"broker"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Server      ServerConfig      `yaml:"server"`
	Session     SessionConfig     `yaml:"session"`

	// Agents declares which built-in orchestration agents to register
	// at startup, beyond whatever a process's own main registers in
	// code. Keyed by the registered name.
	Agents map[string]AgentConfig `yaml:"agents"`
}

// HTTPGatewayConfig configures the httpgw binding.
type HTTPGatewayConfig struct {
	// ListenAddr is used when this process hosts the gateway Server.
	ListenAddr string `yaml:"listen_addr"`
	// ClientBaseURL is used when this process reaches a gateway as a
	// Client instead of hosting it.
	ClientBaseURL string `yaml:"client_base_url"`
}

// BrokerConfig configures the gRPC broker binding.
type BrokerConfig struct {
	// ListenAddr is used when this process hosts the broker Server.
	ListenAddr string `yaml:"listen_addr"`
	// DialAddr is used when this process reaches a broker as a
	// Transport client instead of hosting it.
	DialAddr string `yaml:"dial_addr"`
}

// RuntimeConfig mirrors runtime.Config's fields at the YAML layer;
// ToOptions converts it into the runtime.Option values runtime.New
// expects.
type RuntimeConfig struct {
	DeactivationInterval      time.Duration `yaml:"deactivation_interval"`
	RequestTimeout            time.Duration `yaml:"request_timeout"`
	ReconnectBackoffCap       time.Duration `yaml:"reconnect_backoff_cap"`
	DiscoveryAggregateTimeout time.Duration `yaml:"discovery_aggregate_timeout"`
	DiscoveryMaxReplies       int           `yaml:"discovery_max_replies"`
	ReaperInterval            time.Duration `yaml:"reaper_interval"`
	DefaultInboxCapacity      int           `yaml:"default_inbox_capacity"`
	EnableMetrics             *bool         `yaml:"enable_metrics"`
	EnableTracing             *bool         `yaml:"enable_tracing"`
}

// ServerConfig configures the ambient HTTP surface (health, metrics).
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// SessionConfig configures the session package's storage backend.
type SessionConfig struct {
	// Backend selects "memory" or "redis". Default: "memory".
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// AgentConfig declares a registration for a built-in orchestration
// agent; the exact fields a given agent kind consults are looked up
// by name from Settings (mirroring the teacher's own loosely-typed
// AgentConfig.Settings map).
type AgentConfig struct {
	Kind     string                 `yaml:"kind"` // "sequential" or "parallel"; cmd/agentrtd rejects any other kind
	Settings map[string]interface{} `yaml:"settings"`
}

// Load reads and parses the YAML file at path, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if cfg.Broker.DialAddr == "" {
		cfg.Broker.DialAddr = os.Getenv("AGENTRT_BROKER_ADDR")
	}
	if cfg.HTTPGateway.ClientBaseURL == "" {
		cfg.HTTPGateway.ClientBaseURL = os.Getenv("AGENTRT_GATEWAY_URL")
	}
	if cfg.Session.RedisURL == "" {
		cfg.Session.RedisURL = os.Getenv("AGENTRT_REDIS_URL")
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = "local"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = time.Hour
	}
	if c.Runtime.ReaperInterval == 0 {
		c.Runtime.ReaperInterval = 10 * time.Second
	}
}

// ToOptions converts the YAML-level RuntimeConfig into the
// runtime.Option values runtime.New expects, leaving any zero-valued
// duration/count field at runtime.DefaultConfig's value rather than
// overriding it with a meaningless zero.
func (rc RuntimeConfig) ToOptions() []runtime.Option {
	var opts []runtime.Option
	if rc.DeactivationInterval != 0 {
		opts = append(opts, runtime.WithDeactivationInterval(rc.DeactivationInterval))
	}
	if rc.RequestTimeout != 0 {
		opts = append(opts, runtime.WithRequestTimeout(rc.RequestTimeout))
	}
	if rc.ReconnectBackoffCap != 0 {
		opts = append(opts, runtime.WithReconnectBackoffCap(rc.ReconnectBackoffCap))
	}
	if rc.DiscoveryAggregateTimeout != 0 {
		opts = append(opts, runtime.WithDiscoveryAggregateTimeout(rc.DiscoveryAggregateTimeout))
	}
	if rc.DiscoveryMaxReplies != 0 {
		opts = append(opts, runtime.WithDiscoveryMaxReplies(rc.DiscoveryMaxReplies))
	}
	if rc.ReaperInterval != 0 {
		opts = append(opts, runtime.WithReaperInterval(rc.ReaperInterval))
	}
	if rc.DefaultInboxCapacity != 0 {
		opts = append(opts, runtime.WithDefaultInboxCapacity(rc.DefaultInboxCapacity))
	}
	if rc.EnableMetrics != nil {
		opts = append(opts, runtime.WithMetrics(*rc.EnableMetrics))
	}
	if rc.EnableTracing != nil {
		opts = append(opts, runtime.WithTracing(*rc.EnableTracing))
	}
	return opts
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks internal consistency that YAML unmarshaling alone
// can't enforce.
func (c *Config) Validate() error {
	switch c.Transport {
	case "local", "httpgw", "broker":
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Transport == "broker" && c.Broker.ListenAddr == "" && c.Broker.DialAddr == "" {
		return fmt.Errorf("config: broker transport needs broker.listen_addr or broker.dial_addr")
	}
	if c.Transport == "httpgw" && c.HTTPGateway.ListenAddr == "" && c.HTTPGateway.ClientBaseURL == "" {
		return fmt.Errorf("config: httpgw transport needs http_gateway.listen_addr or http_gateway.client_base_url")
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	return nil
}
