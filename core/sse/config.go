package sse

import "time"

// Config holds live-event settings with environment variable support.
type Config struct {
	// BusURL selects the relay bus: redis://, rediss:// or postgres://.
	// Empty keeps broadcasting local to the process.
	BusURL string `env:"SSE_BUS_URL"`

	// Namespace isolates deployments sharing one bus, e.g. "myapp:prod:".
	Namespace string `env:"SSE_NAMESPACE"`

	// PGChannel is the LISTEN/NOTIFY channel used when BusURL is a Postgres URL.
	PGChannel string `env:"SSE_PG_CHANNEL" envDefault:"vibetuner_sse"`

	QueueSize int           `env:"SSE_QUEUE_SIZE" envDefault:"100"`
	KeepAlive time.Duration `env:"SSE_KEEPALIVE" envDefault:"30s"`

	ReconnectInitial time.Duration `env:"SSE_RECONNECT_INITIAL" envDefault:"500ms"`
	ReconnectMax     time.Duration `env:"SSE_RECONNECT_MAX" envDefault:"30s"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		PGChannel:        "vibetuner_sse",
		QueueSize:        DefaultQueueSize,
		KeepAlive:        DefaultKeepAlive,
		ReconnectInitial: defaultReconnectInitial,
		ReconnectMax:     defaultReconnectMax,
	}
}

// NewFromConfig creates a Service from configuration. The relay connector is
// not derived from BusURL here; pass it with WithConnector.
// Additional options override config values.
func NewFromConfig(cfg Config, opts ...Option) *Service {
	configOpts := make([]Option, 0, len(opts)+4)
	configOpts = append(configOpts, WithNamespace(cfg.Namespace))
	if cfg.QueueSize > 0 {
		configOpts = append(configOpts, WithQueueSize(cfg.QueueSize))
	}
	if cfg.KeepAlive > 0 {
		configOpts = append(configOpts, WithKeepAlive(cfg.KeepAlive))
	}
	if cfg.ReconnectInitial > 0 || cfg.ReconnectMax > 0 {
		configOpts = append(configOpts, WithRelayReconnect(cfg.ReconnectInitial, cfg.ReconnectMax))
	}
	configOpts = append(configOpts, opts...)
	return New(configOpts...)
}
