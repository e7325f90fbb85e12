package gateway

import "time"

const (
	defaultListenAddr        = ":8080"
	defaultDebounceMS        = 20
	defaultMaxBatchSize      = 256
	defaultMaxBackpressure   = 64 * 1024
	defaultSendQueueSize     = 512
	defaultIdleTimeoutS      = 120
	defaultWriteTimeoutMS    = 10000
	defaultHandshakeTimeoutS = 10
	defaultMessagesPerSecond = 100
)

// Config configures the websocket front of the gateway.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds.
	ListenAddr string `mapstructure:"listenAddr"`

	// JWTSecret verifies client tokens; AdminToken guards /admin endpoints.
	JWTSecret  string `mapstructure:"jwtSecret"`
	AdminToken string `mapstructure:"adminToken"`

	// DisableAnonymous rejects handshakes without a token instead of
	// minting an anonymous identity.
	DisableAnonymous bool `mapstructure:"disableAnonymous"`

	// DebounceMS is the batching window for outbound events.
	DebounceMS int `mapstructure:"debounceMs"`

	// MaxBatchSize flushes a batch early once this many events are pending.
	MaxBatchSize int `mapstructure:"maxBatchSize"`

	// MaxBackpressure is the outstanding byte budget per connection; above
	// it, batch flushes are deferred until the writer drains.
	MaxBackpressure int `mapstructure:"maxBackpressure"`

	// SendQueueSize is the per-session outbound frame queue capacity.
	SendQueueSize int `mapstructure:"sendQueueSize"`

	// IdleTimeoutS closes sessions with no inbound traffic.
	IdleTimeoutS int `mapstructure:"idleTimeoutS"`

	// WriteTimeoutMS bounds a single frame write.
	WriteTimeoutMS int `mapstructure:"writeTimeoutMs"`

	// HandshakeTimeoutS bounds the whole upgrade handshake.
	HandshakeTimeoutS int `mapstructure:"handshakeTimeoutS"`

	// MessagesPerSecond rate-limits inbound messages per session.
	MessagesPerSecond int `mapstructure:"messagesPerSecond"`
}

func (c *Config) fillDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = defaultDebounceMS
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	if c.MaxBackpressure <= 0 {
		c.MaxBackpressure = defaultMaxBackpressure
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.IdleTimeoutS <= 0 {
		c.IdleTimeoutS = defaultIdleTimeoutS
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = defaultWriteTimeoutMS
	}
	if c.HandshakeTimeoutS <= 0 {
		c.HandshakeTimeoutS = defaultHandshakeTimeoutS
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = defaultMessagesPerSecond
	}
}

func (c *Config) debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c *Config) writeTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

func (c *Config) idleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutS) * time.Second
}
