package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultUpstreamURL        = "wss://stream.data.alpaca.markets/v2/iex"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultFeedBufferSize     = 10000

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultRedisPort = 6379

	DefaultBatchSize     = 100
	DefaultFlushInterval = 1 * time.Second
	DefaultHealthAddr    = ":8081"

	DefaultConsumerName = "gateway-consumer"
	DefaultBlockTimeout = 2 * time.Second

	DefaultGatewayAddr   = ":8080"
	DefaultMockInterval  = 3 * time.Second
	DefaultSendQueueSize = 1024
)

// DefaultSymbols is the fallback subscription list when none is configured.
var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL"}

func (c *Config) applyDefaults() {
	// Upstream defaults
	if c.Upstream.URL == "" {
		c.Upstream.URL = DefaultUpstreamURL
	}
	if len(c.Upstream.Symbols) == 0 {
		c.Upstream.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if c.Upstream.ReconnectBaseDelay == 0 {
		c.Upstream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Upstream.ReconnectMaxDelay == 0 {
		c.Upstream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Upstream.ReadTimeout == 0 {
		c.Upstream.ReadTimeout = DefaultReadTimeout
	}
	if c.Upstream.WriteTimeout == 0 {
		c.Upstream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Upstream.BufferSize == 0 {
		c.Upstream.BufferSize = DefaultFeedBufferSize
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Redis defaults
	if c.Redis.Port == 0 {
		c.Redis.Port = DefaultRedisPort
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.HealthAddr == "" {
		c.Writers.HealthAddr = DefaultHealthAddr
	}

	// Bridge defaults
	if c.Bridge.ConsumerName == "" {
		c.Bridge.ConsumerName = DefaultConsumerName
	}
	if c.Bridge.BlockTimeout == 0 {
		c.Bridge.BlockTimeout = DefaultBlockTimeout
	}

	// Gateway defaults
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = DefaultGatewayAddr
	}
	if c.Gateway.MockInterval == 0 {
		c.Gateway.MockInterval = DefaultMockInterval
	}
	if c.Gateway.SendQueueSize == 0 {
		c.Gateway.SendQueueSize = DefaultSendQueueSize
	}
}
