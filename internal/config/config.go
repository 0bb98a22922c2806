package config

import "time"

// Config is the root configuration shared by the pipeline binaries. Each
// binary validates only the sections it uses.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Bus      BusConfig      `yaml:"bus"`
	Database DBConfig       `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Writers  WritersConfig  `yaml:"writers"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// UpstreamConfig holds the market-data feed connection settings.
type UpstreamConfig struct {
	URL                string        `yaml:"url"`
	Key                string        `yaml:"key"`
	Secret             string        `yaml:"secret"`
	Symbols            []string      `yaml:"symbols"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// BusConfig holds the Kafka bus settings.
type BusConfig struct {
	Brokers []string `yaml:"brokers"`
}

// DBConfig holds the Postgres connection. URL takes precedence over the
// discrete fields when both are set.
type DBConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the per-stream log endpoint. URL takes precedence over
// host/port; TLS is implied by a rediss:// scheme.
type RedisConfig struct {
	URL  string `yaml:"url"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// WritersConfig holds stream-processor batching settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	HealthAddr    string        `yaml:"health_addr"`
}

// BridgeConfig holds fan-out bridge settings.
type BridgeConfig struct {
	ConsumerName    string        `yaml:"consumer_name"`
	BlockTimeout    time.Duration `yaml:"block_timeout"`
	BroadcastGlobal bool          `yaml:"broadcast_global"`
}

// GatewayConfig holds the client-facing WebSocket gateway settings.
type GatewayConfig struct {
	Addr          string        `yaml:"addr"`
	RESTBaseURL   string        `yaml:"rest_base_url"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	MockRealtime  bool          `yaml:"mock_realtime"`
	MockInterval  time.Duration `yaml:"mock_interval"`
	SendQueueSize int           `yaml:"send_queue_size"`
}
