package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// FromEnv builds configuration purely from environment variables. Used when
// no config file is given, which is the normal deployment mode.
func FromEnv() *Config {
	cfg := &Config{
		Upstream: UpstreamConfig{
			URL:     os.Getenv("UPSTREAM_WS_URL"),
			Key:     os.Getenv("UPSTREAM_KEY"),
			Secret:  os.Getenv("UPSTREAM_SECRET"),
			Symbols: splitList(os.Getenv("SUBSCRIBED_SYMBOLS")),
		},
		Bus: BusConfig{
			Brokers: splitList(os.Getenv("BUS_BROKERS")),
		},
		Database: DBConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     os.Getenv("DB_HOST"),
			Port:     envInt("DB_PORT", 0),
			Name:     os.Getenv("DB_NAME"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
		},
		Redis: RedisConfig{
			URL:  os.Getenv("LOG_URL"),
			Host: os.Getenv("LOG_HOST"),
			Port: envInt("LOG_PORT", 0),
		},
		Writers: WritersConfig{
			BatchSize:     envInt("BATCH_SIZE", 0),
			FlushInterval: time.Duration(envInt("FLUSH_INTERVAL_MS", 0)) * time.Millisecond,
			HealthAddr:    os.Getenv("HEALTH_ADDR"),
		},
		Bridge: BridgeConfig{
			ConsumerName:    os.Getenv("CONSUMER_NAME"),
			BroadcastGlobal: envBool("BROADCAST_GLOBAL"),
		},
		Gateway: GatewayConfig{
			Addr:         os.Getenv("GATEWAY_ADDR"),
			RESTBaseURL:  os.Getenv("REST_BASE_URL"),
			CORSOrigins:  splitList(os.Getenv("CORS_ORIGINS")),
			MockRealtime: envBool("MOCK_REALTIME"),
		},
	}

	// Upper-case tickers at the boundary so the rest of the pipeline can
	// treat them as canonical.
	for i, s := range cfg.Upstream.Symbols {
		cfg.Upstream.Symbols[i] = strings.ToUpper(s)
	}

	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv loads from a file when path is non-empty, otherwise from the
// environment.
func LoadOrEnv(path string) (*Config, error) {
	if path == "" {
		return FromEnv(), nil
	}
	return Load(path)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
