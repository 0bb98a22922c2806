package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
upstream:
  url: wss://feed.example.com/v2
  key: key-id
  secret: key-secret
  symbols: [AAPL, MSFT]
bus:
  brokers: [localhost:9092]
database:
  host: localhost
  name: market
  user: app
  password: ${TEST_DB_PASSWORD}
redis:
  host: localhost
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Password != "s3cret" {
		t.Errorf("Password = %q, want s3cret", cfg.Database.Password)
	}
	if cfg.Upstream.URL != "wss://feed.example.com/v2" {
		t.Errorf("URL = %q", cfg.Upstream.URL)
	}
	if len(cfg.Upstream.Symbols) != 2 {
		t.Errorf("Symbols = %v, want 2 entries", cfg.Upstream.Symbols)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("bus:\n  brokers: [localhost:9092]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Writers.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.Writers.BatchSize, DefaultBatchSize)
	}
	if cfg.Writers.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v, want %v", cfg.Writers.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Bridge.ConsumerName != "gateway-consumer" {
		t.Errorf("ConsumerName = %q, want gateway-consumer", cfg.Bridge.ConsumerName)
	}
	if cfg.Bridge.BlockTimeout != 2*time.Second {
		t.Errorf("BlockTimeout = %v, want 2s", cfg.Bridge.BlockTimeout)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Gateway.SendQueueSize != 1024 {
		t.Errorf("SendQueueSize = %d, want 1024", cfg.Gateway.SendQueueSize)
	}
	if got := cfg.Upstream.Symbols; len(got) != 3 || got[0] != "AAPL" {
		t.Errorf("default Symbols = %v", got)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("UPSTREAM_WS_URL", "wss://feed.example.com/v2")
	t.Setenv("UPSTREAM_KEY", "k")
	t.Setenv("UPSTREAM_SECRET", "s")
	t.Setenv("SUBSCRIBED_SYMBOLS", "aapl, msft ,googl")
	t.Setenv("BUS_BROKERS", "b1:9092,b2:9092")
	t.Setenv("DATABASE_URL", "postgres://app:pw@db:5432/market")
	t.Setenv("LOG_URL", "rediss://cache:6380/0")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("FLUSH_INTERVAL_MS", "500")
	t.Setenv("MOCK_REALTIME", "true")
	t.Setenv("BROADCAST_GLOBAL", "1")
	t.Setenv("CORS_ORIGINS", "https://app.example.com")

	cfg := FromEnv()

	if got := cfg.Upstream.Symbols; len(got) != 3 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("Symbols = %v, want upper-cased [AAPL MSFT GOOGL]", got)
	}
	if len(cfg.Bus.Brokers) != 2 {
		t.Errorf("Brokers = %v", cfg.Bus.Brokers)
	}
	if cfg.Database.URL == "" {
		t.Error("DATABASE_URL not picked up")
	}
	if cfg.Redis.URL != "rediss://cache:6380/0" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.Writers.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250", cfg.Writers.BatchSize)
	}
	if cfg.Writers.FlushInterval != 500*time.Millisecond {
		t.Errorf("FlushInterval = %v, want 500ms", cfg.Writers.FlushInterval)
	}
	if !cfg.Gateway.MockRealtime {
		t.Error("MockRealtime not set")
	}
	if !cfg.Bridge.BroadcastGlobal {
		t.Error("BroadcastGlobal not set")
	}
	if len(cfg.Gateway.CORSOrigins) != 1 {
		t.Errorf("CORSOrigins = %v", cfg.Gateway.CORSOrigins)
	}
}

func TestValidateIngest(t *testing.T) {
	cfg := FromEnv()
	cfg.Upstream.Key = ""
	cfg.Upstream.Secret = ""
	if err := cfg.ValidateIngest(); err == nil {
		t.Error("expected error for missing credentials")
	}

	cfg.Upstream.Key = "k"
	cfg.Upstream.Secret = "s"
	cfg.Bus.Brokers = nil
	if err := cfg.ValidateIngest(); err == nil {
		t.Error("expected error for missing brokers")
	}

	cfg.Bus.Brokers = []string{"localhost:9092"}
	if err := cfg.ValidateIngest(); err != nil {
		t.Errorf("ValidateIngest() error = %v", err)
	}
}

func TestValidateProcessorRequiresStore(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Bus.Brokers = []string{"localhost:9092"}
	cfg.Redis.Host = "localhost"

	if err := cfg.ValidateProcessor(); err == nil {
		t.Error("expected error for missing database settings")
	}

	cfg.Database.URL = "postgres://app:pw@db/market"
	if err := cfg.ValidateProcessor(); err != nil {
		t.Errorf("ValidateProcessor() error = %v", err)
	}
}

func TestValidateGatewayMockModeSkipsRedis(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if err := cfg.ValidateGateway(); err == nil {
		t.Error("expected error without redis settings")
	}

	cfg.Gateway.MockRealtime = true
	if err := cfg.ValidateGateway(); err != nil {
		t.Errorf("ValidateGateway() error = %v", err)
	}
}
