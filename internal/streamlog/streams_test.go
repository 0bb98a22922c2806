package streamlog

import (
	"testing"

	"github.com/stockpulse/market-data/internal/config"
)

func TestEntryFromValues(t *testing.T) {
	entry, err := entryFromValues("1-0", StreamTrades, map[string]interface{}{
		"symbol": "AAPL",
		"data":   `{"symbol":"AAPL","price":150.25,"type":"trade"}`,
	})
	if err != nil {
		t.Fatalf("entryFromValues() error = %v", err)
	}
	if entry.Symbol != "AAPL" {
		t.Errorf("Symbol = %q", entry.Symbol)
	}
	if entry.Stream != "market:realtime:trades" {
		t.Errorf("Stream = %q", entry.Stream)
	}
	if string(entry.Data) != `{"symbol":"AAPL","price":150.25,"type":"trade"}` {
		t.Errorf("Data = %s", entry.Data)
	}
}

func TestEntryFromValues_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing symbol", map[string]interface{}{"data": "{}"}},
		{"empty symbol", map[string]interface{}{"symbol": "  ", "data": "{}"}},
		{"missing data", map[string]interface{}{"symbol": "AAPL"}},
		{"wrong types", map[string]interface{}{"symbol": 42, "data": 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := entryFromValues("1-0", StreamTrades, tt.values); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewRedisClient_URLPrecedence(t *testing.T) {
	rdb, err := NewRedisClient(config.RedisConfig{
		URL:  "redis://cache.internal:6380/2",
		Host: "ignored",
		Port: 6379,
	})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer rdb.Close()

	opt := rdb.Options()
	if opt.Addr != "cache.internal:6380" {
		t.Errorf("Addr = %q, want cache.internal:6380", opt.Addr)
	}
	if opt.DB != 2 {
		t.Errorf("DB = %d, want 2", opt.DB)
	}
}

func TestNewRedisClient_TLSFromScheme(t *testing.T) {
	rdb, err := NewRedisClient(config.RedisConfig{URL: "rediss://cache.internal:6380"})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer rdb.Close()

	if rdb.Options().TLSConfig == nil {
		t.Error("rediss:// should imply TLS")
	}
}

func TestNewRedisClient_HostPort(t *testing.T) {
	rdb, err := NewRedisClient(config.RedisConfig{Host: "localhost", Port: 6379, DB: 1})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer rdb.Close()

	opt := rdb.Options()
	if opt.Addr != "localhost:6379" {
		t.Errorf("Addr = %q", opt.Addr)
	}
	if opt.DB != 1 {
		t.Errorf("DB = %d, want 1", opt.DB)
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient(config.RedisConfig{URL: "http://not-redis"}); err == nil {
		t.Error("expected error for non-redis scheme")
	}
}
