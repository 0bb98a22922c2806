package config

import (
	"errors"
	"fmt"
)

// ValidateIngest checks the sections the ingest worker needs.
func (c *Config) ValidateIngest() error {
	if err := c.Upstream.validate(); err != nil {
		return err
	}
	return c.Bus.validate()
}

// ValidateProcessor checks the sections the stream processor needs.
func (c *Config) ValidateProcessor() error {
	if err := c.Bus.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Redis.validate(); err != nil {
		return err
	}
	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.FlushInterval <= 0 {
		return errors.New("writers.flush_interval must be positive")
	}
	return nil
}

// ValidateGateway checks the sections the gateway needs. In mock mode the
// per-stream log is not consumed, so Redis settings are not required.
func (c *Config) ValidateGateway() error {
	if c.Gateway.Addr == "" {
		return errors.New("gateway.addr is required")
	}
	if c.Gateway.SendQueueSize < 1 {
		return errors.New("gateway.send_queue_size must be >= 1")
	}
	if c.Gateway.MockRealtime {
		return nil
	}
	return c.Redis.validate()
}

func (u *UpstreamConfig) validate() error {
	if u.URL == "" {
		return errors.New("upstream.url is required")
	}
	if u.Key == "" || u.Secret == "" {
		return errors.New("upstream.key and upstream.secret are required")
	}
	if len(u.Symbols) == 0 {
		return errors.New("upstream.symbols must not be empty")
	}
	return nil
}

func (b *BusConfig) validate() error {
	if len(b.Brokers) == 0 {
		return errors.New("bus.brokers must not be empty")
	}
	return nil
}

func (db *DBConfig) validate() error {
	if db.URL != "" {
		return nil
	}
	if db.Host == "" {
		return errors.New("database.host is required")
	}
	if db.Name == "" {
		return errors.New("database.name is required")
	}
	if db.User == "" {
		return errors.New("database.user is required")
	}
	if db.Password == "" {
		return errors.New("database.password is required")
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)", db.MinConns, db.MaxConns)
	}
	return nil
}

func (r *RedisConfig) validate() error {
	if r.URL != "" {
		return nil
	}
	if r.Host == "" {
		return errors.New("redis.host or redis.url is required")
	}
	return nil
}
