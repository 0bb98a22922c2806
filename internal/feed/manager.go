package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockpulse/market-data/internal/config"
	"github.com/stockpulse/market-data/internal/model"
)

// Sink receives normalized records from the feed.
type Sink interface {
	HandleTrade(trade model.Trade)
	HandleBar(bar model.Bar)
}

// Manager sustains a single authenticated connection to the upstream feed
// and forwards normalized trades and bars to the sink. Connection loss is
// recovered with exponential backoff; authentication failure is fatal.
type Manager struct {
	cfg    config.UpstreamConfig
	sink   Sink
	logger *slog.Logger

	// dial is swapped out in tests.
	dial func(ctx context.Context) (Client, error)
}

// authTimeout bounds the wait for the upstream "authenticated" frame.
const authTimeout = 10 * time.Second

// NewManager creates a feed manager.
func NewManager(cfg config.UpstreamConfig, sink Sink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
	}
	m.dial = func(ctx context.Context) (Client, error) {
		clientCfg := ClientConfig{
			URL:          cfg.URL,
			IdleTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			BufferSize:   cfg.BufferSize,
		}
		c := NewClient(clientCfg, logger)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
	return m
}

// Run blocks until the context is cancelled or an unrecoverable error
// occurs. Authentication failures propagate; everything else reconnects.
func (m *Manager) Run(ctx context.Context) error {
	wait := m.cfg.ReconnectBaseDelay

	for {
		established, err := m.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthFailed) {
			return err
		}

		if established {
			wait = m.cfg.ReconnectBaseDelay
		}

		m.logger.Warn("feed session ended, reconnecting",
			"error", err,
			"wait", wait,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if wait > m.cfg.ReconnectMaxDelay {
			wait = m.cfg.ReconnectMaxDelay
		}
	}
}

// session runs one connection lifetime: connect, authenticate, subscribe,
// consume. Returns whether the session was fully established before the
// error occurred.
func (m *Manager) session(ctx context.Context) (bool, error) {
	client, err := m.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial upstream: %w", err)
	}
	defer client.Close()

	if err := m.authenticate(ctx, client); err != nil {
		return false, err
	}

	if err := m.subscribe(client); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	m.logger.Info("feed established",
		"url", m.cfg.URL,
		"symbols", len(m.cfg.Symbols),
	)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-client.Errors():
			return true, err
		case msg, ok := <-client.Messages():
			if !ok {
				return true, ErrNotConnected
			}
			m.handleMessage(msg.Data)
		}
	}
}

// authenticate sends the auth command and waits for confirmation. Control
// frames received while waiting are consumed here; an "error" frame at
// this stage is a credential rejection and is fatal.
func (m *Manager) authenticate(ctx context.Context, client Client) error {
	auth, err := json.Marshal(authRequest{
		Action: "auth",
		Key:    m.cfg.Key,
		Secret: m.cfg.Secret,
	})
	if err != nil {
		return fmt.Errorf("marshal auth request: %w", err)
	}
	if err := client.Send(auth); err != nil {
		return fmt.Errorf("send auth request: %w", err)
	}

	deadline := time.NewTimer(authTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("auth confirmation: %w", ErrTimeoutWaitingAuth)
		case err := <-client.Errors():
			return fmt.Errorf("connection during auth: %w", err)
		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}
			authed, err := classifyAuthFrames(msg.Data)
			if err != nil {
				return err
			}
			if authed {
				m.logger.Debug("upstream authenticated")
				return nil
			}
		}
	}
}

// ErrTimeoutWaitingAuth is returned when the upstream never confirms
// authentication. Treated as a transient failure (reconnect), unlike an
// explicit rejection.
var ErrTimeoutWaitingAuth = errors.New("timed out waiting for auth confirmation")

// classifyAuthFrames scans frames received during the auth handshake.
// Returns true once the "authenticated" success frame is seen.
func classifyAuthFrames(data []byte) (bool, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return false, nil // garbage during handshake is ignored
	}

	for _, raw := range frames {
		var ctrl controlFrame
		if err := json.Unmarshal(raw, &ctrl); err != nil {
			continue
		}
		switch ctrl.T {
		case "success":
			if ctrl.Msg == "authenticated" {
				return true, nil
			}
		case "error":
			return false, fmt.Errorf("%w: code=%d msg=%q", ErrAuthFailed, ctrl.Code, ctrl.Msg)
		}
	}
	return false, nil
}

// subscribe requests trades and bars for the configured symbols.
func (m *Manager) subscribe(client Client) error {
	req, err := json.Marshal(subscribeRequest{
		Action: "subscribe",
		Trades: m.cfg.Symbols,
		Bars:   m.cfg.Symbols,
	})
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	return client.Send(req)
}

// handleMessage normalizes one raw upstream message and forwards the
// resulting records to the sink. Malformed frames are logged and dropped.
func (m *Manager) handleMessage(data []byte) {
	frames, err := parseFrames(data)
	if err != nil {
		m.logger.Warn("unparseable upstream message", "error", err)
		return
	}

	for _, raw := range frames {
		kind, err := frameKind(raw)
		if err != nil {
			m.logger.Warn("frame missing discriminator", "error", err)
			continue
		}

		switch kind {
		case "t":
			trade, err := normalizeTrade(raw)
			if err != nil {
				m.logger.Warn("failed to normalize trade", "error", err)
				continue
			}
			m.sink.HandleTrade(trade)

		case "b":
			bar, err := normalizeBar(raw)
			if err != nil {
				m.logger.Warn("failed to normalize bar", "error", err)
				continue
			}
			m.sink.HandleBar(bar)

		case "success", "subscription":
			// Control frames: acknowledged, otherwise ignored.
			m.logger.Debug("control frame", "kind", kind)

		case "error":
			var ctrl controlFrame
			if err := json.Unmarshal(raw, &ctrl); err == nil {
				m.logger.Warn("upstream error frame", "code", ctrl.Code, "msg", ctrl.Msg)
			}

		default:
			m.logger.Debug("skipping unknown frame kind", "kind", kind)
		}
	}
}
