package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

type TCPConfig struct {
	Addr string

	// ReconnectDelay is the minimum gap between dial attempts.
	ReconnectDelay time.Duration

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// TCP writes one CSV line per report to a collector. The connection is
// dialed lazily and re-dialed after a write error.
type TCP struct {
	cfg TCPConfig

	mu       sync.Mutex
	conn     net.Conn
	state    string
	lastErr  string
	lastDial time.Time
	lastSent time.Time
	count    uint64

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time
}

type TCPSnapshot struct {
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSentUTC string `json:"last_sent_utc,omitempty"`
	Lines       uint64 `json:"lines"`
}

func NewTCP(cfg TCPConfig) (*TCP, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tcp sink addr is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &TCP{cfg: cfg, state: "disconnected", dial: d.DialContext, now: time.Now}, nil
}

func (c *TCP) Name() string { return "tcp" }

func (c *TCP) Send(ctx context.Context, r Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
	}

	line := r.CSV() + "\n"
	_ = c.conn.SetWriteDeadline(c.now().Add(c.cfg.WriteTimeout))
	if _, err := c.conn.Write([]byte(line)); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.setStateLocked("disconnected", err.Error())
		return fmt.Errorf("tcp write: %w", err)
	}
	c.lastSent = c.now().UTC()
	c.count++
	return nil
}

func (c *TCP) connectLocked(ctx context.Context) error {
	now := c.now()
	if !c.lastDial.IsZero() && now.Sub(c.lastDial) < c.cfg.ReconnectDelay {
		return fmt.Errorf("tcp %s not connected (retry in %s)", c.cfg.Addr, c.cfg.ReconnectDelay-now.Sub(c.lastDial))
	}
	c.lastDial = now
	c.setStateLocked("connecting", "")
	conn, err := c.dial(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		c.setStateLocked("error", err.Error())
		return fmt.Errorf("tcp dial: %w", err)
	}
	c.conn = conn
	c.setStateLocked("connected", "")
	return nil
}

func (c *TCP) setStateLocked(state string, lastErr string) {
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == "connected" {
		c.lastErr = ""
	}
}

func (c *TCP) Snapshot() TCPSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := TCPSnapshot{
		Addr:      c.cfg.Addr,
		State:     c.state,
		LastError: c.lastErr,
		Lines:     c.count,
	}
	if !c.lastSent.IsZero() {
		out.LastSentUTC = c.lastSent.Format(time.RFC3339Nano)
	}
	return out
}

func (c *TCP) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked("stopped", "")
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
