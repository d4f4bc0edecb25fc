// Package notify implements the local queue-depth notification channel.
//
// After every accepted frame the capture worker writes the current queue depth as
// decimal ASCII to a Unix stream socket. Messages carry no delimiter, so a reader
// may observe several depths concatenated in one read ("12" then "13" as "1213").
// The channel is advisory: consumers use it as a wake-up hint and poll the queue.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"firestige.xyz/arpfuzzer/internal/core"
)

const (
	DefaultSocket       = "/tmp/.arpfuzzer.uddsocket.server"
	DefaultAttempts     = 5
	DefaultBackoff      = time.Millisecond
	DefaultWriteTimeout = time.Second
)

// Config configures the notification client.
type Config struct {
	Socket       string
	Attempts     int           // Connect attempts before giving up
	Backoff      time.Duration // Delay after the first failed attempt, doubled per attempt
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Socket == "" {
		c.Socket = DefaultSocket
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// Channel is a connected notification client.
type Channel struct {
	conn         net.Conn
	socket       string
	writeTimeout time.Duration

	mu  sync.Mutex
	buf []byte
}

// Dial connects to cfg.Socket, retrying with exponential backoff up to cfg.Attempts times.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	cfg.applyDefaults()

	var d net.Dialer
	backoff := cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		conn, err := d.DialContext(ctx, "unix", cfg.Socket)
		if err == nil {
			slog.Debug("notification channel connected", "socket", cfg.Socket, "attempt", attempt)
			return &Channel{
				conn:         conn,
				socket:       cfg.Socket,
				writeTimeout: cfg.WriteTimeout,
				buf:          make([]byte, 0, 20),
			}, nil
		}
		lastErr = err
		if attempt == cfg.Attempts {
			break
		}

		slog.Debug("notification connect failed, retrying",
			"socket", cfg.Socket, "attempt", attempt, "backoff", backoff, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: connect %s: %w", core.ErrNotify, cfg.Socket, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("%w: connect %s after %d attempts: %w", core.ErrNotify, cfg.Socket, cfg.Attempts, lastErr)
}

// Notify writes depth as decimal ASCII.
func (c *Channel) Notify(depth int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf = strconv.AppendInt(c.buf[:0], int64(depth), 10)
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", core.ErrNotify, err)
	}
	if _, err := c.conn.Write(c.buf); err != nil {
		return fmt.Errorf("%w: write %s: %w", core.ErrNotify, c.socket, err)
	}
	return nil
}

// Close closes the connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}
