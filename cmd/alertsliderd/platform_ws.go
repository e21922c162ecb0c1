package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// bridgeConn is a request/response websocket connection to the platform
// bridge. One request is in flight at a time.
type bridgeConn struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration
	attempts    int
	retryDelay  time.Duration
}

func newBridgeConn(wsURL string, readTimeout time.Duration, attempts int, logger *slog.Logger) (*bridgeConn, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	return &bridgeConn{
		url:         wsURL,
		logger:      logger,
		readTimeout: readTimeout,
		attempts:    attempts,
		retryDelay:  500 * time.Millisecond,
	}, nil
}

func (c *bridgeConn) connectLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := d.Dial(c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// connectWithRetry must be called with mu held.
func (c *bridgeConn) connectWithRetry() error {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(c.retryDelay)
		}
		err := c.connectLocked()
		if err == nil {
			c.logger.Info("connected to platform bridge", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("platform bridge connection failed", "error", err, "attempt", attempt+1)
	}
	return fmt.Errorf("%w: connect after %d attempts: %v", ErrPlatform, c.attempts, lastErr)
}

// roundTrip writes v and returns the next message.
func (c *bridgeConn) roundTrip(v any) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.logger.Debug("platform bridge not connected; dialing")
		if err := c.connectWithRetry(); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("%w: write: %v", ErrPlatform, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	defer func() {
		if c.conn != nil {
			c.conn.SetReadDeadline(time.Time{})
		}
	}()

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("%w: read: %v", ErrPlatform, err)
	}
	return message, nil
}

func (c *bridgeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
