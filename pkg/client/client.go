// Package client provides a Go client for the WebSocket gateway. It
// dials the /ws endpoint, optionally subscribing to a topic pattern, and
// exchanges JSON payloads with the gateway.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds gateway client configuration.
type Config struct {
	// ServerURL is the gateway base URL, e.g. "http://localhost:8080".
	ServerURL string

	// ClientID identifies this connection at the gateway.
	ClientID string

	// Topic is the optional subscription pattern. Without one the
	// connection receives only broadcasts.
	Topic string

	// Token is an optional JWT access token.
	Token string

	// Timeout bounds the dial handshake and individual writes.
	Timeout time.Duration
}

// SetDefaults fills unset fields with safe defaults.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Client is a connection to the gateway's websocket endpoint.
type Client struct {
	config Config
	wsURL  *url.URL
	conn   *websocket.Conn
}

// NewClient creates a gateway client. Call Connect before sending.
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("ClientID is required")
	}

	base, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid ServerURL scheme %q", base.Scheme)
	}

	base.Path = "/ws"
	query := base.Query()
	query.Set("id", config.ClientID)
	if config.Topic != "" {
		query.Set("topic", config.Topic)
	}
	base.RawQuery = query.Encode()

	return &Client{config: config, wsURL: base}, nil
}

// Connect dials the gateway websocket endpoint.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.Timeout}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL.String(), header)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	c.conn = conn
	return nil
}

// Send publishes a payload through the gateway. A non-empty topic makes
// it a directed send; an empty topic a broadcast. The payload map is not
// mutated.
func (c *Client) Send(payload map[string]any, topic string) error {
	if c.conn == nil {
		return fmt.Errorf("client not connected - call Connect() first")
	}

	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	if topic != "" {
		msg["topic"] = topic
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Receive blocks for the next message delivered to this connection. The
// context deadline, when present, bounds the wait.
func (c *Client) Receive(ctx context.Context) (map[string]any, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("client not connected - call Connect() first")
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var msg map[string]any
	if err := c.conn.ReadJSON(&msg); err != nil {
		return nil, fmt.Errorf("receiving from gateway: %w", err)
	}
	return msg, nil
}

// Close performs the websocket closing handshake and releases the
// connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	deadline := time.Now().Add(c.config.Timeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.conn.Close()
	c.conn = nil
	return err
}
