package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one open page. It only receives; anything the browser sends
// closes the connection.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	topics map[string]bool
	send   chan []byte
}

// NewClient ties conn to hub. With no topics the page gets every message.
func NewClient(hub *Hub, conn *ws.Conn, topics []string) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	if len(topics) > 0 {
		c.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			c.topics[t] = true
		}
	}
	return c
}

func (c *Client) subscribed(entity string) bool {
	return c.topics == nil || c.topics[entity]
}

// Run serves the connection until the page goes away or ctx ends.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)
	defer c.conn.CloseNow()

	if err := c.push(c.conn.CloseRead(ctx)); err != nil {
		c.hub.logger.Debug("websocket closed", "error", err)
	}
}

// push writes queued messages and keeps the connection alive with pings.
func (c *Client) push(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := c.write(ctx, data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, data)
}
