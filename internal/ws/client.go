package ws

import (
	"log/slog"

	"github.com/gorilla/websocket"
)

// Client delivers a run's event stream over a websocket connection. Each
// broadcast payload is one stored run event as JSON.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient wraps an upgraded connection as a hub subscriber.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send writes one event payload as a text message. A failed write closes the
// connection; the hub drops the subscriber on the returned error.
func (c *Client) Send(payload []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("run stream send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
