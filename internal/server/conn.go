package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to hub.Conn and hub.Pinger. Every
// write carries a deadline so a stalled peer surfaces as a send error
// instead of blocking fan-out.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Ping may run concurrently with Send; gorilla allows WriteControl alongside
// other writers.
func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
