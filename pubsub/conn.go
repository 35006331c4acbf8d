package pubsub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// Conn is one text-frame socket. ReadMessage is only called from one
// goroutine; WriteMessage calls are serialized by the client.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer       *websocket.Dialer
	Header       http.Header
	WriteTimeout time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, res, err := dialer.DialContext(ctx, url, d.Header)
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &websocketConn{conn: conn, writeTimeout: writeTimeout}, nil
}

type websocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *websocketConn) WriteMessage(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

var _ Dialer = WebsocketDialer{}
