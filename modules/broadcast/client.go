package broadcast

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// DefaultSendBuffer is the number of frames queued per connection before it
// is treated as a slow consumer.
const DefaultSendBuffer = 256

const writeWait = 10 * time.Second

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one connected websocket with its own ordered outbound queue.
type Client struct {
	ID   string
	Name string

	conn     Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

// NewClient wraps conn. buffer <= 0 selects DefaultSendBuffer.
func NewClient(id, name string, conn Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:   id,
		Name: name,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// queued returns the number of frames not yet taken by the write pump. A
// stopped client reports zero.
func (c *Client) queued() int {
	select {
	case <-c.done:
		return 0
	default:
		return len(c.send)
	}
}

// enqueue queues frame without blocking and reports whether it fit.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// stop ends the write pump. Queued frames are dropped.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Done is closed once the client has been unregistered or kicked.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump writes queued frames in order and pings every pingInterval. It
// returns when the client stops or a write fails.
func (c *Client) WritePump(pingInterval time.Duration) error {
	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return nil
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}
