package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	realtimeTypes "github.com/wenqinglim/euterpe/pkg/realtime"
)

const (
	outboundBufferSize = 64
	writeWait          = 10 * time.Second
)

// Client is one websocket connection and the topics it listens to.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan realtimeTypes.ServerEnvelope
	mu     sync.RWMutex
	topics map[string]struct{}
	close  sync.Once
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan realtimeTypes.ServerEnvelope, outboundBufferSize),
		topics: make(map[string]struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Queue enqueues msg without blocking. It reports false when the client is too slow.
func (c *Client) Queue(msg realtimeTypes.ServerEnvelope) (ok bool) {
	defer func() {
		// send is closed once the client is unregistered
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) WriteLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *Client) Close() {
	c.close.Do(func() {
		_ = c.conn.Close()
		close(c.send)
	})
}

func (c *Client) Subscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		c.topics[topic] = struct{}{}
	}
}

func (c *Client) Unsubscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.topics, topic)
	}
}

func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}
