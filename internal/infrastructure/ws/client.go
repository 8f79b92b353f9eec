package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one live transport session. Its connection id is the addressable
// unit for all relaying; outbound traffic goes through a buffered channel so
// one slow reader never blocks a room broadcast.
type Client struct {
	conn      *connWrapper
	outbox    chan *Message
	ID        string
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:   newConnWrapper(conn),
		outbox: make(chan *Message, 64), // buffered to avoid dead-locks on slow clients
		ID:     uuid.NewString(),
		done:   make(chan struct{}),
	}
}

// Enqueue queues a message for delivery. It never blocks; a full outbox means
// the client cannot keep up and the message is dropped with a false return.
func (c *Client) Enqueue(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbox <- msg:
		return true
	default:
		return false
	}
}

// ReadPump decodes inbound envelopes and hands them to onMessage. It returns
// when the connection dies, after invoking onClose exactly once.
func (c *Client) ReadPump(onMessage func(*Client, *Message), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.Close()
	}()

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read error (client %s): %v", c.ID, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("ws malformed frame (client %s): %v", c.ID, err)
			continue
		}

		onMessage(c, &msg)
	}
}

// WritePump drains the outbox onto the connection.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outbox:
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error (client %s): %v", c.ID, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	_ = c.conn.Close()
}
