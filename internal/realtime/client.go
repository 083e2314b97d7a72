package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

type State int

const (
	StateConnected State = iota
	StateClosing
	StateClosed
)

// Client wraps one physical socket. Outbound frames go through a
// buffered channel drained by a single WritePump goroutine, so delivery
// order per connection matches enqueue order and slow peers never block
// the caller.
type Client struct {
	id string
	ws *websocket.Conn

	out  chan []byte
	done chan struct{}

	mu        sync.Mutex
	state     State
	closeOnce sync.Once
}

func NewClient(id string, ws *websocket.Conn) *Client {
	return &Client{
		id:   id,
		ws:   ws,
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Enqueue hands a frame to the writer without blocking. A closed client
// or a full buffer drops the frame and reports false; the peer's
// disappearance is handled at the gateway, not here.
func (c *Client) Enqueue(payload []byte) bool {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.out <- payload:
		return true
	default:
		log.Warn().Str("client", c.id).Msg("Send buffer full, dropping frame.")
		return false
	}
}

// Close initiates the close handshake and releases the socket. Safe on
// every exit path; only the first call does anything.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosing
		c.mu.Unlock()

		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)

		close(c.done)
		_ = c.ws.Close()

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	})
}

// Read blocks for the next text/binary frame from the peer. Liveness is
// tracked through the pong deadline refreshed by the peer's pongs.
func (c *Client) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Client) prepareRead() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// WritePump drains the outbound buffer onto the socket and keeps the
// peer alive with periodic pings. It exits when the client closes or a
// write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
