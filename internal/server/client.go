package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/scanlink/host/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer. Inbound traffic is a single
	// small JSON object per message.
	maxMessageSize = 4096
)

// Inbound messages are throttled per connection. The pairing handshake is a
// few messages, so anything faster than this is a misbehaving client.
const (
	inboundRate  = rate.Limit(10)
	inboundBurst = 20
)

// session is the lifecycle state machine attached to a client. Both callbacks
// run on the client's read pump goroutine, so implementations need no
// locking of their own state.
type session interface {
	// onMessage handles one inbound text message.
	onMessage(data []byte)

	// onClose runs once when the connection is torn down, after the client
	// has been unregistered from the server.
	onClose()
}

// Client represents a single connected WebSocket peer.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send buffers outbound envelopes for the write pump.
	send chan protocol.Envelope

	// done is closed exactly once to signal the write pump to finish.
	done      chan struct{}
	closeOnce sync.Once

	// closeCode is the close frame code the write pump sends. It may only be
	// written before done is closed.
	closeCode int

	// channel is the name this client is registered under in the server's
	// handle map. It doubles as the connection handle stored in device
	// records.
	channel string

	// limiter throttles inbound messages.
	limiter *rate.Limiter

	server  *Server
	session session
}

// newClient registers a new client under a fresh channel name.
func (s *Server) newClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn:      conn,
		send:      make(chan protocol.Envelope, channelBufferSize),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		channel:   uuid.NewString(),
		limiter:   rate.NewLimiter(inboundRate, inboundBurst),
		server:    s,
	}

	s.mu.Lock()
	s.handles[c.channel] = c
	s.mu.Unlock()

	return c
}

// trySend queues an envelope for the write pump without blocking. It returns
// false when the client is already closing or its buffer is full.
func (c *Client) trySend(env protocol.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- env:
		return true
	case <-c.done:
		return false
	default:
		log.Printf("server: send buffer full for %s, dropping %s", c.channel, env.Event)
		return false
	}
}

// closeSend signals the write pump to flush and close the connection.
// Safe to call multiple times and from any goroutine.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// gracefulClose queues a close with the given close code. Envelopes already
// queued via trySend are flushed before the close frame goes out.
func (c *Client) gracefulClose(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// writeEnvelope marshals and writes one envelope with a write deadline.
func (c *Client) writeEnvelope(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// writePump pumps envelopes from the send channel to the WebSocket
// connection. It also sends periodic pings to keep the connection alive.
// One writePump runs per connection; all writes go through it.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			if err := c.writeEnvelope(env); err != nil {
				log.Printf("server: write to %s failed: %v", c.channel, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Flush whatever was queued before the close was requested, then
			// say goodbye properly.
			for {
				select {
				case env := <-c.send:
					if err := c.writeEnvelope(env); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(c.closeCode, ""))
					return
				}
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the session.
// It owns connection teardown: when the read loop ends, the client is
// unregistered, the session notified, and the write pump told to stop.
func (c *Client) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.handles, c.channel)
		c.server.mu.Unlock()

		c.session.onClose()
		c.closeSend()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: read from %s failed: %v", c.channel, err)
			}
			return
		}

		if !c.limiter.Allow() {
			log.Printf("server: rate limit exceeded for %s, dropping message", c.channel)
			continue
		}

		c.session.onMessage(data)
	}
}
