// Package server provides the WebSocket server for device and scan
// connections.
//
// Two endpoints exist, one per lifecycle:
//
//   - /ws/connect           the device's own connection (direct connect)
//   - /ws/connect/scan/{id} a scanning party claiming a connected device
//
// Each connection gets a read pump and a write pump plus a session - the
// state machine for its lifecycle. Sessions never talk to each other
// in-process: all coordination goes through the keyed store, and
// notifications to the other party go through the relay, which resolves the
// device's channel handle back to a client registered here.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	// gorilla/websocket is the most popular WebSocket library for Go.
	// It provides a complete implementation of the WebSocket protocol
	// with support for reading/writing messages, ping/pong, and close handling.
	"github.com/gorilla/websocket"

	"github.com/scanlink/host/internal/protocol"
	"github.com/scanlink/host/internal/registry"
	"github.com/scanlink/host/internal/relay"
	"github.com/scanlink/host/internal/store"
)

// channelBufferSize is the buffer size for per-client send channels.
// The pairing handshake is a handful of small messages, so the buffer only
// needs to absorb a short burst while the write pump catches up.
const channelBufferSize = 64

// Server manages WebSocket connections for both lifecycles and implements
// relay.Sender so envelopes can be routed to a connection by channel name.
type Server struct {
	// addr is the address to listen on (e.g., "127.0.0.1:7080").
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// handles maps channel names to connected clients. Channel names are
	// the opaque connection handles stored in device records.
	handles map[string]*Client

	// mu protects handles and stopped.
	mu sync.RWMutex

	// stopped indicates whether the server has been stopped.
	stopped bool

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	registry *registry.Registry
	relay    *relay.Relay
}

// NewServer creates a new WebSocket server over the given registry and
// store. Call Start or StartAsync to begin accepting connections.
func NewServer(addr string, reg *registry.Registry, st store.Store) *Server {
	s := &Server{
		addr:     addr,
		handles:  make(map[string]*Client),
		registry: reg,
		upgrader: websocket.Upgrader{
			// The scan URL is opened from whatever app scanned the code, so
			// cross-origin connections are expected.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	// The server is its own Sender: the relay resolves a channel name from
	// the store and the server routes it to the matching client, if any.
	s.relay = relay.New(st, s)
	return s
}

// Send implements relay.Sender. It returns false when no live connection is
// registered under channel or its send buffer is full.
func (s *Server) Send(channel string, env protocol.Envelope) bool {
	s.mu.RLock()
	client := s.handles[channel]
	s.mu.RUnlock()

	if client == nil {
		return false
	}
	return client.trySend(env)
}

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/connect", s.handleDeviceConnect)
	mux.HandleFunc("/ws/connect/scan/", s.handleScanConnect)

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start begins listening for WebSocket connections.
// This method blocks, so call it in a goroutine if you need to do other work.
// For non-blocking startup with error handling, use StartAsync() instead.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.createMux(),
	}

	log.Printf("server: listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in a goroutine and returns any startup errors.
// The returned channel receives nil if startup succeeded, or an error if the
// listener could not be created (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.httpServer = &http.Server{
		Handler: s.createMux(),
	}

	go func() {
		log.Printf("server: listening on %s", s.addr)
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// Stop gracefully shuts down the server and closes all client connections.
// It is safe to call multiple times.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	clients := make([]*Client, 0, len(s.handles))
	for _, c := range s.handles {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// snapshotOf converts a registry record into its wire representation.
func snapshotOf(rec registry.Record) protocol.Snapshot {
	return protocol.Snapshot{
		DID:     rec.DID,
		Channel: rec.Channel,
		TTL:     rec.ExpiresAt.Unix(),
		Alias:   rec.Alias,
	}
}
