// Package wstest provides a scriptable websocket server for exercising
// connection clients against exchange-like behavior: acks, pongs, data
// pushes, dropped connections, and dead air.
package wstest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Handler scripts the server side of a protocol exchange: it receives one
// inbound message and returns the replies to write back, if any.
type Handler func(msg []byte) [][]byte

// Server is a mock websocket endpoint backed by httptest.
type Server struct {
	server *httptest.Server
	url    string

	mu       sync.RWMutex
	conns    map[*websocket.Conn]bool
	total    int
	received [][]byte
	handler  Handler
	reject   bool
}

// NewServer starts a mock server with no scripted replies.
func NewServer() *Server {
	s := &Server{
		conns: make(map[*websocket.Conn]bool),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handleConnection))
	s.url = "ws" + strings.TrimPrefix(s.server.URL, "http")
	return s
}

// URL returns the ws:// endpoint of the server.
func (s *Server) URL() string {
	return s.url
}

// Close shuts the server down and drops every connection.
func (s *Server) Close() {
	s.server.Close()
}

// SetHandler installs the scripted responder for inbound messages.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// SetReject makes the server refuse upgrade requests when true.
func (s *Server) SetReject(reject bool) {
	s.mu.Lock()
	s.reject = reject
	s.mu.Unlock()
}

// Broadcast pushes a text message to every live connection.
func (s *Server) Broadcast(msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		_ = conn.WriteMessage(websocket.TextMessage, msg)
	}
}

// DropAll severs every live connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// CloseAll performs a close handshake with the given status code on every
// live connection.
func (s *Server) CloseAll(code int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""))
	}
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// TotalConnections returns the cumulative number of accepted connections,
// counting reconnects.
func (s *Server) TotalConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Received returns a copy of every text message the server has read.
func (s *Server) Received() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([][]byte, len(s.received))
	copy(msgs, s.received)
	return msgs
}

// ClearReceived empties the inbound message record.
func (s *Server) ClearReceived() {
	s.mu.Lock()
	s.received = nil
	s.mu.Unlock()
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	reject := s.reject
	s.mu.RUnlock()
	if reject {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.total++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, message)
		handler := s.handler
		s.mu.Unlock()

		if handler == nil {
			continue
		}
		for _, reply := range handler(message) {
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}
}
