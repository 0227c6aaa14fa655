// Package diagserver pushes a compilation's buffered diagnostics to
// connected websocket clients as they are produced, following sentra's
// internal/network/websocket.go server pattern — an Upgrader plus a client
// registry guarded by a mutex — repurposed here for a single compiler-
// scoped broadcaster instead of a general-purpose network module.
package diagserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"minilax/internal/diag"
)

// Server implements diag.Sink, broadcasting every logged record to all
// currently connected clients. It never buffers records for clients that
// connect late; the reporter's own Records() remains the source of truth
// for anything replayed after the fact.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New creates a Server. Serve binds it to an address; callers that only
// want the in-process broadcaster (e.g. tests) may construct a Server and
// call Publish directly without ever calling Serve.
func New() *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Serve starts an HTTP server at addr whose single endpoint upgrades to a
// websocket and registers the connection as a diagnostics subscriber. It
// blocks until the listener fails; callers run it in its own goroutine.
func (s *Server) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/diagnostics", s.handleUpgrade)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("diagserver: upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	go s.drainClient(conn)
}

// drainClient discards anything a client sends and deregisters it once the
// connection drops; this server is publish-only.
func (s *Server) drainClient(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wireRecord is the JSON shape pushed per diagnostic.
type wireRecord struct {
	Class  string `json:"class"`
	Domain string `json:"domain"`
	Code   int    `json:"code"`
	Info   string `json:"info,omitempty"`
	Line   int    `json:"line"`
}

// Publish implements diag.Sink: marshal the record and fan it out to every
// connected client, dropping any client whose write fails.
func (s *Server) Publish(rec diag.Record) {
	payload, err := json.Marshal(wireRecord{
		Class:  rec.Class.String(),
		Domain: rec.Domain.String(),
		Code:   int(rec.Code),
		Info:   rec.Info,
		Line:   rec.Line,
	})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
