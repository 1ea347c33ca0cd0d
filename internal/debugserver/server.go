// Package debugserver exposes a websocket feed of the mission transfer
// endpoint's live status, the operator-facing analogue of this
// service's wire protocol (spec §11). It is read-only: the monitor
// built on top of it (cmd/missionmonitor) cannot drive the protocol,
// it can only observe it.
package debugserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Status is one snapshot pushed to every connected monitor.
type Status struct {
	Timestamp       time.Time         `json:"timestamp"`
	Channel         string            `json:"channel"`
	State           string            `json:"state"`
	MissionType     string            `json:"mission_type,omitempty"`
	Seq             uint16            `json:"seq"`
	Count           uint16            `json:"count"`
	ActiveDatamanID int               `json:"active_dataman_id"`
	ListCounts      map[string]uint16 `json:"list_counts"`
	CurrentSeq      int32             `json:"current_seq"`
	LastReached     int32             `json:"last_reached"`
	InTransfer      bool              `json:"in_transfer"`
}

// StatusFunc produces the current Status snapshot; called once per
// broadcast tick.
type StatusFunc func() Status

// Server broadcasts StatusFunc's result to every connected websocket
// client at a fixed interval.
type Server struct {
	addr     string
	interval time.Duration
	statusFn StatusFunc
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New returns a Server that will listen on addr and broadcast every
// interval.
func New(addr string, interval time.Duration, statusFn StatusFunc) *Server {
	return &Server{
		addr:     addr,
		interval: interval,
		statusFn: statusFn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ListenAndServe blocks serving /status until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	go s.broadcastLoop(ctx)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("debugserver: upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// Drain and discard any client messages so the read side doesn't
	// fill its buffer; this feed is broadcast-only.
	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *Server) broadcast() {
	status := s.statusFn()
	b, err := json.Marshal(status)
	if err != nil {
		log.Printf("debugserver: marshal status: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
