package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 16
)

// Hub fans alert payloads out to connected websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*subscriber]struct{}),
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast marshals v and queues it to every subscriber. A subscriber whose
// send buffer is full is dropped rather than allowed to stall the monitor.
func (h *Hub) Broadcast(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("⚠️  Failed to marshal broadcast payload: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.conns {
		select {
		case sub.send <- payload:
		default:
			log.Println("⚠️  Dropping slow websocket subscriber")
			delete(h.conns, sub)
			close(sub.send)
		}
	}
}

// ServeWS upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  Websocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.conns[sub] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	log.Printf("💬 Websocket subscriber connected (%d total)", total)

	go sub.writeLoop()
	go sub.readLoop(h)
}

func (s *subscriber) writeLoop() {
	for payload := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.conn.Close()
			return
		}
	}
	// The hub closed the channel; say goodbye before hanging up.
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
	s.conn.Close()
}

// readLoop drains client frames so close frames and pings are processed.
func (s *subscriber) readLoop(h *Hub) {
	defer h.remove(s)
	s.conn.SetReadLimit(512)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.conns[s]; ok {
		delete(h.conns, s)
		close(s.send)
	}
	h.mu.Unlock()
	s.conn.Close()
}
