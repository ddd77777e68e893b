package ingest

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nicktill/tinyquery/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// Hub fans out ingest telemetry -- newly registered series and sample
// counts -- to connected WebSocket clients. This is not query-result
// streaming; it only ever carries ingestion-side events for a live
// cardinality dashboard.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	mu          sync.Mutex
	sampleCount int64
}

// NewHub creates an empty Hub. Call Run in its own goroutine to start
// serving registrations and broadcasts.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, config.WSChannelBuffer),
		unregister: make(chan *websocket.Conn, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
	}
}

// Run drives the hub's event loop until ctx is canceled, at which point
// every connected client is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.Unlock()
			for _, conn := range failed {
				h.unregister <- conn
			}
		}
	}
}

// HasClients reports whether any WebSocket client is currently connected.
func (h *Hub) HasClients() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) > 0
}

type hubEvent struct {
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Metric    string            `json:"metric,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Count     int64             `json:"count,omitempty"`
}

func (h *Hub) publish(ev hubEvent) {
	if !h.HasClients() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("❌ ingest: hub: failed to encode event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("⚠️  ingest: hub: broadcast channel full, dropping event")
	}
}

// PublishNewSeries announces a freshly-registered series.
func (h *Hub) PublishNewSeries(metric string, ls map[string]string) {
	h.publish(hubEvent{Type: "new_series", Timestamp: time.Now().Unix(), Metric: metric, Labels: ls})
}

// PublishSample records one ingested sample and periodically announces
// the running total; it does not broadcast on every call to avoid
// flooding clients under high ingest rates.
func (h *Hub) PublishSample() {
	h.mu.Lock()
	h.sampleCount++
	count := h.sampleCount
	h.mu.Unlock()

	if count%100 == 0 {
		h.publish(hubEvent{Type: "sample_count", Timestamp: time.Now().Unix(), Count: count})
	}
}

// ServeWS upgrades r to a WebSocket connection and registers it with the
// hub until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ ingest: hub: websocket upgrade failed: %v", err)
		return
	}
	h.register <- conn

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.unregister <- conn
			return
		}
	}
}
