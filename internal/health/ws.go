// SPDX-License-Identifier: MIT

package health

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zebatus/sxvrs-go/internal/bus"
)

// Hub fans out per-camera status snapshots
// to any number of WebSocket subscribers, grounded on
// marcopennelli-orbo/internal/ws/detection_hub.go's camera-keyed connection
// map.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]bool
	logger  *log.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{clients: make(map[string]map[*websocket.Conn]bool), logger: logger}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers the connection under camera,
// the value of the "camera" query parameter (or "list" for the
// all-cameras feed). The connection is unregistered and closed when the
// client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	camera := r.URL.Query().Get("camera")
	if camera == "" {
		camera = "list"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed: %v", err)
		return
	}

	h.register(camera, conn)
	defer func() {
		h.unregister(camera, conn)
		conn.Close()
	}()

	// Drain and discard inbound frames until the client disconnects or a
	// read fails; clients never send us anything meaningful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(camera string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[camera] == nil {
		h.clients[camera] = make(map[*websocket.Conn]bool)
	}
	h.clients[camera][conn] = true
}

func (h *Hub) unregister(camera string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[camera]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, camera)
		}
	}
}

// HasClients reports whether any connection is subscribed to camera.
func (h *Hub) HasClients(camera string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[camera]
	return ok && len(conns) > 0
}

// ClientCount returns the total number of connected clients across all
// cameras.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// Broadcast pushes a status snapshot to every client subscribed to
// snap.Name, encoded as JSON.
func (h *Hub) Broadcast(snap bus.StatusSnapshot) {
	if !h.HasClients(snap.Name) {
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[snap.Name]))
	for c := range h.clients[snap.Name] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(snap); err != nil {
			h.logger.Printf("[ws] write to %s subscriber failed: %v", snap.Name, err)
			h.unregister(snap.Name, conn)
			conn.Close()
		}
	}
}
