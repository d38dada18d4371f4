package httpapi

import (
	"net/http"
	"sync"
	"time"

	"gt06_gateway/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub fans out every events.Log record to connected websocket clients.
type Hub struct {
	log *events.Log

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan events.Event
}

func newHub(log *events.Log) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]chan events.Event),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard contract is consumed from arbitrary origins
			// (CLI tools, local HTML files); this service has no cookies
			// or session state for a CSRF-style check to protect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// run subscribes to the shared log once and keeps running for the
// hub's lifetime, broadcasting to whichever clients are currently
// connected.
func (h *Hub) run() {
	ch := h.log.Subscribe(256)
	for e := range ch {
		h.broadcast(e)
	}
}

func (h *Hub) broadcast(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.clients {
		select {
		case out <- e:
		default:
		}
	}
}

func (h *Hub) handleWebsocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	out := make(chan events.Event, 64)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(out)
		conn.Close()
	}()

	// Detect client-initiated close; this connection never reads
	// meaningful messages, only pings.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-out:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
