package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/velosense/bikefit/internal/cycles"
	"github.com/velosense/bikefit/internal/httputil"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // capture UI runs on a different local port
	},
}

// liveHub fans each completed cycle out to the websocket subscribers of one
// session. Writes happen on the frame-processing goroutine; a subscriber
// that fails a write is dropped.
type liveHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newLiveHub() *liveHub {
	return &liveHub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *liveHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *liveHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

func (h *liveHub) broadcast(c cycles.CycleSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(c); err != nil {
			log.Printf("live stream write failed, dropping subscriber: %v", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *liveHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"),
			closeDeadline())
		conn.Close()
		delete(h.conns, conn)
	}
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

// liveStream upgrades the request and streams each completed cycle as one
// JSON message until the session finishes or the client disconnects.
func (s *Server) liveStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	as, ok := s.lookup(id)
	if !ok {
		httputil.NotFound(w, "no active session "+id)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("session %s: websocket upgrade failed: %v", id, err)
		return
	}
	as.hub.add(conn)

	// Reader loop only to observe client disconnects; subscribers never
	// send application messages.
	go func() {
		defer as.hub.remove(conn)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
