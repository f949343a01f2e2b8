package frame

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub carries viewer channel traffic over websockets, one connection set per
// document. The server pushes host->viewer messages (offsetUpdated,
// scrollTo*) to every viewer showing that document and forwards
// viewer->host messages to a registered listener.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}

	// OnMessage receives validated viewer->host messages. May be nil.
	OnMessage func(docID string, env Envelope)
}

// NewHub creates a hub that accepts upgrades only from the given origin.
// An empty origin allows same-host requests only.
func NewHub(allowedOrigin string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if allowedOrigin != "" {
					return origin == allowedOrigin
				}
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
		conns: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Serve upgrades the request and pumps messages until the viewer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, docID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("frame: upgrade failed for doc %s: %v", docID, err)
		return
	}
	h.add(docID, conn)
	defer func() {
		h.remove(docID, conn)
		conn.Close()
	}()

	dispatcher := NewDispatcher(conn)
	forward := func(env Envelope) {
		if h.OnMessage != nil {
			h.OnMessage(docID, env)
		}
	}
	dispatcher.On(TextSelected, forward)
	dispatcher.On(SetTranscriptTime, forward)
	dispatcher.On(ReturnCurrentAudioTime, forward)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := dispatcher.Dispatch(conn, raw); err != nil {
			log.Printf("frame: dropped message for doc %s: %v", docID, err)
		}
	}
}

// Broadcast sends a host->viewer message to every viewer of the document.
func (h *Hub) Broadcast(docID string, env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns[docID] {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("frame: write to viewer of doc %s failed: %v", docID, err)
		}
	}
}

// Viewers reports how many viewer connections a document currently has.
func (h *Hub) Viewers(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[docID])
}

func (h *Hub) add(docID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[docID] == nil {
		h.conns[docID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[docID][conn] = struct{}{}
}

func (h *Hub) remove(docID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[docID], conn)
	if len(h.conns[docID]) == 0 {
		delete(h.conns, docID)
	}
}
