package artifact

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// WSNotifier broadcasts RoundSnapshots to connected dashboard clients as
// they are recorded, modeled on mbflow's internal/infrastructure/websocket
// hub: a registry of client connections guarded by a mutex, with a
// best-effort broadcast that drops a client on write failure rather than
// blocking the round loop.
type WSNotifier struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

// NewWSNotifier creates an empty notifier.
func NewWSNotifier() *WSNotifier {
	return &WSNotifier{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleUpgrade upgrades an HTTP connection to a websocket and registers it
// as a broadcast target.
func (n *WSNotifier) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.clients[conn] = struct{}{}
	n.mu.Unlock()
	return nil
}

// Broadcast sends a RoundSnapshot to every connected client, dropping any
// client whose write fails.
func (n *WSNotifier) Broadcast(snapshot domain.RoundSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for conn := range n.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(n.clients, conn)
		}
	}
}

// Close closes every connected client.
func (n *WSNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for conn := range n.clients {
		conn.Close()
		delete(n.clients, conn)
	}
}
