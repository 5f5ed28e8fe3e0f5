package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
)

// Hub tracks websocket clients and the room each one is attached to. Fan-out
// never blocks: a client whose queue is full is disconnected instead.
type Hub struct {
	clients map[string]*Client         // clientID -> Client
	rooms   map[string]map[string]bool // room code -> set of clientIDs
	roomOf  map[string]string          // clientID -> room code
	kicks   chan *Client
	done    chan struct{}
	mu      sync.RWMutex
	logger  types.Logger

	kicked atomic.Int64
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]bool),
		roomOf:  make(map[string]string),
		kicks:   make(chan *Client, 64),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Run disconnects slow clients until ctx is cancelled, then closes every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down", "clients", h.ClientCount())
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.kicks:
			h.disconnect(client)
		}
	}
}

// Flush waits until every client queue is empty or ctx is done. Frames a
// pump has already dequeued may still be in flight when it returns.
func (h *Hub) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for h.pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (h *Hub) pending() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, client := range h.clients {
		n += client.queued()
	}
	return n
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.stop()
		_ = client.conn.Close()
	}
}

func (h *Hub) disconnect(client *Client) {
	h.kicked.Add(1)
	h.logger.Warn("Disconnecting slow client", "client", client.ID, "name", client.Name)
	client.stop()
	_ = client.conn.Close()
}

// kick schedules client for disconnection without blocking the caller.
func (h *Hub) kick(client *Client) {
	select {
	case h.kicks <- client:
	default:
		go h.disconnect(client)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("Client registered", "client", client.ID, "name", client.Name)
}

// Unregister removes a client and stops its write pump.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
		h.detachLocked(clientID)
	}
	h.mu.Unlock()

	if ok {
		client.stop()
		h.logger.Debug("Client unregistered", "client", clientID, "name", client.Name)
	}
}

// Attach puts a registered client into room code.
func (h *Hub) Attach(code, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		h.logger.Debug("Attach for unknown client", "client", clientID, "code", code)
		return
	}
	h.detachLocked(clientID)
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[string]bool)
	}
	h.rooms[code][clientID] = true
	h.roomOf[clientID] = code
}

// Detach removes a client from room code.
func (h *Hub) Detach(code, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.roomOf[clientID] == code {
		h.detachLocked(clientID)
	}
}

func (h *Hub) detachLocked(clientID string) {
	code, ok := h.roomOf[clientID]
	if !ok {
		return
	}
	delete(h.roomOf, clientID)
	if members := h.rooms[code]; members != nil {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}

// CloseRoom queues frame for every client attached to room code and detaches
// them, so a later room under the same code starts with no clients.
func (h *Hub) CloseRoom(code string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[code]
	for clientID := range members {
		if client, ok := h.clients[clientID]; ok {
			h.sendToClient(client, frame)
		}
		delete(h.roomOf, clientID)
	}
	delete(h.rooms, code)
	if len(members) > 0 {
		h.logger.Info("Closed room with attached clients", "code", code, "clients", len(members))
	}
}

// ToRoom queues frame for every client attached to room code.
func (h *Hub) ToRoom(code string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for clientID := range h.rooms[code] {
		if client, ok := h.clients[clientID]; ok {
			h.sendToClient(client, frame)
		}
	}
}

// ToAll queues frame for every connected client.
func (h *Hub) ToAll(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.sendToClient(client, frame)
	}
}

// ToConn queues frame for a single client.
func (h *Hub) ToConn(clientID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[clientID]; ok {
		h.sendToClient(client, frame)
	}
}

func (h *Hub) sendToClient(client *Client, frame []byte) {
	if !client.enqueue(frame) {
		h.kick(client)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients attached to a room.
func (h *Hub) RoomClientCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// KickedCount returns how many slow clients have been disconnected.
func (h *Hub) KickedCount() int64 {
	return h.kicked.Load()
}
