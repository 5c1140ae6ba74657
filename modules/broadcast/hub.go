package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/Amit00008/solana-chess/domain/room"
	"github.com/Amit00008/solana-chess/metrics"
	"github.com/benbjohnson/clock"
	"github.com/gofiber/contrib/websocket"
)

const sendBuffer = 64

// Conn is the part of a WebSocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Binding is the wallet and room a connection is attached to.
type Binding struct {
	Wallet string
	RoomID string
	Color  room.Color
}

// Client represents a connected WebSocket client.
type Client struct {
	ID   string
	Conn Conn

	send      chan []byte
	closeOnce sync.Once

	// guarded by Hub.mu
	binding  Binding
	lastSeen time.Time
}

// NewClient wraps conn. The client must be registered before messages reach it.
func NewClient(id string, conn Conn) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// WritePump writes queued frames to the connection until the client is unregistered.
// It is the only writer of the connection.
func (c *Client) WritePump() {
	for data := range c.send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[hub] Failed to send to client %s: %v", c.ID, err)
		}
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub tracks connected clients, their room bindings and heartbeats.
type Hub struct {
	clients   map[string]*Client
	broadcast chan []byte
	done      chan struct{}
	clock     clock.Clock
	mu        sync.RWMutex
}

// NewHub creates a new Hub. A nil clock uses the wall clock.
func NewHub(clk clock.Clock) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	return &Hub{
		clients:   make(map[string]*Client),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		clock:     clk,
	}
}

// Run delivers broadcasts until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("[hub] Shutting down...")
			h.closeAllClients()
			close(h.done)
			return
		case data := <-h.broadcast:
			h.handleBroadcast(data)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeSend()
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	metrics.ConnectedClients.Set(0)
}

func (h *Hub) handleBroadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		h.enqueue(client, data)
	}
}

// enqueue never blocks; a client that cannot keep up loses the frame.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		log.Printf("[hub] Dropping message for slow client %s", client.ID)
	}
}

// Register adds a client to the hub and starts its heartbeat.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.lastSeen = h.clock.Now()
	h.clients[client.ID] = client
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	log.Printf("[hub] Client %s registered", client.ID)
}

// Unregister removes a client and stops its writer. It reports whether the
// client was still registered.
func (h *Hub) Unregister(clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	delete(h.clients, clientID)
	client.closeSend()
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	log.Printf("[hub] Client %s unregistered", clientID)
	return true
}

// SendTo queues msg for one client. Unknown clients are ignored.
func (h *Hub) SendTo(clientID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[hub] Failed to marshal message for %s: %v", clientID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[clientID]; ok {
		h.enqueue(client, data)
	}
}

// BroadcastAll queues msg for every connected client.
func (h *Hub) BroadcastAll(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[hub] Failed to marshal broadcast message: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// Bind attaches a client to a wallet and a room seat.
func (h *Hub) Bind(clientID, wallet, roomID string, color room.Color) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[clientID]; ok {
		client.binding = Binding{Wallet: wallet, RoomID: roomID, Color: color}
	}
}

// Unbind detaches a client from its room. The wallet is kept for rate limiting.
func (h *Hub) Unbind(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[clientID]; ok {
		client.binding.RoomID = ""
		client.binding.Color = ""
	}
}

// Binding returns the client's current binding.
func (h *Hub) Binding(clientID string) (Binding, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return Binding{}, false
	}
	return client.binding, true
}

// Touch records a heartbeat for the client.
func (h *Hub) Touch(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[clientID]; ok {
		client.lastSeen = h.clock.Now()
	}
}

// Stale returns the clients whose last heartbeat is older than threshold.
func (h *Hub) Stale(threshold time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.clock.Now()
	var ids []string
	for id, client := range h.clients {
		if now.Sub(client.lastSeen) > threshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// Kick closes the client's connection. The reader of that connection then runs
// the normal close cleanup.
func (h *Hub) Kick(clientID string) {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := client.Conn.Close(); err != nil {
		log.Printf("[hub] Failed to close client %s: %v", clientID, err)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
