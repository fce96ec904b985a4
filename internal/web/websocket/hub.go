package websocket

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Client represents a WebSocket client connection
type Client struct {
	ID        string
	Send      chan []byte
	Hub       *Hub
	mu        sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
	closed    bool
}

// NewClient creates a client with a buffered send queue
func NewClient(id string, hub *Hub) *Client {
	return &Client{
		ID:      id,
		Hub:     hub,
		Send:    make(chan []byte, 256),
		closeCh: make(chan struct{}),
	}
}

// Hub maintains the set of active clients and broadcasts progress events to
// them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Channel for broadcasting messages to all clients
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	log *logrus.Logger

	mu sync.Mutex
}

// NewHub creates a new Hub instance
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run handles registrations and broadcasts until ctx is done, then drops
// every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.log.Infof("New client connected. Total clients: %d", len(h.clients))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.Infof("Client disconnected. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// slow client, let it go
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes client and closes its send queue. h.mu must be held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	client.mu.Lock()
	if !client.closed {
		close(client.Send)
		client.closed = true
	}
	client.mu.Unlock()
}

// Register adds a client. Returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the client's write loop and unregisters it
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.Hub.Unregister(c)
	})
}
