package connection

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Client represents one WebSocket connection. PlayerID is set after
// HELLO, TableID and Seat after JOIN_TABLE.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu       sync.Mutex
	playerID string
	nickname string
	tableID  string
	seat     int
}

// Identify binds the connection to a player after HELLO.
func (c *Client) Identify(playerID, nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	c.nickname = nickname
}

// BindTable binds the connection to a table seat after JOIN_TABLE.
func (c *Client) BindTable(tableID string, seat int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableID = tableID
	c.seat = seat
}

func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

func (c *Client) Nickname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickname
}

func (c *Client) TableID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tableID
}

func (c *Client) Seat() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seat
}

// Manager tracks all live connections and their player/table bindings.
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

// NewManager creates a new connection manager.
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Start processes register/unregister events. Run it in its own
// goroutine.
func (m *Manager) Start() {
	for {
		select {
		case client := <-m.Register:
			m.mutex.Lock()
			m.clients[client.ID] = client
			m.mutex.Unlock()
		case client := <-m.Unregister:
			m.mutex.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				close(client.Send)
			}
			m.mutex.Unlock()
		}
	}
}

// send queues a message without blocking; a full buffer means the
// client is too slow and the message is dropped rather than stalling
// the whole table.
func send(client *Client, message []byte) bool {
	select {
	case client.Send <- message:
		return true
	default:
		return false
	}
}

// SendToClient delivers a message to one connection.
func (m *Manager) SendToClient(clientID string, message []byte) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if client, ok := m.clients[clientID]; ok {
		return send(client, message)
	}
	return false
}

// SendToPlayer delivers a message to every connection identified as the
// player.
func (m *Manager) SendToPlayer(playerID string, message []byte) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	delivered := false
	for _, client := range m.clients {
		if client.PlayerID() == playerID {
			if send(client, message) {
				delivered = true
			}
		}
	}
	return delivered
}

// BroadcastToTable sends the same message to every connection at the
// table.
func (m *Manager) BroadcastToTable(tableID string, message []byte) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, client := range m.clients {
		if client.TableID() == tableID {
			send(client, message)
		}
	}
}

// BroadcastPersonalized sends a per-connection message built by fn; a
// nil result skips that connection.
func (m *Manager) BroadcastPersonalized(tableID string, fn func(c *Client) []byte) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, client := range m.clients {
		if client.TableID() != tableID {
			continue
		}
		if msg := fn(client); msg != nil {
			send(client, msg)
		}
	}
}

// TableClients snapshots the connections currently bound to a table.
func (m *Manager) TableClients(tableID string) []*Client {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*Client, 0)
	for _, client := range m.clients {
		if client.TableID() == tableID {
			out = append(out, client)
		}
	}
	return out
}
