package bridge

import "sync"

// Manager tracks live client connections in admission order.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	order   []string // admission order, oldest first
}

// NewManager creates an empty connection registry.
func NewManager() *Manager {
	return &Manager{clients: make(map[string]*Client)}
}

// Add registers a connection.
func (m *Manager) Add(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	m.order = append(m.order, c.ID)
}

// Remove unregisters a connection. Unknown ids are a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return
	}
	delete(m.clients, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Get finds a connection by id.
func (m *Manager) Get(id string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	return c, ok
}

// Oldest returns the earliest-admitted live connection.
func (m *Manager) Oldest() (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.order) == 0 {
		return nil, false
	}
	return m.clients[m.order[0]], true
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// All returns a copy of the live connection list, oldest first.
func (m *Manager) All() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.clients))
	for _, id := range m.order {
		out = append(out, m.clients[id])
	}
	return out
}
