// Package realtime implements the tenant-isolated connection registry and
// event fan-out for live clients.
package realtime

import (
	"sync"

	"docforge/pkg/models"
)

// sendBuffer bounds the per-connection outbound queue. A connection that
// cannot drain this many messages is considered broken and pruned.
const sendBuffer = 64

// Connection is an ephemeral registry entry for one live client. Outbound
// messages are queued on a buffered channel so delivery order per connection
// matches generation order per workflow.
type Connection struct {
	ID       string
	TenantID string

	outbound chan models.ServerMessage

	mu         sync.Mutex
	subscribed map[string]struct{}
	closed     bool
}

// NewConnection creates a Connection for a tenant.
func NewConnection(id, tenantID string) *Connection {
	return &Connection{
		ID:         id,
		TenantID:   tenantID,
		outbound:   make(chan models.ServerMessage, sendBuffer),
		subscribed: make(map[string]struct{}),
	}
}

// Subscribe adds a workflow id to the connection's subscription set.
func (c *Connection) Subscribe(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[workflowID] = struct{}{}
}

// Unsubscribe removes a workflow id from the subscription set.
func (c *Connection) Unsubscribe(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, workflowID)
}

// SubscribedTo reports whether the connection is subscribed to a workflow.
func (c *Connection) SubscribedTo(workflowID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscribed[workflowID]
	return ok
}

// TrySend queues a message without blocking. It returns false when the
// connection is closed or its buffer is full, signalling the caller to prune
// it.
func (c *Connection) TrySend(msg models.ServerMessage) bool {
	// The mutex is held across the send so Close cannot close outbound
	// between the closed check and the select.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.outbound <- msg:
		return true
	default:
		return false
	}
}

// Outbound exposes the ordered message queue drained by the transport
// writer.
func (c *Connection) Outbound() <-chan models.ServerMessage {
	return c.outbound
}

// Close marks the connection closed and releases its writer.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbound)
}

// Registry maps tenants to their live connections. Broadcast iterates over a
// snapshot so a concurrent disconnect never races the same collection.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]map[string]*Connection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tenants: make(map[string]map[string]*Connection)}
}

// Add registers a connection under its tenant.
func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.tenants[conn.TenantID]
	if !ok {
		byID = make(map[string]*Connection)
		r.tenants[conn.TenantID] = byID
	}
	byID[conn.ID] = conn
}

// Remove deletes a connection and closes it.
func (r *Registry) Remove(conn *Connection) {
	r.mu.Lock()
	if byID, ok := r.tenants[conn.TenantID]; ok {
		delete(byID, conn.ID)
		if len(byID) == 0 {
			delete(r.tenants, conn.TenantID)
		}
	}
	r.mu.Unlock()
	conn.Close()
}

// Snapshot returns a copy of the tenant's connection set.
func (r *Registry) Snapshot(tenantID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byID := r.tenants[tenantID]
	out := make([]*Connection, 0, len(byID))
	for _, conn := range byID {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of live connections for a tenant.
func (r *Registry) Count(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants[tenantID])
}
